// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/leadgate/internal/logger"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
)

const (
	defaultStream     = "LEADGATE"
	defaultMaxRetries = 3

	headerRequestID  = messagequeue.HeaderRequestID
	headerRetryCount = messagequeue.HeaderRetryCount
)

// Option configures Connect.
type Option func(*options)

type options struct {
	stream     string
	subjects   []string
	maxRetries int
}

// WithStream overrides the JetStream stream name.
func WithStream(name string) Option {
	return func(o *options) {
		if name != "" {
			o.stream = name
		}
	}
}

// WithMaxRetries sets how many times a failed message is redelivered
// before it is moved to the dead-letter subject.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	stream     string
	maxRetries int
}

var _ messagequeue.Queue = (*Queue)(nil)

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, url string, opts ...Option) (*Queue, error) {
	o := options{
		stream:     defaultStream,
		subjects:   []string{"leads.>"},
		maxRetries: defaultMaxRetries,
	}
	for _, fn := range opts {
		fn(&o)
	}

	nc, err := nats.Connect(url,
		nats.Name("leadgate"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     o.stream,
		Subjects: o.subjects,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", o.stream)
	return &Queue{nc: nc, js: js, stream: o.stream, maxRetries: o.maxRetries}, nil
}

// Publish sends a message to the given subject. The request ID from ctx,
// if any, travels in the X-Request-ID header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a durable consumer for subject. Messages that fail
// schema validation go straight to the dead-letter subject. Handler
// failures are republished with an incremented Retry-Count until the
// retry budget is spent.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       durableName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) dispatch(base context.Context, msg jetstream.Msg, handler messagequeue.Handler) {
	hdrs := msg.Headers()
	ctx := base
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		ctx = logger.WithRequestID(ctx, reqID)
	}
	log := slog.With("subject", msg.Subject(), "request_id", hdrs.Get(headerRequestID))

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		log.Warn("invalid message, moving to dlq", "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	err := handler(ctx, msg.Subject(), msg.Data())
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("nats ack failed", "error", ackErr)
		}
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutting down: let JetStream redeliver without spending a retry.
		_ = msg.Nak()
		return
	}

	attempt := retryCount(hdrs)
	if attempt >= q.maxRetries {
		log.Error("message handler failed, retries exhausted", "retry_count", attempt, "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	log.Warn("message handler failed, retrying", "retry_count", attempt+1, "error", err)
	retry := nats.NewMsg(msg.Subject())
	retry.Data = msg.Data()
	copyHeaders(retry.Header, hdrs)
	retry.Header.Set(headerRetryCount, strconv.Itoa(attempt+1))
	if _, pubErr := q.js.PublishMsg(context.WithoutCancel(ctx), retry); pubErr != nil {
		log.Error("nats retry publish failed", "error", pubErr)
		_ = msg.NakWithDelay(time.Second)
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("nats ack failed", "error", ackErr)
	}
}

// moveToDLQ republishes msg on <subject>.dlq and acks the original.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlq := nats.NewMsg(messagequeue.DLQSubject(msg.Subject()))
	dlq.Data = msg.Data()
	copyHeaders(dlq.Header, msg.Headers())
	if _, err := q.js.PublishMsg(context.WithoutCancel(ctx), dlq); err != nil {
		slog.Error("nats dlq publish failed", "subject", dlq.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "error", err)
	}
}

// KeyValue returns (creating if needed) a JetStream key-value bucket.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain lets in-flight messages finish, then closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func copyHeaders(dst, src nats.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// durableName maps a subject to a valid consumer name.
func durableName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "star", ">", "all", " ", "_")
	return "leadgate_" + r.Replace(subject)
}
