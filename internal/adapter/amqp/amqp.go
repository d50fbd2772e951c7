// Package amqp implements the message queue port on RabbitMQ.
//
// Each subject maps to a durable queue of the same name bound to a topic
// exchange. Failed messages are dead-lettered through <exchange>.dlx into
// a queue named <subject>.dlq.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cast"

	"github.com/Strob0t/leadgate/internal/logger"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
)

const (
	defaultExchange   = "leadgate"
	defaultMaxRetries = 3
	prefetch          = 16
)

// Option configures Connect.
type Option func(*Queue)

// WithExchange overrides the topic exchange name.
func WithExchange(name string) Option {
	return func(q *Queue) {
		if name != "" {
			q.exchange = name
		}
	}
}

// WithMaxRetries sets how many times a failed message is republished
// before it is dead-lettered.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// Queue implements messagequeue.Queue over an AMQP 0-9-1 broker.
type Queue struct {
	conn       *amqp.Connection
	exchange   string
	maxRetries int

	pubMu sync.Mutex
	pubCh *amqp.Channel

	declared sync.Map // subject -> struct{}

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
}

var _ messagequeue.Queue = (*Queue)(nil)

type subscription struct {
	ch   *amqp.Channel
	tag  string
	done chan struct{}
}

// Connect dials the broker and declares the exchange pair.
func Connect(ctx context.Context, url string, opts ...Option) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	q := &Queue{
		conn:       conn,
		exchange:   defaultExchange,
		maxRetries: defaultMaxRetries,
		subs:       make(map[*subscription]struct{}),
	}
	for _, fn := range opts {
		fn(q)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(q.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", q.exchange, err)
	}
	if err := ch.ExchangeDeclare(q.dlx(), "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", q.dlx(), err)
	}
	q.pubCh = ch

	slog.InfoContext(ctx, "amqp connected", "exchange", q.exchange)
	return q, nil
}

func (q *Queue) dlx() string { return q.exchange + ".dlx" }

// declare sets up the work queue and its dead-letter queue for subject.
func (q *Queue) declare(subject string) error {
	if _, ok := q.declared.Load(subject); ok {
		return nil
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	dlq := messagequeue.DLQSubject(subject)
	if _, err := q.pubCh.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare queue %s: %w", dlq, err)
	}
	if err := q.pubCh.QueueBind(dlq, dlq, q.dlx(), false, nil); err != nil {
		return fmt.Errorf("amqp bind %s: %w", dlq, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    q.dlx(),
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := q.pubCh.QueueDeclare(subject, true, false, false, false, args); err != nil {
		return fmt.Errorf("amqp declare queue %s: %w", subject, err)
	}
	if err := q.pubCh.QueueBind(subject, subject, q.exchange, false, nil); err != nil {
		return fmt.Errorf("amqp bind %s: %w", subject, err)
	}
	q.declared.Store(subject, struct{}{})
	return nil
}

// Publish sends data as a persistent JSON message routed by subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.declare(subject); err != nil {
		return err
	}
	headers := amqp.Table{}
	if reqID := logger.RequestID(ctx); reqID != "" {
		headers[messagequeue.HeaderRequestID] = reqID
	}
	return q.publish(ctx, subject, data, headers)
}

func (q *Queue) publish(ctx context.Context, subject string, data []byte, headers amqp.Table) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err := q.pubCh.PublishWithContext(ctx, q.exchange, subject, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe starts a consumer on subject's queue. Invalid payloads and
// messages past the retry budget are rejected into the dead-letter queue.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	if err := q.declare(subject); err != nil {
		return nil, err
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	sub := &subscription{ch: ch, tag: "leadgate-" + subject, done: make(chan struct{})}
	deliveries, err := ch.Consume(subject, sub.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp consume %s: %w", subject, err)
	}

	q.subsMu.Lock()
	q.subs[sub] = struct{}{}
	q.subsMu.Unlock()

	go func() {
		defer close(sub.done)
		for d := range deliveries {
			q.dispatch(ctx, subject, d, handler)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { q.stop(sub) })
	}, nil
}

func (q *Queue) stop(sub *subscription) {
	_ = sub.ch.Cancel(sub.tag, false)
	<-sub.done
	_ = sub.ch.Close()
	q.subsMu.Lock()
	delete(q.subs, sub)
	q.subsMu.Unlock()
}

func (q *Queue) dispatch(base context.Context, subject string, d amqp.Delivery, handler messagequeue.Handler) {
	reqID := cast.ToString(d.Headers[messagequeue.HeaderRequestID])
	ctx := base
	if reqID != "" {
		ctx = logger.WithRequestID(ctx, reqID)
	}
	log := slog.With("subject", subject, "request_id", reqID)

	if err := messagequeue.Validate(subject, d.Body); err != nil {
		log.Warn("invalid message, moving to dlq", "error", err)
		_ = d.Nack(false, false)
		return
	}

	err := handler(ctx, subject, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("amqp ack failed", "error", ackErr)
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		_ = d.Nack(false, true)
		return
	}

	attempt := retryCount(d.Headers)
	if attempt >= q.maxRetries {
		log.Error("message handler failed, retries exhausted", "retry_count", attempt, "error", err)
		_ = d.Nack(false, false)
		return
	}

	log.Warn("message handler failed, retrying", "retry_count", attempt+1, "error", err)
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[messagequeue.HeaderRetryCount] = int32(attempt + 1)
	if pubErr := q.publish(context.WithoutCancel(ctx), subject, d.Body, headers); pubErr != nil {
		log.Error("amqp retry publish failed", "error", pubErr)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Drain stops every consumer, waits for in-flight handlers, then closes.
func (q *Queue) Drain() error {
	q.subsMu.Lock()
	subs := make([]*subscription, 0, len(q.subs))
	for s := range q.subs {
		subs = append(subs, s)
	}
	q.subsMu.Unlock()
	for _, s := range subs {
		q.stop(s)
	}
	return q.Close()
}

// Close shuts down the connection immediately.
func (q *Queue) Close() error {
	if q.conn.IsClosed() {
		return nil
	}
	if err := q.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("amqp close: %w", err)
	}
	return nil
}

// IsConnected reports whether the connection is open.
func (q *Queue) IsConnected() bool {
	return q.conn != nil && !q.conn.IsClosed()
}

// retryCount reads the Retry-Count header. Brokers may hand integers back
// as any width, or as strings when set by other producers.
func retryCount(h amqp.Table) int {
	n, err := cast.ToIntE(h[messagequeue.HeaderRetryCount])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
