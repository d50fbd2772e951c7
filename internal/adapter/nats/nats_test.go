package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/leadgate/internal/logger"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
)

func testConnect(t *testing.T, opts ...Option) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, opts...)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// testSubject returns a subject under leads.> that the validator treats
// as plain JSON.
func testSubject(t *testing.T) string {
	t.Helper()
	return "leads.test." + t.Name()
}

// dlqWatcher consumes new messages on the dead-letter subject of subject
// without running them through Subscribe.
func dlqWatcher(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: messagequeue.DLQSubject(subject),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	out := make(chan []byte, 1)
	var once sync.Once
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := testSubject(t)

	want := messagequeue.RepairGroupPayload{ContactKey: "5551234"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := make(chan messagequeue.RepairGroupPayload, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var p messagequeue.RepairGroupPayload
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		select {
		case got <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p.ContactKey != want.ContactKey {
			t.Errorf("contact_key = %q, want %q", p.ContactKey, want.ContactKey)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := testSubject(t)

	const wantReqID = "req-lead-42"

	got := make(chan string, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		select {
		case got <- logger.RequestID(ctx):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != wantReqID {
			t.Errorf("request ID = %q, want %q", id, wantReqID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_InvalidPayloadGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectDedupRepair

	dlq := dlqWatcher(t, q, subject)

	var handled atomic.Int32
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, d []byte) error {
		if string(d) == `{"contact_key":""}` {
			handled.Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte(`{"contact_key":""}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != `{"contact_key":""}` {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
	if handled.Load() != 0 {
		t.Error("handler saw a message that failed validation")
	}
}

func TestQueue_RetryThenSucceed(t *testing.T) {
	q := testConnect(t, WithMaxRetries(3))
	subject := testSubject(t)

	var calls atomic.Int32
	done := make(chan int, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, _ []byte) error {
		n := calls.Add(1)
		if n < 3 {
			return errAlwaysFail
		}
		select {
		case done <- int(n):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case n := <-done:
		if n != 3 {
			t.Errorf("succeeded on attempt %d, want 3", n)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for retried delivery")
	}
}

func TestQueue_DLQ_RetryExhaustion(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := testSubject(t)

	dlq := dlqWatcher(t, q, subject)

	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return errAlwaysFail
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// Already at the retry limit: the first failure dead-letters it.
	msg := &nats.Msg{
		Subject: subject,
		Data:    []byte(`{"exhausted":true}`),
		Header:  nats.Header{},
	}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != `{"exhausted":true}` {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "owner", []byte("alice")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "owner")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "alice" {
		t.Errorf("value = %q, want alice", entry.Value())
	}

	if err := kv.Delete(ctx, "owner"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "owner"); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"", 0},
		{"2", 2},
		{"-1", 0},
		{"junk", 0},
	}
	for _, tt := range tests {
		h := nats.Header{}
		if tt.val != "" {
			h.Set(headerRetryCount, tt.val)
		}
		if got := retryCount(h); got != tt.want {
			t.Errorf("retryCount(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestDurableName(t *testing.T) {
	if got := durableName("leads.dedup.repair"); got != "leadgate_leads_dedup_repair" {
		t.Errorf("durableName = %q", got)
	}
	if got := durableName("leads.>"); got != "leadgate_leads_all" {
		t.Errorf("durableName = %q", got)
	}
}

var errAlwaysFail = errSentinel("handler always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
