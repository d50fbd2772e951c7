package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncOptions sizes the async handler.
type AsyncOptions struct {
	Buffer  int // queued records before drops start
	Workers int
}

// DefaultAsyncOptions suits a single API or worker process.
func DefaultAsyncOptions() AsyncOptions {
	return AsyncOptions{Buffer: 4096, Workers: 2}
}

// asyncState is shared by every handler derived from one AsyncHandler.
type asyncState struct {
	queue   chan asyncRecord
	wg      sync.WaitGroup
	dropped atomic.Int64

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
}

type asyncRecord struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler hands records to background workers through a bounded
// queue. When the queue is full the record is dropped and counted.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler starts opts.Workers workers writing to inner.
func NewAsyncHandler(inner slog.Handler, opts AsyncOptions) *AsyncHandler {
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	st := &asyncState{queue: make(chan asyncRecord, opts.Buffer)}
	for range opts.Workers {
		st.wg.Add(1)
		go st.run()
	}
	return &AsyncHandler{inner: inner, state: st}
}

func (s *asyncState) run() {
	defer s.wg.Done()
	for r := range s.queue {
		_ = r.h.Handle(context.Background(), r.rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues a clone of rec for the inner handler bound at derivation time.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	if h.state.closed {
		h.state.dropped.Add(1)
		return nil
	}
	select {
	case h.state.queue <- asyncRecord{h: h.inner, rec: rec.Clone()}:
	default:
		h.state.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// Dropped returns how many records were discarded because the queue was full.
func (h *AsyncHandler) Dropped() int64 {
	return h.state.dropped.Load()
}

// Close stops accepting records and waits until the queue is written out.
// Records handled after Close count as dropped.
func (h *AsyncHandler) Close() {
	h.state.mu.Lock()
	if !h.state.closed {
		h.state.closed = true
		close(h.state.queue)
	}
	h.state.mu.Unlock()
	h.state.wg.Wait()
}
