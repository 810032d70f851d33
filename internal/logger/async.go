package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops the async handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser is returned in synchronous mode, where there is nothing to flush.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from log writing so a burst of
// webhook deliveries never stalls on slow stdout. Records go through a
// bounded channel to background writers; when the channel is full the
// record is dropped and counted rather than blocking ingestion.
type AsyncHandler struct {
	inner   slog.Handler
	records chan slog.Record
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler starts the given number of writer goroutines draining a
// buffer of the given capacity into inner.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		records: make(chan slog.Record, capacity),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go h.write()
	}
	return h
}

func (h *AsyncHandler) write() {
	defer h.wg.Done()
	for rec := range h.records {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.records <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs wraps a derived inner handler over the shared buffer.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		records: h.records,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// WithGroup wraps a derived inner handler over the shared buffer.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		records: h.records,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// DroppedCount reports how many records were discarded under load.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and waits for the writers to drain the
// buffer. Called once on shutdown, after the HTTP server has stopped.
func (h *AsyncHandler) Close() {
	close(h.records)
	h.wg.Wait()
}
