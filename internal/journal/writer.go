// Package journal ships committed ledger entries to an audit sink off the
// mutation path.
package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"coinbot/internal/economy"
)

type Sink interface {
	Write(ctx context.Context, entries []economy.Entry) error
}

// Writer buffers entries and flushes them to a sink in batches. Record never
// blocks; when the buffer is full the entry is dropped and counted.
type Writer struct {
	entries    chan economy.Entry
	sink       Sink
	log        *slog.Logger
	batchSize  int
	flushEvery time.Duration
	dropped    atomic.Int64
}

func NewWriter(sink Sink, logger *slog.Logger, buffer int) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Writer{
		entries:    make(chan economy.Entry, buffer),
		sink:       sink,
		log:        logger.With("component", "journal"),
		batchSize:  128,
		flushEvery: time.Second,
	}
}

func (w *Writer) Record(e economy.Entry) {
	select {
	case w.entries <- e:
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			w.log.Warn("journal buffer full, dropping entries", "dropped", n)
		}
	}
}

func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	batch := make([]economy.Entry, 0, w.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.sink.Write(ctx, batch); err != nil {
			w.log.Error("journal flush failed", "entries", len(batch), "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			batch = w.drain(batch)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return nil
		case e := <-w.entries:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (w *Writer) drain(batch []economy.Entry) []economy.Entry {
	for {
		select {
		case e := <-w.entries:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// LogSink writes entries to a structured logger.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Write(_ context.Context, entries []economy.Entry) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	for _, e := range entries {
		log.Info("ledger entry",
			"id", e.ID,
			"user_id", e.UserID,
			"action", e.Action,
			"delta_micros", e.DeltaMicros,
			"item", e.Item,
			"quantity", e.Quantity,
			"at", e.At,
		)
	}
	return nil
}
