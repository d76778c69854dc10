// Package archive implements the archive writer collaborator (§6): it
// receives Trade and OrderBookSnapshot events and owns its own buffering,
// flushing on a timer and on shutdown. The CSV writer is the mandatory
// default sink; an S3 writer may be layered on as an additional, not
// replacement, sink.
package archive

import (
	"context"
	"log/slog"
	"time"

	"perp-mm/pkg/types"
)

// Writer receives archival events. Implementations must be safe for
// concurrent use by a single producer goroutine calling WriteTrade/
// WriteSnapshot and a separate shutdown path calling Flush.
type Writer interface {
	WriteTrade(types.Trade) error
	WriteSnapshot(types.OrderBookSnapshot) error
	Flush() error
	Close() error
}

// MultiWriter fans out every event to all configured sinks so a failure in
// an optional sink (e.g. S3 unreachable) never drops the mandatory local
// CSV record.
type MultiWriter struct {
	sinks  []Writer
	logger *slog.Logger
}

func NewMultiWriter(logger *slog.Logger, sinks ...Writer) *MultiWriter {
	return &MultiWriter{sinks: sinks, logger: logger.With("component", "archive")}
}

func (m *MultiWriter) WriteTrade(t types.Trade) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.WriteTrade(t); err != nil {
			m.logger.Warn("archive sink failed to write trade", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *MultiWriter) WriteSnapshot(snap types.OrderBookSnapshot) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.WriteSnapshot(snap); err != nil {
			m.logger.Warn("archive sink failed to write snapshot", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *MultiWriter) Flush() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiWriter) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunPeriodicFlush flushes w every interval until ctx is cancelled, then
// performs one final flush so shutdown never drops buffered rows (§6: "must
// flush on Drop and on shutdown signal; <=1s flush interval").
func RunPeriodicFlush(ctx context.Context, w Writer, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := w.Flush(); err != nil {
				logger.Warn("final archive flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				logger.Warn("periodic archive flush failed", "error", err)
			}
		}
	}
}
