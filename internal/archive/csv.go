package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"perp-mm/pkg/types"
)

// CSVWriter is the mandatory default archive sink. It appends Trade and
// OrderBookSnapshot rows to two separate RFC 4180 files (encoding/csv
// handles the quoting/escaping), buffered by csv.Writer and flushed
// explicitly rather than per-row.
type CSVWriter struct {
	mu sync.Mutex

	tradesFile *os.File
	tradesCSV  *csv.Writer
	booksFile  *os.File
	booksCSV   *csv.Writer
}

// NewCSVWriter opens (creating if absent, appending if present) the trades
// and order-book-snapshot CSV files, writing a header row only when the
// file did not already exist.
func NewCSVWriter(tradesPath, booksPath string) (*CSVWriter, error) {
	tradesFile, tradesNew, err := openForAppend(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("open trades csv: %w", err)
	}
	booksFile, booksNew, err := openForAppend(booksPath)
	if err != nil {
		tradesFile.Close()
		return nil, fmt.Errorf("open books csv: %w", err)
	}

	w := &CSVWriter{
		tradesFile: tradesFile,
		tradesCSV:  csv.NewWriter(tradesFile),
		booksFile:  booksFile,
		booksCSV:   csv.NewWriter(booksFile),
	}

	if tradesNew {
		w.tradesCSV.Write([]string{"trade_id", "market", "ts_millis", "price", "qty", "aggressor"})
	}
	if booksNew {
		w.booksCSV.Write([]string{"market", "ts_millis", "best_bid", "best_ask", "mid"})
	}
	w.tradesCSV.Flush()
	w.booksCSV.Flush()
	return w, nil
}

func openForAppend(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, err
	}
	return f, isNew, nil
}

// WriteTrade appends one trade row. It does not flush; call Flush (or rely
// on RunPeriodicFlush) to push buffered rows to disk.
func (w *CSVWriter) WriteTrade(t types.Trade) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tradesCSV.Write([]string{
		t.TradeID,
		string(t.Market),
		fmt.Sprintf("%d", t.TSMillis),
		t.Price.String(),
		t.Qty.String(),
		string(t.Aggressor),
	})
}

// WriteSnapshot appends one order-book-snapshot row.
func (w *CSVWriter) WriteSnapshot(s types.OrderBookSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.booksCSV.Write([]string{
		string(s.Market),
		fmt.Sprintf("%d", s.TSMillis),
		s.BestBid.String(),
		s.BestAsk.String(),
		s.Mid.String(),
	})
}

// Flush pushes any buffered rows to disk.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tradesCSV.Flush()
	if err := w.tradesCSV.Error(); err != nil {
		return err
	}
	w.booksCSV.Flush()
	return w.booksCSV.Error()
}

// Close flushes and closes the underlying files.
func (w *CSVWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.tradesFile.Close(); err != nil {
		return err
	}
	return w.booksFile.Close()
}
