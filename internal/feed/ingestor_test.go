package feed

import (
	"log/slog"
	"os"
	"testing"

	"perp-mm/internal/history"
	"perp-mm/internal/state"
)

func testIngestor() *Ingestor {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New("ETH-USD", "wss://example.invalid", state.New(), history.New(24), logger)
}

func TestHandleMessageSnapshotPublishesBook(t *testing.T) {
	in := testIngestor()
	in.handleMessage([]byte(`{"kind":"SNAPSHOT","market":"ETH-USD","sequence":1,"bids":[{"price":"2999.9","size":"1"}],"asks":[{"price":"3000.1","size":"1"}]}`))

	v := in.state.Snapshot()
	if v.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", v.Sequence)
	}
	if in.IsStale() {
		t.Fatalf("expected not stale after a clean snapshot")
	}
}

func TestHandleMessageGapMarksStale(t *testing.T) {
	in := testIngestor()
	in.handleMessage([]byte(`{"kind":"SNAPSHOT","market":"ETH-USD","sequence":1}`))
	in.handleMessage([]byte(`{"kind":"DELTA","market":"ETH-USD","sequence":3,"side":"BUY","price":"100","size":"1"}`))

	if !in.IsStale() {
		t.Fatalf("expected stale after a sequence gap")
	}
}

func TestHandleMessageMalformedIsIgnored(t *testing.T) {
	in := testIngestor()
	in.handleMessage([]byte(`not json`))
	// Should not panic and state should remain untouched.
	v := in.state.Snapshot()
	if v.Sequence != 0 {
		t.Fatalf("expected sequence unchanged at 0, got %d", v.Sequence)
	}
}
