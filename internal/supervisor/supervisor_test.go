package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"perp-mm/internal/exchange"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunStopsAllTasksOnContextCancel(t *testing.T) {
	s := New(Config{ShutdownGrace: 50 * time.Millisecond}, nil, nil, testLogger())
	var ran int32
	s.Add(Task{Name: "t1", Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected the task to have run")
	}
}

func TestSuperviseRestartsCoreTaskWithBackoff(t *testing.T) {
	var calls int32
	task := Task{
		Name: "core",
		Core: true,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if n < 3 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	s := New(Config{ShutdownGrace: 50 * time.Millisecond}, nil, nil, testLogger())
	s.Add(task)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()

	go s.Run(ctx)

	// Backoff is 1s then 2s, so the third run starts about 3s in.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) >= 3 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("expected at least 3 runs, got %d", calls)
	}
	cancel()
}

func TestSweepOrdersCallsCancelAllForPrefix(t *testing.T) {
	var sawPrefix string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawPrefix = r.URL.Query().Get("client_order_id_prefix")
	}))
	defer srv.Close()

	client := exchange.NewClient(exchange.Config{BaseURL: srv.URL, RequestTimeout: time.Second}, nil, testLogger())
	s := New(Config{ClientOrderIDPrefix: "mm-1"}, client, nil, testLogger())
	s.sweepOrders(context.Background())

	if sawPrefix != "mm-1" {
		t.Fatalf("expected sweep to pass prefix mm-1, got %q", sawPrefix)
	}
}
