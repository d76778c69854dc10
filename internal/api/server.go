package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perp-mm/internal/config"
	"perp-mm/internal/metrics"
	"perp-mm/internal/state"
)

// Server runs the read-only dashboard HTTP/WebSocket surface (§6). It owns
// no trading state beyond a reference to it and never mutates BotState.
type Server struct {
	cfg        config.DashboardConfig
	st         *state.State
	hub        *Hub
	handlers   *Handlers
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg config.DashboardConfig, st *state.State, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(st, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:        cfg,
		st:         st,
		hub:        hub,
		handlers:   handlers,
		httpServer: httpServer,
		logger:     logger.With("component", "api_server"),
	}
}

// Run starts the hub, the periodic snapshot broadcast/metrics loop, and the
// HTTP listener, blocking until ctx is cancelled. It satisfies
// supervisor.Task's Run signature.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("dashboard server: %w", err)
			return
		}
		serveErr <- nil
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("dashboard server shutdown error", "error", err)
			}
			return ctx.Err()
		case err := <-serveErr:
			return err
		case <-ticker.C:
			s.publish()
		}
	}
}

// publish pushes the current snapshot to connected clients and updates the
// Prometheus gauges the dashboard exposes at /metrics.
func (s *Server) publish() {
	snap := s.st.Snapshot()
	s.hub.BroadcastSnapshot(BuildSnapshot(snap))

	metrics.Mid.Set(toFloat(snap.Mid))
	metrics.InventoryQ.Set(toFloat(snap.InventoryQ))
	metrics.EquityUSD.Set(toFloat(snap.EquityUSD))
	if snap.Sigma != nil {
		metrics.Sigma.Set(*snap.Sigma)
	}
	if snap.Kappa != nil {
		metrics.Kappa.Set(*snap.Kappa)
	}
}

func toFloat(d interface{ Float64() (float64, bool) }) float64 {
	v, _ := d.Float64()
	return v
}
