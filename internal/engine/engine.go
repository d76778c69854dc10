// Package engine wires every component into one runnable market maker
// (§2): fetches the static TradingConfig, builds the feed, estimators,
// spread calculator, order manager, fill handler, backup poller, archive,
// and persistence stores, then registers each as a supervisor.Task in
// dependency order. New() does all construction and the one blocking
// market-config fetch; Run() hands everything to the supervisor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/api"
	"perp-mm/internal/archive"
	"perp-mm/internal/backup"
	"perp-mm/internal/config"
	"perp-mm/internal/exchange"
	"perp-mm/internal/feed"
	"perp-mm/internal/fill"
	"perp-mm/internal/history"
	"perp-mm/internal/kappa"
	"perp-mm/internal/nonce"
	"perp-mm/internal/orders"
	"perp-mm/internal/signer"
	"perp-mm/internal/spread"
	"perp-mm/internal/state"
	"perp-mm/internal/store"
	"perp-mm/internal/supervisor"
	"perp-mm/internal/vol"
	"perp-mm/pkg/types"
)

const accountReconcileInterval = 30 * time.Second

// Engine owns every long-running component and the supervisor that starts
// and restarts them.
type Engine struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *exchange.Client
	st      *state.State
	hist    *history.Window
	trading types.TradingConfig

	volEst     *vol.Estimator
	kappaEst   *kappa.Estimator
	spreadCalc *spread.Calculator

	sup *supervisor.Supervisor
}

// New constructs every collaborator. It makes one blocking network call
// (GetMarketConfig) to learn the market's static trading parameters before
// anything else can be built.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	market := types.MarketID(cfg.Market.Market)

	oracle := signer.NewEIP712Oracle(cfg.Signer.PrivateKey, string(cfg.Signer.ChainID))

	client := exchange.NewClient(exchange.Config{
		BaseURL:        cfg.Venue.RESTBaseURL,
		RequestTimeout: cfg.Venue.RequestTimeout,
		MaxRetries:     cfg.Venue.MaxRetries,
		DryRun:         cfg.DryRun,
	}, oracle, logger)

	mcResp, err := client.GetMarketConfig(context.Background(), market)
	if err != nil {
		return nil, fmt.Errorf("fetch market config: %w", err)
	}
	trading, err := tradingConfigFromResponse(*mcResp, cfg.Signer)
	if err != nil {
		return nil, fmt.Errorf("parse market config: %w", err)
	}

	st := state.New()
	st.EnablePingPong(cfg.Strategy.PingPongEnabled)
	hist := history.New(cfg.Strategy.WindowHours)

	ingestor := feed.New(market, cfg.Venue.WSMarketURL, st, hist, logger)

	authHeader := "Bearer " + cfg.Signer.StarkPublicKey
	userFeed := exchange.NewUserFeed(cfg.Venue.WSUserURL, authHeader, market, logger)

	nonces := nonce.New(0)

	orderMgr := orders.New(orders.Config{
		RefreshInterval:       cfg.Strategy.OrderRefreshInterval,
		RepricingThresholdBps: cfg.Strategy.RepricingThresholdBps,
		ForceReplaceInterval:  cfg.Strategy.ForceReplaceInterval,
		MaxStaleMillis:        cfg.Strategy.MaxStaleMillis,
		TradingEnabled:        cfg.Strategy.TradingEnabled,
	}, trading, st, client, nonces, logger)

	fillHandler := fill.New(userFeed.OrderEvents(), st, orderMgr, logger)

	volCfg := vol.DefaultConfig()
	volCfg.Method = vol.Method(cfg.Vol.Method)
	volCfg.StudentTNu = cfg.Vol.StudentTNu
	volCfg.NelderMeadRestarts = cfg.Vol.NelderMeadRestarts
	volCfg.MaxIterations = cfg.Vol.MaxIterations
	volEst := vol.New(volCfg)

	kappaCfg := kappa.DefaultConfig()
	kappaCfg.Method = kappa.Method(cfg.Kappa.Method)
	kappaCfg.MinSamplesPerLevel = cfg.Kappa.MinSamplesPerLevel
	kappaCfg.DepthLevels = cfg.Kappa.DepthLevels
	kappaCfg.ObservationWindowSec = float64(cfg.Kappa.ObservationWindowSec)
	kappaEst := kappa.New(kappaCfg)

	spreadCalc := spread.New(spread.Config{
		Gamma:            cfg.Strategy.Gamma,
		MinSpreadBps:     cfg.Strategy.MinSpreadBps,
		TimeHorizonHours: cfg.Strategy.TimeHorizonHours,
		NotionalUSD:      cfg.Strategy.NotionalUSD,
		MaxStaleMillis:   cfg.Strategy.MaxStaleMillis,
	}, trading, st)

	backupPoller := backup.New(backup.Config{
		Market:   market,
		Interval: cfg.Strategy.RestBackupInterval,
	}, client, st, logger)

	pnlStore := store.NewPnLStore(filepath.Join(cfg.Store.DataDir, "pnl_state.json"))
	cursorStore := store.NewCursorStore(filepath.Join(cfg.Store.DataDir, "cursor.json"))
	if _, err := cursorStore.Load(); err != nil {
		return nil, fmt.Errorf("load resume cursor: %w", err)
	}

	startingEquity := 0.0
	if bal, err := client.GetBalance(context.Background()); err != nil {
		logger.Warn("failed to fetch starting equity, anchoring pnl at 0", "error", err)
	} else if equity, err := decimal.NewFromString(bal.EquityUSD); err == nil {
		startingEquity, _ = equity.Float64()
	}
	if _, err := pnlStore.LoadOrInit(startingEquity); err != nil {
		return nil, fmt.Errorf("load pnl anchor: %w", err)
	}

	csvWriter, err := archive.NewCSVWriter(
		filepath.Join(cfg.Archive.CSVDir, "trades.csv"),
		filepath.Join(cfg.Archive.CSVDir, "books.csv"),
	)
	if err != nil {
		return nil, fmt.Errorf("open archive csv: %w", err)
	}
	sinks := []archive.Writer{csvWriter}
	if cfg.Archive.S3Bucket != "" {
		s3Writer, err := archive.NewS3Writer(context.Background(), cfg.Archive.S3Bucket, cfg.Archive.S3Prefix, cfg.Archive.S3Region)
		if err != nil {
			logger.Warn("s3 archive sink disabled", "error", err)
		} else {
			sinks = append(sinks, s3Writer)
		}
	}
	archiveWriter := archive.NewMultiWriter(logger, sinks...)

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, st, logger)
	}

	sup := supervisor.New(supervisor.Config{
		ShutdownGrace:       cfg.Strategy.ShutdownGrace,
		ClientOrderIDPrefix: "mm-",
	}, client, archiveWriter, logger)

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		st:         st,
		hist:       hist,
		trading:    trading,
		volEst:     volEst,
		kappaEst:   kappaEst,
		spreadCalc: spreadCalc,
		sup:        sup,
	}

	// Core tasks: the Supervisor's REST sweep-on-crash applies to all of
	// these (§4.8).
	sup.Add(supervisor.Task{Name: "feed_ingestor", Core: true, Run: ingestor.Run})
	sup.Add(supervisor.Task{Name: "user_feed", Core: true, Run: userFeed.Run})
	sup.Add(supervisor.Task{Name: "fill_handler", Core: true, Run: fillHandler.Run})
	sup.Add(supervisor.Task{Name: "order_manager", Core: true, Run: orderMgr.Run})
	sup.Add(supervisor.Task{Name: "spread_loop", Core: true, Run: e.runSpreadLoop})

	// Ancillary tasks: not restarted if they exit, and don't trigger a REST
	// sweep on their own failure.
	sup.Add(supervisor.Task{Name: "backup_poller", Core: false, Run: backupPoller.Run})
	sup.Add(supervisor.Task{Name: "account_reconciler", Core: false, Run: e.runAccountReconciler})
	sup.Add(supervisor.Task{Name: "archive_flush", Core: false, Run: func(ctx context.Context) error {
		archive.RunPeriodicFlush(ctx, archiveWriter, cfg.Archive.FlushInterval, logger)
		return nil
	}})
	sup.Add(supervisor.Task{Name: "cursor_flush", Core: false, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return cursorStore.Flush()
	}})
	if apiServer != nil {
		sup.Add(supervisor.Task{Name: "dashboard", Core: false, Run: apiServer.Run})
	}

	return e, nil
}

// Run starts every component and blocks until ctx is cancelled, then runs
// the supervisor's shutdown sequence (REST sweep + archive flush, §4.8).
func (e *Engine) Run(ctx context.Context) error {
	return e.sup.Run(ctx)
}

// runSpreadLoop ticks every SpreadCalcInterval, recomputing sigma, kappa,
// and the desired quotes (§4.3, §4.4, §4.5).
func (e *Engine) runSpreadLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Strategy.SpreadCalcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.runEstimationPass(ctx)
		}
	}
}

func (e *Engine) runEstimationPass(ctx context.Context) {
	now := time.Now()
	samples := e.hist.Samples(now)
	trades := e.hist.Trades(now)

	volResult := e.volEst.Estimate(ctx, samples)
	snap := e.st.Snapshot()
	mid, _ := snap.Mid.Float64()
	tickSize, _ := e.trading.TickSize.Float64()

	kappaResult := e.kappaEst.Estimate(trades, samples, tickSize, mid)

	var sigma, kappaVal *float64
	if volResult.Kind == vol.KindOK {
		s := volResult.Estimate.Sigma
		sigma = &s
	} else {
		e.logger.Warn("volatility estimate rejected", "kind", volResult.Kind, "diagnostics", volResult.Diagnostics)
	}
	if kappaResult.Kind == kappa.KindOK {
		k := kappaResult.Estimate.KappaUSD
		kappaVal = &k
	} else {
		e.logger.Warn("kappa estimate rejected", "kind", kappaResult.Kind, "diagnostics", kappaResult.Diagnostics)
	}

	e.st.SetEstimates(sigma, kappaVal)

	if reason := e.spreadCalc.Compute(now); reason != "" {
		e.logger.Debug("desired quotes rejected", "reason", reason)
	}
}

// runAccountReconciler polls venue position/balance periodically and on
// startup (§3 Inventory q).
func (e *Engine) runAccountReconciler(ctx context.Context) error {
	e.reconcileAccount(ctx)

	ticker := time.NewTicker(accountReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.reconcileAccount(ctx)
		}
	}
}

func (e *Engine) reconcileAccount(ctx context.Context) {
	market := e.trading.Market
	if pos, err := e.client.GetPosition(ctx, market); err != nil {
		e.logger.Warn("position reconcile failed", "error", err)
	} else if qty, err := decimal.NewFromString(pos.Qty); err == nil {
		e.st.ReconcileInventory(qty)
	}

	if bal, err := e.client.GetBalance(ctx); err != nil {
		e.logger.Warn("balance reconcile failed", "error", err)
	} else if equity, err := decimal.NewFromString(bal.EquityUSD); err == nil {
		e.st.SetEquity(equity)
	}
}

// tradingConfigFromResponse parses the venue's wire-level market config
// into the decimal-typed TradingConfig used everywhere else (§3).
func tradingConfigFromResponse(resp types.MarketConfigResponse, signerCfg config.SignerConfig) (types.TradingConfig, error) {
	tickSize, err := decimal.NewFromString(resp.TickSize)
	if err != nil {
		return types.TradingConfig{}, fmt.Errorf("tick_size: %w", err)
	}
	sizeIncrement, err := decimal.NewFromString(resp.SizeIncrement)
	if err != nil {
		return types.TradingConfig{}, fmt.Errorf("size_increment: %w", err)
	}
	minNotional, err := decimal.NewFromString(resp.MinNotional)
	if err != nil {
		return types.TradingConfig{}, fmt.Errorf("min_notional: %w", err)
	}

	return types.TradingConfig{
		Market:               resp.Market,
		TickSize:             tickSize,
		SizeIncrement:        sizeIncrement,
		MinNotional:          minNotional,
		CollateralResolution: resp.CollateralResolution,
		SyntheticResolution:  resp.SyntheticResolution,
		TakerFeeRateBps:      resp.TakerFeeRateBps,
		VaultID:              signerCfg.VaultID,
		StarkPublicKey:       signerCfg.StarkPublicKey,
	}, nil
}
