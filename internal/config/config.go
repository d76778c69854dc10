// Package config defines all configuration for the market-making engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Market    MarketConfig    `mapstructure:"market"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Vol       VolConfig       `mapstructure:"volatility"`
	Kappa     KappaConfig     `mapstructure:"kappa"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// MarketConfig names the single market this engine instance quotes (§3).
type MarketConfig struct {
	Market string `mapstructure:"market"` // e.g. "ETH-USD"
}

// SignerConfig holds the key material used by the signing oracle (§6, §9).
// The engine always constructs the native EIP-712 oracle from PrivateKey and
// ChainID; it does not read ExternalOracle, which Validate only accepts in
// place of a private key.
type SignerConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	ChainID        string `mapstructure:"chain_id"` // SN_MAIN or SN_SEPOLIA
	VaultID        string `mapstructure:"vault_id"`
	StarkPublicKey string `mapstructure:"stark_public_key"`
	ExternalOracle string `mapstructure:"external_oracle"` // optional subprocess path; not used to select the oracle
}

// VenueConfig holds REST/WS endpoints and request tuning.
type VenueConfig struct {
	RESTBaseURL    string        `mapstructure:"rest_base_url"`
	WSMarketURL    string        `mapstructure:"ws_market_url"`
	WSUserURL      string        `mapstructure:"ws_user_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// StrategyConfig tunes the Avellaneda-Stoikov quoting loop (§4.5, §4.6, §6).
//
//   - NotionalUSD: target notional size per quote.
//   - Gamma: risk aversion parameter. Higher = tighter spread, less inventory risk.
//   - MinSpreadBps: minimum spread floor in basis points.
//   - TimeHorizonHours: AS time horizon T, expressed in hours.
//   - WindowHours: lookback window for trades/top-of-book history (§4.2).
//   - SpreadCalcInterval: how often sigma/kappa/spread are recomputed.
//   - OrderRefreshInterval: how often the order manager reconciles live vs desired quotes.
//   - RepricingThresholdBps: minimum desired-vs-live price drift before replacing an order.
//   - ForceReplaceInterval: replace resting orders unconditionally after this long.
//   - PingPongEnabled: restrict to one live side at a time, alternating on fill (§3).
//   - MaxStaleMillis: treat the book as stale (quote-suspending) past this age.
//   - RestBackupInterval: REST mid-price fallback poll cadence when the feed is stale.
//   - ShutdownGrace: how long shutdown waits for running tasks to stop before the REST sweep + archive flush.
type StrategyConfig struct {
	NotionalUSD           float64       `mapstructure:"notional_usd"`
	Gamma                 float64       `mapstructure:"gamma"`
	MinSpreadBps          float64       `mapstructure:"minimum_spread_bps"`
	TimeHorizonHours      float64       `mapstructure:"time_horizon_hours"`
	WindowHours           float64       `mapstructure:"window_hours"`
	SpreadCalcInterval    time.Duration `mapstructure:"spread_calc_interval_sec"`
	OrderRefreshInterval  time.Duration `mapstructure:"order_refresh_interval_sec"`
	RepricingThresholdBps float64       `mapstructure:"repricing_threshold_bps"`
	ForceReplaceInterval  time.Duration `mapstructure:"force_replace_interval_sec"`
	PingPongEnabled       bool          `mapstructure:"ping_pong_enabled"`
	MaxStaleMillis        int64         `mapstructure:"max_stale_ms"`
	RestBackupInterval    time.Duration `mapstructure:"rest_backup_interval_sec"`
	TradingEnabled        bool          `mapstructure:"trading_enabled"`
	ShutdownGrace         time.Duration `mapstructure:"shutdown_grace_sec"`
}

// VolConfig selects and tunes the volatility estimator (§4.3).
type VolConfig struct {
	Method             string  `mapstructure:"sigma_estimation_method"` // simple|garch|garch_t|external
	StudentTNu         float64 `mapstructure:"student_t_nu"`
	NelderMeadRestarts int     `mapstructure:"nelder_mead_restarts"`
	MaxIterations      int     `mapstructure:"max_iterations"`
}

// KappaConfig selects and tunes the order-flow intensity estimator (§4.4).
type KappaConfig struct {
	Method               string `mapstructure:"k_estimation_method"` // simple|virtual|depth
	MinSamplesPerLevel   int    `mapstructure:"k_min_samples_per_level"`
	DepthLevels          int    `mapstructure:"depth_levels"`
	ObservationWindowSec int    `mapstructure:"observation_window_sec"`
}

// StoreConfig sets where persisted state (PnL anchor, resume cursor) lives.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// ArchiveConfig controls the CSV (and optional S3) archive writer (§6).
type ArchiveConfig struct {
	CSVDir        string        `mapstructure:"csv_dir"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	S3Bucket      string        `mapstructure:"s3_bucket"` // "" disables the S3 sink
	S3Prefix      string        `mapstructure:"s3_prefix"`
	S3Region      string        `mapstructure:"s3_region"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the observability HTTP surface — ambient, not
// part of the core correctness contract.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MM_SIGNER_PRIVATE_KEY, MM_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env.
	if key := os.Getenv("MM_SIGNER_PRIVATE_KEY"); key != "" {
		cfg.Signer.PrivateKey = key
	}
	if v := os.Getenv("MM_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Strategy.SpreadCalcInterval == 0 {
		c.Strategy.SpreadCalcInterval = 60 * time.Second
	}
	if c.Strategy.OrderRefreshInterval == 0 {
		c.Strategy.OrderRefreshInterval = 250 * time.Millisecond
	}
	if c.Strategy.ForceReplaceInterval == 0 {
		c.Strategy.ForceReplaceInterval = 60 * time.Second
	}
	if c.Strategy.MaxStaleMillis == 0 {
		c.Strategy.MaxStaleMillis = 2000
	}
	if c.Strategy.RestBackupInterval == 0 {
		c.Strategy.RestBackupInterval = 2 * time.Second
	}
	if c.Strategy.ShutdownGrace == 0 {
		c.Strategy.ShutdownGrace = 5 * time.Second
	}
	if c.Strategy.WindowHours == 0 {
		c.Strategy.WindowHours = 24
	}
	if c.Vol.Method == "" {
		c.Vol.Method = "garch_t"
	}
	if c.Vol.NelderMeadRestarts == 0 {
		c.Vol.NelderMeadRestarts = 3
	}
	if c.Vol.MaxIterations == 0 {
		c.Vol.MaxIterations = 500
	}
	if c.Vol.StudentTNu == 0 {
		c.Vol.StudentTNu = 5
	}
	if c.Kappa.Method == "" {
		c.Kappa.Method = "depth"
	}
	if c.Kappa.MinSamplesPerLevel == 0 {
		c.Kappa.MinSamplesPerLevel = 5
	}
	if c.Kappa.DepthLevels == 0 {
		c.Kappa.DepthLevels = 18
	}
	if c.Venue.RequestTimeout == 0 {
		c.Venue.RequestTimeout = 30 * time.Second
	}
	if c.Venue.MaxRetries == 0 {
		c.Venue.MaxRetries = 3
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = time.Second
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Market.Market == "" {
		return fmt.Errorf("market.market is required")
	}
	if c.Signer.PrivateKey == "" && c.Signer.ExternalOracle == "" {
		return fmt.Errorf("signer.private_key or signer.external_oracle is required")
	}
	if c.Signer.ChainID == "" {
		return fmt.Errorf("signer.chain_id is required")
	}
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if c.Strategy.Gamma <= 0 || c.Strategy.Gamma > 1.0 {
		return fmt.Errorf("strategy.gamma must be in (0, 1.0]")
	}
	if c.Strategy.NotionalUSD <= 0 {
		return fmt.Errorf("strategy.notional_usd must be > 0")
	}
	if c.Strategy.TimeHorizonHours <= 0 {
		return fmt.Errorf("strategy.time_horizon_hours must be > 0")
	}
	switch c.Vol.Method {
	case "simple", "garch", "garch_t", "external":
	default:
		return fmt.Errorf("volatility.sigma_estimation_method must be one of: simple, garch, garch_t, external")
	}
	switch c.Kappa.Method {
	case "simple", "virtual", "depth":
	default:
		return fmt.Errorf("kappa.k_estimation_method must be one of: simple, virtual, depth")
	}
	return nil
}
