// Package config loads and validates the typed YAML configuration for
// the trading system. Unknown top-level keys are logged and ignored so
// newer config files keep working against older binaries.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Mode selects the overall operating mode.
const (
	ModeBacktest = "backtest"
	ModeLive     = "live"
)

// EngineConfig tunes the event engine.
type EngineConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	InboxSize     int `yaml:"inbox_size"`
	WorkerThreads int `yaml:"worker_threads"`
	TimeoutMs     int `yaml:"timeout_ms"`
}

// AccountConfig identifies and funds the trading account.
type AccountConfig struct {
	AccountID      string  `yaml:"account_id"`
	InitialCapital float64 `yaml:"initial_capital"`
}

// PortfolioConfig holds the sizing and exposure limits.
type PortfolioConfig struct {
	MaxPositionPercent      float64 `yaml:"max_position_percent"`
	MaxTotalPositionPercent float64 `yaml:"max_total_position_percent"`
	MinOrderAmount          float64 `yaml:"min_order_amount"`
	PositionSizeMethod      string  `yaml:"position_size_method"`
	DefaultPositionSize     float64 `yaml:"default_position_size"`
}

// RiskConfig holds the account-level risk limits.
type RiskConfig struct {
	MaxDailyLossPercent float64 `yaml:"max_daily_loss_percent"`
	MaxDrawdownPercent  float64 `yaml:"max_drawdown_percent"`
	MaxCorrelation      float64 `yaml:"max_correlation"` // reserved
}

// SimulationConfig tunes the simulated execution handler.
type SimulationConfig struct {
	BaseSlippage   float64 `yaml:"base_slippage"`
	MaxSlippage    float64 `yaml:"max_slippage"`
	EnableSlippage bool    `yaml:"enable_slippage"`

	PartialFillProbability float64 `yaml:"partial_fill_probability"`
	MinPartialFillRatio    float64 `yaml:"min_partial_fill_ratio"`
	EnablePartialFill      bool    `yaml:"enable_partial_fill"`

	RejectionProbability float64 `yaml:"rejection_probability"`

	MinExecutionDelayMs    int  `yaml:"min_execution_delay_ms"`
	MaxExecutionDelayMs    int  `yaml:"max_execution_delay_ms"`
	EnableDelayedExecution bool `yaml:"enable_delayed_execution"`
}

// LiveBrokerConfig configures the live broker connection.
type LiveBrokerConfig struct {
	URL           string `yaml:"url"`
	Account       string `yaml:"account"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	MaxRetryCount int    `yaml:"max_retry_count"`
	OrdersPerSec  int    `yaml:"orders_per_sec"`
}

// ExecutionConfig selects and tunes the execution handler.
type ExecutionConfig struct {
	Type       string             `yaml:"type"` // simulated | live
	Simulation SimulationConfig   `yaml:"simulation"`
	Live       LiveBrokerConfig   `yaml:"live"`
	Fees       entity.FeeSchedule `yaml:"fees"`
}

// StrategyItemConfig describes one strategy instance to load.
type StrategyItemConfig struct {
	ID         string                 `yaml:"id"`
	Type       string                 `yaml:"type"`
	Enabled    bool                   `yaml:"enabled"`
	Universe   []string               `yaml:"universe"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// StrategyConfig holds the strategy manager limits plus the instances.
type StrategyConfig struct {
	MaxStrategies        int                  `yaml:"max_strategies"`
	SignalTimeoutSeconds int64                `yaml:"signal_timeout_seconds"`
	Items                []StrategyItemConfig `yaml:"items"`
}

// BacktestConfig bounds a backtest run.
type BacktestConfig struct {
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	Universe  []string `yaml:"universe"`
	Frequency string   `yaml:"frequency"`
}

// DataConfig points at the market data stores.
type DataConfig struct {
	RootPath    string `yaml:"root_path"`
	PreloadDays int    `yaml:"preload_days"`
	SQLitePath  string `yaml:"sqlite_path"`
	NATSURL     string `yaml:"nats_url"`
}

// TimerConfig sets the recurrence intervals in milliseconds; zero
// disables the timer.
type TimerConfig struct {
	MarketDataUpdateMs   int64 `yaml:"market_data_update_ms"`
	RiskCheckMs          int64 `yaml:"risk_check_ms"`
	HeartbeatMs          int64 `yaml:"heartbeat_ms"`
	CleanupMs            int64 `yaml:"cleanup_ms"`
	StrategyTimerMs      int64 `yaml:"strategy_timer_ms"`
	PortfolioRebalanceMs int64 `yaml:"portfolio_rebalance_ms"`
}

// APIConfig configures the operator HTTP interface.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the full configuration tree.
type Config struct {
	Mode      string          `yaml:"mode"`
	Engine    EngineConfig    `yaml:"engine"`
	Account   AccountConfig   `yaml:"account"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Data      DataConfig      `yaml:"data"`
	Timers    TimerConfig     `yaml:"timers"`
	API       APIConfig       `yaml:"api"`
}

// knownTopLevelKeys is the recognized configuration surface.
var knownTopLevelKeys = map[string]bool{
	"mode": true, "engine": true, "account": true, "portfolio": true,
	"risk": true, "execution": true, "strategy": true, "backtest": true,
	"data": true, "timers": true, "api": true,
}

// Default returns a configuration with every knob at its default.
func Default() *Config {
	return &Config{
		Mode: ModeBacktest,
		Engine: EngineConfig{
			QueueCapacity: 10000,
			InboxSize:     1000,
			TimeoutMs:     100,
		},
		Account: AccountConfig{
			AccountID:      "default",
			InitialCapital: 1_000_000,
		},
		Portfolio: PortfolioConfig{
			MaxPositionPercent:      0.05,
			MaxTotalPositionPercent: 0.8,
			MinOrderAmount:          1000,
			PositionSizeMethod:      "fixed_amount",
			DefaultPositionSize:     10000,
		},
		Risk: RiskConfig{
			MaxDailyLossPercent: 0.03,
			MaxDrawdownPercent:  0.1,
		},
		Execution: ExecutionConfig{
			Type: "simulated",
			Simulation: SimulationConfig{
				BaseSlippage:        0.001,
				MaxSlippage:         0.01,
				MinPartialFillRatio: 0.3,
				MinExecutionDelayMs: 10,
				MaxExecutionDelayMs: 100,
			},
			Live: LiveBrokerConfig{
				TimeoutMs:     5000,
				MaxRetryCount: 3,
				OrdersPerSec:  20,
			},
			Fees: entity.DefaultFeeSchedule(),
		},
		Strategy: StrategyConfig{
			MaxStrategies:        50,
			SignalTimeoutSeconds: entity.DefaultSignalValiditySeconds,
		},
		Backtest: BacktestConfig{
			Frequency: string(entity.FreqDaily),
		},
		Data: DataConfig{
			RootPath:    "data",
			PreloadDays: 60,
		},
		Timers: TimerConfig{
			RiskCheckMs: 60_000,
			HeartbeatMs: 30_000,
			CleanupMs:   300_000,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	warnUnknownKeys(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func warnUnknownKeys(data []byte) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	for key := range raw {
		if !knownTopLevelKeys[key] {
			log.Printf("[Config] Ignoring unknown config key %q", key)
		}
	}
}

// Validate checks field ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Mode != ModeBacktest && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode %q (want backtest or live)", c.Mode)
	}
	if c.Engine.QueueCapacity <= 0 {
		return fmt.Errorf("engine.queue_capacity must be positive, got %d", c.Engine.QueueCapacity)
	}
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive, got %.2f", c.Account.InitialCapital)
	}
	if c.Portfolio.MaxPositionPercent <= 0 || c.Portfolio.MaxPositionPercent > 1 {
		return fmt.Errorf("portfolio.max_position_percent must be in (0,1], got %.4f",
			c.Portfolio.MaxPositionPercent)
	}
	if c.Portfolio.MaxTotalPositionPercent < c.Portfolio.MaxPositionPercent ||
		c.Portfolio.MaxTotalPositionPercent > 1 {
		return fmt.Errorf("portfolio.max_total_position_percent must be in [%.4f,1], got %.4f",
			c.Portfolio.MaxPositionPercent, c.Portfolio.MaxTotalPositionPercent)
	}
	if m := c.Portfolio.PositionSizeMethod; m != "" && m != "fixed_amount" {
		return fmt.Errorf("portfolio.position_size_method %q not supported", m)
	}
	if c.Risk.MaxDailyLossPercent <= 0 || c.Risk.MaxDrawdownPercent <= 0 {
		return fmt.Errorf("risk limits must be positive")
	}
	if c.Execution.Type != "simulated" && c.Execution.Type != "live" {
		return fmt.Errorf("execution.type %q not supported", c.Execution.Type)
	}
	if c.Mode == ModeLive && c.Execution.Type == "live" && c.Execution.Live.URL == "" {
		return fmt.Errorf("execution.live.url required in live mode")
	}
	sim := c.Execution.Simulation
	if sim.RejectionProbability < 0 || sim.RejectionProbability > 1 {
		return fmt.Errorf("execution.simulation.rejection_probability must be in [0,1]")
	}
	if sim.PartialFillProbability < 0 || sim.PartialFillProbability > 1 {
		return fmt.Errorf("execution.simulation.partial_fill_probability must be in [0,1]")
	}
	if sim.MinPartialFillRatio < 0 || sim.MinPartialFillRatio > 1 {
		return fmt.Errorf("execution.simulation.min_partial_fill_ratio must be in [0,1]")
	}
	if sim.EnableDelayedExecution && sim.MaxExecutionDelayMs < sim.MinExecutionDelayMs {
		return fmt.Errorf("execution.simulation delay range inverted: [%d,%d]",
			sim.MinExecutionDelayMs, sim.MaxExecutionDelayMs)
	}
	if c.Strategy.MaxStrategies <= 0 {
		return fmt.Errorf("strategy.max_strategies must be positive, got %d", c.Strategy.MaxStrategies)
	}
	if c.Mode == ModeBacktest {
		if _, _, err := c.BacktestRange(); err != nil {
			return err
		}
		if f := entity.Frequency(c.Backtest.Frequency); !f.Valid() {
			return fmt.Errorf("backtest.frequency %q not recognized", c.Backtest.Frequency)
		}
	}
	seen := make(map[string]bool)
	for _, item := range c.Strategy.Items {
		if item.ID == "" {
			return fmt.Errorf("strategy item missing id")
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate strategy id %q", item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

// BacktestRange parses the configured date window. Empty dates are
// allowed and returned as zero times.
func (c *Config) BacktestRange() (start, end time.Time, err error) {
	start, err = parseDate(c.Backtest.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start_date: %w", err)
	}
	end, err = parseDate(c.Backtest.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end_date: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest date range inverted: %s..%s",
			c.Backtest.StartDate, c.Backtest.EndDate)
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
