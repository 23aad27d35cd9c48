package config

import (
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	yml := []byte(`
mode: backtest
account:
  account_id: bt-001
  initial_capital: 500000
portfolio:
  max_position_percent: 0.1
  max_total_position_percent: 0.9
execution:
  type: simulated
  simulation:
    enable_slippage: true
    base_slippage: 0.002
backtest:
  start_date: "2024-01-01"
  end_date: "2024-06-30"
  frequency: 1d
  universe: ["600000.SH", "000001.SZ"]
`)
	cfg, err := Parse(yml)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Account.InitialCapital != 500000 {
		t.Errorf("initial capital = %f, want 500000", cfg.Account.InitialCapital)
	}
	if cfg.Portfolio.MaxPositionPercent != 0.1 {
		t.Errorf("max position percent = %f, want 0.1", cfg.Portfolio.MaxPositionPercent)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.QueueCapacity != 10000 {
		t.Errorf("queue capacity = %d, want default 10000", cfg.Engine.QueueCapacity)
	}
	if cfg.Execution.Fees.CommissionRate != 0.0003 {
		t.Errorf("commission rate = %f, want default 0.0003", cfg.Execution.Fees.CommissionRate)
	}
	if !cfg.Execution.Simulation.EnableSlippage || cfg.Execution.Simulation.BaseSlippage != 0.002 {
		t.Error("simulation overrides not applied")
	}

	start, end, err := cfg.BacktestRange()
	if err != nil {
		t.Fatal(err)
	}
	if start.IsZero() || end.Before(start) {
		t.Errorf("backtest range = %v..%v", start, end)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "paper" }},
		{"zero capital", func(c *Config) { c.Account.InitialCapital = 0 }},
		{"position percent above 1", func(c *Config) { c.Portfolio.MaxPositionPercent = 1.5 }},
		{"total below per-symbol", func(c *Config) {
			c.Portfolio.MaxPositionPercent = 0.5
			c.Portfolio.MaxTotalPositionPercent = 0.3
		}},
		{"unknown sizing method", func(c *Config) { c.Portfolio.PositionSizeMethod = "kelly" }},
		{"bad execution type", func(c *Config) { c.Execution.Type = "paper" }},
		{"rejection probability", func(c *Config) { c.Execution.Simulation.RejectionProbability = 2 }},
		{"inverted delay range", func(c *Config) {
			c.Execution.Simulation.EnableDelayedExecution = true
			c.Execution.Simulation.MinExecutionDelayMs = 100
			c.Execution.Simulation.MaxExecutionDelayMs = 10
		}},
		{"zero max strategies", func(c *Config) { c.Strategy.MaxStrategies = 0 }},
		{"bad frequency", func(c *Config) { c.Backtest.Frequency = "2d" }},
		{"inverted dates", func(c *Config) {
			c.Backtest.StartDate = "2024-06-01"
			c.Backtest.EndDate = "2024-01-01"
		}},
		{"duplicate strategy id", func(c *Config) {
			c.Strategy.Items = []StrategyItemConfig{{ID: "a"}, {ID: "a"}}
		}},
		{"live without broker url", func(c *Config) {
			c.Mode = ModeLive
			c.Execution.Type = "live"
		}},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestParseUnknownKeysIgnored(t *testing.T) {
	cfg, err := Parse([]byte("mode: backtest\nfuture_feature:\n  x: 1\n"))
	if err != nil {
		t.Fatalf("unknown key must not fail parse: %v", err)
	}
	if cfg.Mode != ModeBacktest {
		t.Errorf("mode = %s", cfg.Mode)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("mode: [unclosed")); err == nil {
		t.Error("malformed yaml must fail")
	}
}
