package strategy

import (
	"fmt"
	"sync"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
	"github.com/yourusername/quantcapital-engine/pkg/indicators"
)

// maCrossState is the per-symbol moving-average pair plus the previous
// relation, for cross detection.
type maCrossState struct {
	fast *indicators.SMA
	slow *indicators.SMA

	prevDiff float64
	hasPrev  bool
}

// MACrossStrategy is an entry strategy emitting BUY signals on a golden
// cross of the fast moving average over the slow one and SELL signals
// on the death cross back below it.
type MACrossStrategy struct {
	*BaseStrategy

	fastPeriod int
	slowPeriod int
	strength   float64

	mu      sync.Mutex
	symbols map[string]*maCrossState
}

// NewMACrossStrategy creates an MA-cross entry strategy.
func NewMACrossStrategy(id string) *MACrossStrategy {
	return &MACrossStrategy{
		BaseStrategy: NewBaseStrategy(id, TypeEntry),
		fastPeriod:   5,
		slowPeriod:   20,
		strength:     0.6,
		symbols:      make(map[string]*maCrossState),
	}
}

// Initialize applies the base config plus the period parameters.
func (s *MACrossStrategy) Initialize(cfg *Config) error {
	if err := s.BaseStrategy.Initialize(cfg); err != nil {
		return err
	}
	if cfg.Parameters != nil {
		if v, ok := toInt(cfg.Parameters["fast_period"]); ok {
			s.fastPeriod = v
		}
		if v, ok := toInt(cfg.Parameters["slow_period"]); ok {
			s.slowPeriod = v
		}
		if v, ok := cfg.Parameters["strength"].(float64); ok {
			s.strength = v
		}
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("ma cross %s: fast period %d must be below slow period %d",
			s.ID(), s.fastPeriod, s.slowPeriod)
	}
	return nil
}

// OnMarketEvent updates the symbol's averages and emits a BUY signal on
// a golden cross or a SELL signal on a death cross.
func (s *MACrossStrategy) OnMarketEvent(ev *entity.MarketEvent) []*entity.Signal {
	bar := ev.Bar
	if bar == nil {
		return nil
	}

	s.mu.Lock()
	state, ok := s.symbols[bar.Symbol]
	if !ok {
		state = &maCrossState{
			fast: indicators.NewSMA(s.fastPeriod, s.slowPeriod*2),
			slow: indicators.NewSMA(s.slowPeriod, s.slowPeriod*2),
		}
		s.symbols[bar.Symbol] = state
	}
	s.mu.Unlock()

	state.fast.Update(bar)
	state.slow.Update(bar)
	if !state.fast.IsReady() || !state.slow.IsReady() {
		return nil
	}

	diff := state.fast.Value() - state.slow.Value()
	crossedUp := state.hasPrev && state.prevDiff <= 0 && diff > 0
	crossedDown := state.hasPrev && state.prevDiff >= 0 && diff < 0
	state.prevDiff = diff
	state.hasPrev = true

	switch {
	case crossedUp:
		sig := entity.NewSignal(s.ID(), bar.Symbol, entity.SignalBuy, s.strength, bar.Close,
			fmt.Sprintf("ma%d crossed above ma%d", s.fastPeriod, s.slowPeriod))
		return []*entity.Signal{sig}
	case crossedDown:
		sig := entity.NewSignal(s.ID(), bar.Symbol, entity.SignalSell, s.strength, bar.Close,
			fmt.Sprintf("ma%d crossed below ma%d", s.fastPeriod, s.slowPeriod))
		return []*entity.Signal{sig}
	}
	return nil
}

// Reset clears the per-symbol averages on top of the base reset.
func (s *MACrossStrategy) Reset() error {
	s.mu.Lock()
	s.symbols = make(map[string]*maCrossState)
	s.mu.Unlock()
	return s.BaseStrategy.Reset()
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
