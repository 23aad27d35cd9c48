package strategy

import (
	"fmt"
	"sync"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// ThresholdExitStrategy is an exit strategy that emits SELL signals when
// a held symbol moves past its stop-loss or take-profit threshold
// relative to the entry price.
type ThresholdExitStrategy struct {
	*BaseStrategy

	stopLossPct   float64
	takeProfitPct float64

	mu      sync.Mutex
	entries map[string]float64 // symbol -> entry price
}

// NewThresholdExitStrategy creates a stop-loss/take-profit exit
// strategy.
func NewThresholdExitStrategy(id string) *ThresholdExitStrategy {
	return &ThresholdExitStrategy{
		BaseStrategy:  NewBaseStrategy(id, TypeExit),
		stopLossPct:   0.05,
		takeProfitPct: 0.15,
		entries:       make(map[string]float64),
	}
}

// Initialize applies the base config plus the threshold parameters.
func (s *ThresholdExitStrategy) Initialize(cfg *Config) error {
	if err := s.BaseStrategy.Initialize(cfg); err != nil {
		return err
	}
	if cfg.Parameters != nil {
		if v, ok := cfg.Parameters["stop_loss_pct"].(float64); ok {
			s.stopLossPct = v
		}
		if v, ok := cfg.Parameters["take_profit_pct"].(float64); ok {
			s.takeProfitPct = v
		}
	}
	if s.stopLossPct <= 0 || s.takeProfitPct <= 0 {
		return fmt.Errorf("threshold exit %s: thresholds must be positive", s.ID())
	}
	return nil
}

// OnMarketEvent checks the held symbol against its thresholds.
func (s *ThresholdExitStrategy) OnMarketEvent(ev *entity.MarketEvent) []*entity.Signal {
	bar := ev.Bar
	if bar == nil {
		return nil
	}
	held := s.HeldQuantity(bar.Symbol)
	if held <= 0 {
		return nil
	}

	s.mu.Lock()
	entry, ok := s.entries[bar.Symbol]
	s.mu.Unlock()
	if !ok || entry <= 0 {
		return nil
	}

	change := (bar.Close - entry) / entry
	var reason string
	var strength float64
	switch {
	case change <= -s.stopLossPct:
		reason = fmt.Sprintf("stop loss: %.2f%% below entry %.2f", -change*100, entry)
		strength = 1.0
	case change >= s.takeProfitPct:
		reason = fmt.Sprintf("take profit: %.2f%% above entry %.2f", change*100, entry)
		strength = 0.8
	default:
		return nil
	}

	sig := entity.NewSignal(s.ID(), bar.Symbol, entity.SignalSell, strength, bar.Close, reason)
	return []*entity.Signal{sig}
}

// OnFillEvent tracks entry prices alongside the base holdings
// bookkeeping.
func (s *ThresholdExitStrategy) OnFillEvent(ev *entity.FillEvent) {
	if ev == nil || ev.Fill == nil {
		return
	}
	s.BaseStrategy.OnFillEvent(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	fill := ev.Fill
	if fill.Side == entity.SideBuy {
		// First entry wins; adds do not move the threshold anchor.
		if _, ok := s.entries[fill.Symbol]; !ok {
			s.entries[fill.Symbol] = fill.Price
		}
	} else if s.HeldQuantity(fill.Symbol) <= 0 {
		delete(s.entries, fill.Symbol)
	}
}

// Reset clears the entry anchors on top of the base reset.
func (s *ThresholdExitStrategy) Reset() error {
	s.mu.Lock()
	s.entries = make(map[string]float64)
	s.mu.Unlock()
	return s.BaseStrategy.Reset()
}
