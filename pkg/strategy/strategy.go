// Package strategy hosts the strategy contract, the shared base
// implementation and the manager that routes bus events to running
// strategies.
package strategy

import (
	"fmt"
	"sync"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Type classifies what a strategy watches and when it acts.
type Type string

const (
	// TypeEntry opens positions; it watches the universe minus what it
	// already holds.
	TypeEntry Type = "ENTRY"

	// TypeExit closes positions; it watches exactly what it holds.
	TypeExit Type = "EXIT"

	// TypeUniversalStop is a catastrophic-stop sweep; it watches every
	// held symbol across all strategies.
	TypeUniversalStop Type = "UNIVERSAL_STOP"
)

// Status is the lifecycle state of a strategy.
type Status string

const (
	StatusNotInitialized Status = "NOT_INITIALIZED"
	StatusInitialized    Status = "INITIALIZED"
	StatusRunning        Status = "RUNNING"
	StatusPaused         Status = "PAUSED"
	StatusStopped        Status = "STOPPED"
	StatusError          Status = "ERROR"
)

// Config carries one strategy instance's settings.
type Config struct {
	ID         string
	Type       Type
	Universe   []string
	Parameters map[string]interface{}
	Enabled    bool
}

// HoldingsProvider reports the held symbols across all strategies;
// universal-stop strategies watch this set.
type HoldingsProvider interface {
	HeldSymbols() []string
}

// Strategy is the contract every strategy implements. Callbacks are
// invoked serially from the manager's worker.
type Strategy interface {
	ID() string
	StrategyType() Type
	Status() Status

	// WatchedSymbols is the dynamic set of symbols of interest right
	// now, derived from the strategy type and current holdings.
	WatchedSymbols() map[string]bool

	// OnMarketEvent consumes a bar and may return signals.
	OnMarketEvent(ev *entity.MarketEvent) []*entity.Signal

	// OnFillEvent updates the strategy's own bookkeeping.
	OnFillEvent(ev *entity.FillEvent)

	// OnTimerEvent is the periodic housekeeping hook.
	OnTimerEvent(ev *entity.TimerEvent)

	Initialize(cfg *Config) error
	Start() error
	Stop() error
	Reset() error
	UpdateConfig(cfg *Config) error
}

// BaseStrategy carries the state common to all strategies: identity,
// status, universe and holdings attributed to this strategy. Concrete
// strategies embed it and implement the event callbacks.
type BaseStrategy struct {
	id    string
	stype Type

	mu       sync.RWMutex
	status   Status
	universe map[string]bool
	holdings map[string]int64

	// global reports every held symbol across strategies; required for
	// UNIVERSAL_STOP, ignored otherwise.
	global HoldingsProvider
}

// NewBaseStrategy creates the shared state for a strategy.
func NewBaseStrategy(id string, stype Type) *BaseStrategy {
	return &BaseStrategy{
		id:       id,
		stype:    stype,
		status:   StatusNotInitialized,
		universe: make(map[string]bool),
		holdings: make(map[string]int64),
	}
}

// ID returns the strategy id.
func (b *BaseStrategy) ID() string { return b.id }

// StrategyType returns the strategy classification.
func (b *BaseStrategy) StrategyType() Type { return b.stype }

// Status returns the current lifecycle state.
func (b *BaseStrategy) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *BaseStrategy) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// SetHoldingsProvider wires the cross-strategy holdings source used by
// universal-stop strategies.
func (b *BaseStrategy) SetHoldingsProvider(p HoldingsProvider) {
	b.mu.Lock()
	b.global = p
	b.mu.Unlock()
}

// Initialize applies the config and moves to INITIALIZED.
func (b *BaseStrategy) Initialize(cfg *Config) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("strategy config requires an id")
	}
	if cfg.ID != b.id {
		return fmt.Errorf("config id %q does not match strategy %q", cfg.ID, b.id)
	}

	b.mu.Lock()
	b.universe = make(map[string]bool, len(cfg.Universe))
	for _, s := range cfg.Universe {
		b.universe[s] = true
	}
	b.status = StatusInitialized
	b.mu.Unlock()
	return nil
}

// Start moves to RUNNING; only initialized, paused or stopped
// strategies may start.
func (b *BaseStrategy) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.status {
	case StatusInitialized, StatusPaused, StatusStopped:
		b.status = StatusRunning
		return nil
	case StatusRunning:
		return nil
	default:
		return fmt.Errorf("strategy %s cannot start from %s", b.id, b.status)
	}
}

// Stop moves to STOPPED.
func (b *BaseStrategy) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusNotInitialized {
		return fmt.Errorf("strategy %s not initialized", b.id)
	}
	b.status = StatusStopped
	return nil
}

// Reset clears holdings and returns to INITIALIZED.
func (b *BaseStrategy) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings = make(map[string]int64)
	if b.status != StatusNotInitialized {
		b.status = StatusInitialized
	}
	return nil
}

// UpdateConfig hot-swaps the universe.
func (b *BaseStrategy) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	b.mu.Lock()
	b.universe = make(map[string]bool, len(cfg.Universe))
	for _, s := range cfg.Universe {
		b.universe[s] = true
	}
	b.mu.Unlock()
	return nil
}

// RecordFill attributes a fill to this strategy's holdings.
func (b *BaseStrategy) RecordFill(fill *entity.Fill) {
	if fill == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.holdings[fill.Symbol] + fill.SignedQuantity()
	if q == 0 {
		delete(b.holdings, fill.Symbol)
	} else {
		b.holdings[fill.Symbol] = q
	}
}

// HeldQuantity returns the quantity this strategy holds in a symbol.
func (b *BaseStrategy) HeldQuantity(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holdings[symbol]
}

// WatchedSymbols derives the current interest set from the strategy
// type and holdings.
func (b *BaseStrategy) WatchedSymbols() map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]bool)
	switch b.stype {
	case TypeEntry:
		for s := range b.universe {
			if _, held := b.holdings[s]; !held {
				out[s] = true
			}
		}
	case TypeExit:
		for s := range b.holdings {
			out[s] = true
		}
	case TypeUniversalStop:
		if b.global != nil {
			for _, s := range b.global.HeldSymbols() {
				out[s] = true
			}
		}
	}
	return out
}

// OnFillEvent is the default fill bookkeeping; concrete strategies may
// override and call RecordFill themselves.
func (b *BaseStrategy) OnFillEvent(ev *entity.FillEvent) {
	if ev != nil {
		b.RecordFill(ev.Fill)
	}
}

// OnTimerEvent is a no-op by default.
func (b *BaseStrategy) OnTimerEvent(ev *entity.TimerEvent) {}
