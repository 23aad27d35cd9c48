// Package indicators provides streaming technical indicators computed
// over bar closes. Each indicator consumes bars one at a time and keeps
// a bounded value history.
package indicators

import (
	"fmt"
	"sync"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Indicator is the base interface for all technical indicators.
type Indicator interface {
	// Update feeds one bar into the indicator.
	Update(bar *entity.Bar)

	// Value returns the current indicator value.
	Value() float64

	// Values returns the historical value series, oldest first.
	Values() []float64

	// Reset restores the initial state.
	Reset()

	// Name returns the indicator name.
	Name() string

	// IsReady reports whether enough data has been seen.
	IsReady() bool
}

// BaseIndicator provides the value history shared by all indicators.
type BaseIndicator struct {
	name       string
	maxHistory int

	mu          sync.RWMutex
	values      []float64
	initialized bool
}

func newBaseIndicator(name string, maxHistory int) BaseIndicator {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return BaseIndicator{
		name:       name,
		maxHistory: maxHistory,
		values:     make([]float64, 0, maxHistory),
	}
}

// Name returns the indicator name.
func (b *BaseIndicator) Name() string { return b.name }

// Value returns the most recent value, or 0 before any data.
func (b *BaseIndicator) Value() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.values) == 0 {
		return 0
	}
	return b.values[len(b.values)-1]
}

// Values returns a copy of the value history.
func (b *BaseIndicator) Values() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// addValue appends a value, trimming the history to maxHistory.
func (b *BaseIndicator) addValue(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = append(b.values, v)
	if len(b.values) > b.maxHistory {
		b.values = b.values[1:]
	}
	b.initialized = true
}

// Reset clears the value history.
func (b *BaseIndicator) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = b.values[:0]
	b.initialized = false
}

// IsReady reports whether at least one value has been produced.
func (b *BaseIndicator) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// Factory creates an indicator from loosely typed parameters.
type Factory func(params map[string]interface{}) (Indicator, error)

// Library is a registry of indicator factories plus live instances.
type Library struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	indicators map[string]Indicator
}

// NewLibrary creates a library with the built-in indicators registered.
func NewLibrary() *Library {
	lib := &Library{
		factories:  make(map[string]Factory),
		indicators: make(map[string]Indicator),
	}
	lib.RegisterFactory("sma", NewSMAFromConfig)
	lib.RegisterFactory("ema", NewEMAFromConfig)
	lib.RegisterFactory("macd", NewMACDFromConfig)
	lib.RegisterFactory("rsi", NewRSIFromConfig)
	lib.RegisterFactory("bollinger", NewBollingerFromConfig)
	return lib
}

// RegisterFactory adds or replaces a factory for an indicator type.
func (lib *Library) RegisterFactory(indicatorType string, factory Factory) {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	lib.factories[indicatorType] = factory
}

// Create instantiates an indicator and stores it under name.
func (lib *Library) Create(name, indicatorType string, params map[string]interface{}) (Indicator, error) {
	lib.mu.RLock()
	factory, ok := lib.factories[indicatorType]
	lib.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown indicator type %q", indicatorType)
	}

	ind, err := factory(params)
	if err != nil {
		return nil, err
	}

	lib.mu.Lock()
	lib.indicators[name] = ind
	lib.mu.Unlock()
	return ind, nil
}

// Get retrieves a live indicator by name.
func (lib *Library) Get(name string) (Indicator, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	ind, ok := lib.indicators[name]
	return ind, ok
}

// UpdateAll feeds one bar into every live indicator.
func (lib *Library) UpdateAll(bar *entity.Bar) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	for _, ind := range lib.indicators {
		ind.Update(bar)
	}
}

// ResetAll resets every live indicator.
func (lib *Library) ResetAll() {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	for _, ind := range lib.indicators {
		ind.Reset()
	}
}

// paramFloat reads a numeric parameter with a default. YAML and JSON
// decode numbers as float64 or int depending on the source.
func paramFloat(params map[string]interface{}, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}
