package strategy

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Publisher is the slice of the event engine the manager publishes
// signals through.
type Publisher interface {
	Publish(event entity.Event) bool
}

// Context tracks one registered strategy: its config, registration time
// and atomic counters.
type Context struct {
	Strategy     Strategy
	Config       *Config
	RegisteredAt time.Time

	received  uint64
	processed uint64
	signals   uint64
	errors    uint64
}

// ContextStats is a point-in-time snapshot of one strategy's counters.
type ContextStats struct {
	StrategyID   string    `json:"strategy_id"`
	Type         Type      `json:"type"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	Received     uint64    `json:"received"`
	Processed    uint64    `json:"processed"`
	Signals      uint64    `json:"signals"`
	Errors       uint64    `json:"errors"`
}

// Manager is the strategy registry and event router. It subscribes to
// MARKET, FILL and TIMER events and forwards them to the strategies
// that are RUNNING and interested.
type Manager struct {
	publisher     Publisher
	maxStrategies int

	mu         sync.RWMutex
	strategies map[string]*Context
}

// NewManager creates a strategy manager. maxStrategies bounds the
// registry; zero or negative means 50.
func NewManager(publisher Publisher, maxStrategies int) *Manager {
	if maxStrategies <= 0 {
		maxStrategies = 50
	}
	return &Manager{
		publisher:     publisher,
		maxStrategies: maxStrategies,
		strategies:    make(map[string]*Context),
	}
}

// Name implements the engine handler contract.
func (m *Manager) Name() string { return "StrategyManager" }

// Initialize implements the engine handler contract.
func (m *Manager) Initialize() error {
	log.Printf("[StrategyManager] Initialized (max strategies=%d)", m.maxStrategies)
	return nil
}

// Destroy stops every strategy.
func (m *Manager) Destroy() error {
	m.StopAll()
	return nil
}

// Register initializes and stores a strategy. A strategy that fails
// Initialize is never registered.
func (m *Manager) Register(s Strategy, cfg *Config) error {
	if s == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	if s.ID() == "" {
		return fmt.Errorf("strategy id cannot be empty")
	}

	m.mu.Lock()
	if _, exists := m.strategies[s.ID()]; exists {
		m.mu.Unlock()
		return fmt.Errorf("strategy %s already registered", s.ID())
	}
	if len(m.strategies) >= m.maxStrategies {
		m.mu.Unlock()
		return fmt.Errorf("strategy limit reached (%d)", m.maxStrategies)
	}
	m.mu.Unlock()

	if err := s.Initialize(cfg); err != nil {
		return fmt.Errorf("initialize strategy %s: %w", s.ID(), err)
	}

	m.mu.Lock()
	m.strategies[s.ID()] = &Context{
		Strategy:     s,
		Config:       cfg,
		RegisteredAt: time.Now(),
	}
	m.mu.Unlock()

	log.Printf("[StrategyManager] Registered strategy %s (type=%s, universe=%d symbols)",
		s.ID(), s.StrategyType(), len(cfg.Universe))
	return nil
}

// Unregister stops and removes a strategy.
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	ctx, ok := m.strategies[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("strategy %s not registered", id)
	}
	delete(m.strategies, id)
	m.mu.Unlock()

	if err := ctx.Strategy.Stop(); err != nil {
		log.Printf("[StrategyManager] Stop strategy %s on unregister: %v", id, err)
	}
	log.Printf("[StrategyManager] Unregistered strategy %s", id)
	return nil
}

// StartStrategy starts one strategy.
func (m *Manager) StartStrategy(id string) error {
	ctx, err := m.context(id)
	if err != nil {
		return err
	}
	return ctx.Strategy.Start()
}

// StopStrategy stops one strategy.
func (m *Manager) StopStrategy(id string) error {
	ctx, err := m.context(id)
	if err != nil {
		return err
	}
	return ctx.Strategy.Stop()
}

// StartAll starts every registered strategy; individual failures are
// logged and do not interrupt the rest.
func (m *Manager) StartAll() {
	for _, ctx := range m.contexts() {
		if err := ctx.Strategy.Start(); err != nil {
			log.Printf("[StrategyManager] Start strategy %s: %v", ctx.Strategy.ID(), err)
		}
	}
}

// StopAll stops every registered strategy.
func (m *Manager) StopAll() {
	for _, ctx := range m.contexts() {
		if err := ctx.Strategy.Stop(); err != nil {
			log.Printf("[StrategyManager] Stop strategy %s: %v", ctx.Strategy.ID(), err)
		}
	}
}

// UpdateStrategyConfig hot-swaps a strategy's config.
func (m *Manager) UpdateStrategyConfig(id string, cfg *Config) error {
	ctx, err := m.context(id)
	if err != nil {
		return err
	}
	if err := ctx.Strategy.UpdateConfig(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	ctx.Config = cfg
	m.mu.Unlock()
	return nil
}

// Count returns the number of registered strategies.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.strategies)
}

// Stats snapshots every strategy's counters.
func (m *Manager) Stats() []ContextStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContextStats, 0, len(m.strategies))
	for id, ctx := range m.strategies {
		out = append(out, ContextStats{
			StrategyID:   id,
			Type:         ctx.Strategy.StrategyType(),
			Status:       ctx.Strategy.Status(),
			RegisteredAt: ctx.RegisteredAt,
			Received:     atomic.LoadUint64(&ctx.received),
			Processed:    atomic.LoadUint64(&ctx.processed),
			Signals:      atomic.LoadUint64(&ctx.signals),
			Errors:       atomic.LoadUint64(&ctx.errors),
		})
	}
	return out
}

// HandleEvent routes one bus event to the interested strategies.
func (m *Manager) HandleEvent(event entity.Event) error {
	switch ev := event.(type) {
	case *entity.MarketEvent:
		m.handleMarket(ev)
	case *entity.FillEvent:
		m.handleFill(ev)
	case *entity.TimerEvent:
		m.handleTimer(ev)
	}
	return nil
}

func (m *Manager) handleMarket(ev *entity.MarketEvent) {
	for _, ctx := range m.contexts() {
		s := ctx.Strategy
		if s.Status() != StatusRunning {
			continue
		}
		if !s.WatchedSymbols()[ev.Symbol()] {
			continue
		}
		atomic.AddUint64(&ctx.received, 1)

		signals := m.invokeMarket(ctx, ev)
		for _, sig := range signals {
			if sig == nil {
				continue
			}
			if m.publisher.Publish(entity.NewSignalEvent(sig, ev.EventID())) {
				atomic.AddUint64(&ctx.signals, 1)
			}
		}
	}
}

func (m *Manager) handleFill(ev *entity.FillEvent) {
	id := ev.StrategyID()
	if id == "" {
		return
	}
	ctx, err := m.context(id)
	if err != nil {
		return
	}
	if ctx.Strategy.Status() != StatusRunning {
		return
	}
	atomic.AddUint64(&ctx.received, 1)
	m.invoke(ctx, func() { ctx.Strategy.OnFillEvent(ev) })
}

func (m *Manager) handleTimer(ev *entity.TimerEvent) {
	for _, ctx := range m.contexts() {
		if ctx.Strategy.Status() != StatusRunning {
			continue
		}
		atomic.AddUint64(&ctx.received, 1)
		m.invoke(ctx, func() { ctx.Strategy.OnTimerEvent(ev) })
	}
}

// invokeMarket runs OnMarketEvent with panic isolation.
func (m *Manager) invokeMarket(ctx *Context, ev *entity.MarketEvent) (signals []*entity.Signal) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&ctx.errors, 1)
			log.Printf("[StrategyManager] Strategy %s panicked on market event: %v",
				ctx.Strategy.ID(), r)
			signals = nil
		}
	}()
	signals = ctx.Strategy.OnMarketEvent(ev)
	atomic.AddUint64(&ctx.processed, 1)
	return signals
}

// invoke runs a strategy callback with panic isolation.
func (m *Manager) invoke(ctx *Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&ctx.errors, 1)
			log.Printf("[StrategyManager] Strategy %s panicked: %v", ctx.Strategy.ID(), r)
		}
	}()
	fn()
	atomic.AddUint64(&ctx.processed, 1)
}

func (m *Manager) context(id string) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %s not registered", id)
	}
	return ctx, nil
}

func (m *Manager) contexts() []*Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Context, 0, len(m.strategies))
	for _, ctx := range m.strategies {
		out = append(out, ctx)
	}
	return out
}
