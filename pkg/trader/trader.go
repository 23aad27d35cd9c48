// Package trader is the composition root for live trading: it wires the
// event engine, strategies, portfolio, execution, timers and the market
// data feed from one configuration, and exposes an operator HTTP API.
package trader

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/data"
	"github.com/yourusername/quantcapital-engine/pkg/engine"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
	"github.com/yourusername/quantcapital-engine/pkg/execution"
	"github.com/yourusername/quantcapital-engine/pkg/indicators"
	"github.com/yourusername/quantcapital-engine/pkg/portfolio"
	"github.com/yourusername/quantcapital-engine/pkg/stats"
	"github.com/yourusername/quantcapital-engine/pkg/strategy"
	"github.com/yourusername/quantcapital-engine/pkg/timer"
)

// historyCapacity bounds the in-memory monitoring series.
const historyCapacity = 4096

// Trader owns every long-lived component of a trading session.
type Trader struct {
	cfg *config.Config

	eng        *engine.Engine
	account    *entity.Account
	portfolio  *portfolio.Manager
	strategies *strategy.Manager
	timers     *timer.Manager
	exec       execution.Handler
	annotator  *indicators.Annotator
	history    *stats.Tracker

	natsConn *nats.Conn
	feed     *data.NATSFeed
	api      *APIServer

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
}

// NewTrader validates the configuration and creates an unwired trader.
func NewTrader(cfg *config.Config) (*Trader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Trader{cfg: cfg}, nil
}

// Initialize builds and registers every component. It must be called
// once before Start.
func (t *Trader) Initialize() error {
	cfg := t.cfg

	t.eng = engine.NewEngine(&engine.Config{
		MaxQueueSize: cfg.Engine.QueueCapacity,
		InboxSize:    cfg.Engine.InboxSize,
	})
	t.account = entity.NewAccount(cfg.Account.AccountID, cfg.Account.InitialCapital)
	t.portfolio = portfolio.NewManager(t.eng, t.account, cfg.Portfolio, cfg.Risk)
	t.strategies = strategy.NewManager(t.eng, cfg.Strategy.MaxStrategies)
	t.timers = timer.NewManager(t.eng)
	t.annotator = indicators.NewAnnotator(historyCapacity)
	t.history = stats.NewTracker()

	if cfg.Data.NATSURL != "" {
		nc, err := nats.Connect(cfg.Data.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.Data.NATSURL, err)
		}
		t.natsConn = nc
		t.feed = data.NewNATSFeed(nc, t.onLiveBar)
	}

	if err := t.buildExecution(); err != nil {
		return err
	}
	if err := t.registerStrategies(); err != nil {
		return err
	}

	if err := t.eng.Register(t.strategies,
		entity.EventMarket, entity.EventFill, entity.EventTimer); err != nil {
		return err
	}
	if err := t.eng.Register(t.portfolio,
		entity.EventSignal, entity.EventFill, entity.EventMarket, entity.EventTimer); err != nil {
		return err
	}
	if err := t.eng.Register(t.exec,
		entity.EventOrder, entity.EventMarket); err != nil {
		return err
	}

	t.addTimers()

	if cfg.API.Enabled {
		t.api = NewAPIServer(t, cfg.API.ListenAddr)
	}

	log.Printf("[Trader] Initialized (mode=%s, account=%s, strategies=%d)",
		cfg.Mode, cfg.Account.AccountID, len(cfg.Strategy.Items))
	return nil
}

func (t *Trader) buildExecution() error {
	cfg := t.cfg
	switch cfg.Execution.Type {
	case "simulated":
		t.exec = execution.NewSimulatedHandler(t.eng, cfg.Execution.Simulation,
			cfg.Execution.Fees, 0)
	case "live":
		if t.natsConn == nil {
			return fmt.Errorf("live execution requires data.nats_url")
		}
		t.exec = execution.NewLiveHandler(t.eng, t.natsConn, cfg.Execution.Live,
			cfg.Execution.Fees)
	default:
		return fmt.Errorf("unknown execution type %q", cfg.Execution.Type)
	}
	return nil
}

func (t *Trader) registerStrategies() error {
	for _, item := range t.cfg.Strategy.Items {
		if !item.Enabled {
			log.Printf("[Trader] Strategy %s disabled, skipping", item.ID)
			continue
		}
		s, err := strategy.New(item.ID, item.Type)
		if err != nil {
			return err
		}
		if hp, ok := s.(interface {
			SetHoldingsProvider(strategy.HoldingsProvider)
		}); ok {
			hp.SetHoldingsProvider(t.portfolio)
		}
		err = t.strategies.Register(s, &strategy.Config{
			ID:         item.ID,
			Type:       s.StrategyType(),
			Universe:   item.Universe,
			Parameters: item.Parameters,
			Enabled:    true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Trader) addTimers() {
	timers := []struct {
		kind entity.TimerType
		ms   int64
	}{
		{entity.TimerMarketDataUpdate, t.cfg.Timers.MarketDataUpdateMs},
		{entity.TimerRiskCheck, t.cfg.Timers.RiskCheckMs},
		{entity.TimerHeartbeat, t.cfg.Timers.HeartbeatMs},
		{entity.TimerCleanup, t.cfg.Timers.CleanupMs},
		{entity.TimerStrategyTimer, t.cfg.Timers.StrategyTimerMs},
		{entity.TimerPortfolioRebalance, t.cfg.Timers.PortfolioRebalanceMs},
	}
	for _, tm := range timers {
		if tm.ms <= 0 {
			continue
		}
		if err := t.timers.AddTimer(tm.kind, time.Duration(tm.ms)*time.Millisecond, nil); err != nil {
			log.Printf("[Trader] Timer %s not added: %v", tm.kind, err)
		}
	}
}

// onLiveBar stamps indicators onto an incoming bar and feeds it into
// the engine.
func (t *Trader) onLiveBar(bar *entity.Bar) {
	t.annotator.Annotate(bar)
	if !t.eng.Publish(entity.NewMarketEvent(bar)) {
		log.Printf("[Trader] Bar dropped, engine refused: %s", bar.Symbol)
	}
}

// Start brings the session up: engine, timers, strategies, feed, API.
func (t *Trader) Start() error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return fmt.Errorf("trader already running")
	}
	t.isRunning = true
	t.startedAt = time.Now()
	t.mu.Unlock()

	if err := t.eng.Start(); err != nil {
		return err
	}
	t.timers.Start()
	t.strategies.StartAll()

	if t.feed != nil {
		if err := t.feed.Start(); err != nil {
			return err
		}
		for _, symbol := range t.universe() {
			if err := t.feed.Subscribe(symbol); err != nil {
				log.Printf("[Trader] Subscribe %s: %v", symbol, err)
			}
		}
	}

	if t.api != nil {
		if err := t.api.Start(); err != nil {
			return err
		}
	}

	log.Printf("[Trader] Started")
	return nil
}

// Stop tears the session down in reverse order of Start.
func (t *Trader) Stop() error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return fmt.Errorf("trader not running")
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.api != nil {
		t.api.Stop()
	}
	if t.feed != nil {
		t.feed.Stop()
	}
	t.timers.Stop()
	t.strategies.StopAll()
	stats := t.eng.Stop()
	if t.natsConn != nil {
		t.natsConn.Close()
	}

	log.Printf("[Trader] Stopped (published=%d dispatched=%d rejected=%d)",
		stats.Published, stats.Dispatched, stats.Rejected)
	return nil
}

// IsRunning reports whether the session is up.
func (t *Trader) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isRunning
}

// universe is the union of all strategy universes.
func (t *Trader) universe() []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range t.cfg.Strategy.Items {
		for _, symbol := range item.Universe {
			if !seen[symbol] {
				seen[symbol] = true
				out = append(out, symbol)
			}
		}
	}
	return out
}

// Status summarizes the session for the operator API.
func (t *Trader) Status() map[string]interface{} {
	t.mu.RLock()
	running := t.isRunning
	startedAt := t.startedAt
	t.mu.RUnlock()

	status := map[string]interface{}{
		"mode":    t.cfg.Mode,
		"running": running,
		"account": t.cfg.Account.AccountID,
		"cash":    t.account.Cash(),
		"equity":  t.account.TotalEquity(),
	}
	if running {
		status["uptime"] = time.Since(startedAt).Round(time.Second).String()
	}
	return status
}

// Statistics collects per-component counters.
func (t *Trader) Statistics() map[string]interface{} {
	return map[string]interface{}{
		"engine":    t.eng.Statistics(),
		"portfolio": t.portfolio.Statistics(),
		"execution": t.exec.Statistics(),
		"strategy":  t.strategies.Stats(),
	}
}

// RecordSnapshot appends the current equity and cash to the monitoring
// history.
func (t *Trader) RecordSnapshot() {
	now := time.Now()
	t.history.Series("equity", historyCapacity).Append(t.account.TotalEquity(), now)
	t.history.Series("cash", historyCapacity).Append(t.account.Cash(), now)
}

// History exposes the monitoring series.
func (t *Trader) History() *stats.Tracker { return t.history }

// Account exposes the live account.
func (t *Trader) Account() *entity.Account { return t.account }

// Strategies exposes the strategy manager.
func (t *Trader) Strategies() *strategy.Manager { return t.strategies }

// Portfolio exposes the portfolio manager.
func (t *Trader) Portfolio() *portfolio.Manager { return t.portfolio }
