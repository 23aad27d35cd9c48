// Package portfolio turns strategy signals into orders under position,
// cash and risk limits, and keeps account state current by consuming
// fills.
package portfolio

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Publisher is the slice of the event engine the manager publishes
// orders through.
type Publisher interface {
	Publish(event entity.Event) bool
}

// RiskStatus is the per-symbol risk state.
type RiskStatus struct {
	Symbol        string    `json:"symbol"`
	IsBlocked     bool      `json:"is_blocked"`
	BlockReason   string    `json:"block_reason,omitempty"`
	DailyPnL      float64   `json:"daily_pnl"`
	PeakPnL       float64   `json:"peak_pnl"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	LastTradeTime time.Time `json:"last_trade_time"`
}

// Statistics is a snapshot of the signal and order counters.
type Statistics struct {
	TotalSignals    uint64 `json:"total_signals"`
	PassedSignals   uint64 `json:"passed_signals"`
	RejectedSignals uint64 `json:"rejected_signals"`
	GeneratedOrders uint64 `json:"generated_orders"`
}

// Manager is the portfolio and risk manager. It subscribes to SIGNAL,
// FILL, MARKET and TIMER events: signals are gated and sized into
// orders, fills settle the account, market events refresh valuation
// prices, and the RISK_CHECK timer sweeps the per-symbol risk state.
type Manager struct {
	publisher Publisher
	account   *entity.Account

	pcfg config.PortfolioConfig
	rcfg config.RiskConfig

	mu   sync.RWMutex
	risk map[string]*RiskStatus

	// frozen tracks the cash reserved per open buy order id.
	frozen map[string]float64

	totalSignals    uint64
	passedSignals   uint64
	rejectedSignals uint64
	generatedOrders uint64
}

// NewManager creates the portfolio manager over an account.
func NewManager(publisher Publisher, account *entity.Account,
	pcfg config.PortfolioConfig, rcfg config.RiskConfig) *Manager {

	return &Manager{
		publisher: publisher,
		account:   account,
		pcfg:      pcfg,
		rcfg:      rcfg,
		risk:      make(map[string]*RiskStatus),
		frozen:    make(map[string]float64),
	}
}

// Name implements the engine handler contract.
func (m *Manager) Name() string { return "PortfolioManager" }

// Initialize implements the engine handler contract.
func (m *Manager) Initialize() error {
	log.Printf("[PortfolioManager] Initialized (account=%s, capital=%.2f)",
		m.account.AccountID, m.account.InitialCash)
	return nil
}

// Destroy implements the engine handler contract.
func (m *Manager) Destroy() error {
	stats := m.Statistics()
	log.Printf("[PortfolioManager] Destroyed: signals=%d passed=%d rejected=%d orders=%d",
		stats.TotalSignals, stats.PassedSignals, stats.RejectedSignals, stats.GeneratedOrders)
	return nil
}

// Account exposes the managed account.
func (m *Manager) Account() *entity.Account { return m.account }

// HeldSymbols lists every symbol with an open position; universal-stop
// strategies watch this set.
func (m *Manager) HeldSymbols() []string {
	positions := m.account.Positions()
	out := make([]string, 0, len(positions))
	for sym := range positions {
		out = append(out, sym)
	}
	return out
}

// Statistics snapshots the counters.
func (m *Manager) Statistics() Statistics {
	return Statistics{
		TotalSignals:    atomic.LoadUint64(&m.totalSignals),
		PassedSignals:   atomic.LoadUint64(&m.passedSignals),
		RejectedSignals: atomic.LoadUint64(&m.rejectedSignals),
		GeneratedOrders: atomic.LoadUint64(&m.generatedOrders),
	}
}

// RiskStatusFor returns a copy of one symbol's risk state.
func (m *Manager) RiskStatusFor(symbol string) (RiskStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.risk[symbol]
	if !ok {
		return RiskStatus{}, false
	}
	return *rs, true
}

// BlockSymbol manually blocks a symbol with a reason.
func (m *Manager) BlockSymbol(symbol, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := m.riskLocked(symbol)
	rs.IsBlocked = true
	rs.BlockReason = reason
	log.Printf("[PortfolioManager] Symbol %s blocked: %s", symbol, reason)
}

// UnblockSymbol clears a symbol's block.
func (m *Manager) UnblockSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs, ok := m.risk[symbol]; ok {
		rs.IsBlocked = false
		rs.BlockReason = ""
	}
}

// ResetDailyRisk zeroes the daily pnl tracking, typically at the start
// of a trading day. Blocks are kept.
func (m *Manager) ResetDailyRisk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.risk {
		rs.DailyPnL = 0
		rs.PeakPnL = 0
		rs.MaxDrawdown = 0
	}
}

// HandleEvent routes one bus event.
func (m *Manager) HandleEvent(event entity.Event) error {
	switch ev := event.(type) {
	case *entity.SignalEvent:
		m.handleSignal(ev)
	case *entity.FillEvent:
		m.handleFill(ev)
	case *entity.MarketEvent:
		if ev.Bar != nil {
			m.account.UpdatePrice(ev.Bar.Symbol, ev.Bar.Close)
		}
	case *entity.TimerEvent:
		if ev.TimerType == entity.TimerRiskCheck {
			m.reconcileFrozen()
			m.riskSweep()
		}
	}
	return nil
}

// handleSignal runs the gating pipeline and publishes an order when
// every check passes.
func (m *Manager) handleSignal(ev *entity.SignalEvent) {
	atomic.AddUint64(&m.totalSignals, 1)

	sig := ev.Signal
	if sig == nil {
		m.reject("", "nil signal")
		return
	}
	if err := m.gate(sig); err != nil {
		m.reject(sig.Symbol, err.Error())
		return
	}

	order, err := m.buildOrder(sig)
	if err != nil {
		m.reject(sig.Symbol, err.Error())
		return
	}

	// Buy notional is reserved until the order settles, so a second
	// signal cannot spend the same cash while this one is in flight.
	if order.Side == entity.SideBuy {
		amount := order.TotalValue()
		if err := m.account.FreezeCash(amount); err != nil {
			m.reject(sig.Symbol, err.Error())
			return
		}
		m.mu.Lock()
		m.frozen[order.OrderID] = amount
		m.mu.Unlock()
	}

	atomic.AddUint64(&m.passedSignals, 1)
	m.account.RegisterOrder(order)

	if m.publisher.Publish(entity.NewOrderEvent(order, entity.ActionNew, sig.SignalID)) {
		atomic.AddUint64(&m.generatedOrders, 1)
		log.Printf("[PortfolioManager] Order %s: %s %s %d@%.2f (signal %s)",
			order.OrderID, order.Side, order.Symbol, order.Quantity, order.Price, sig.SignalID)
	} else {
		order.Reject("order event rejected by engine")
		m.releaseOrderFunds(order.OrderID)
		log.Printf("[PortfolioManager] Order publish rejected for %s", order.Symbol)
	}
}

// gate applies checks 1 through 5 of the signal pipeline.
func (m *Manager) gate(sig *entity.Signal) error {
	now := time.Now()
	if !sig.IsValid() {
		return fmt.Errorf("invalid signal")
	}
	if sig.IsExpired(now) {
		return fmt.Errorf("signal expired")
	}
	if !sig.IsBuy() && !sig.IsSell() {
		return fmt.Errorf("direction %s produces no order", sig.Direction)
	}

	m.mu.RLock()
	rs, ok := m.risk[sig.Symbol]
	if ok && rs.IsBlocked {
		reason := rs.BlockReason
		m.mu.RUnlock()
		return fmt.Errorf("symbol blocked: %s", reason)
	}
	m.mu.RUnlock()

	total := m.account.TotalEquity()
	if total <= 0 {
		return fmt.Errorf("account has no assets")
	}

	if sig.IsBuy() {
		if pos, held := m.account.GetPosition(sig.Symbol); held {
			if pos.MarketValue()/total >= m.pcfg.MaxPositionPercent {
				return fmt.Errorf("position limit: %s at %.2f%% of assets",
					sig.Symbol, pos.MarketValue()/total*100)
			}
		}
		if m.account.TotalMarketValue()/total >= m.pcfg.MaxTotalPositionPercent {
			return fmt.Errorf("total position limit reached")
		}

		amount := m.orderAmount(sig)
		if amount < m.pcfg.MinOrderAmount {
			return fmt.Errorf("order amount %.2f below minimum %.2f",
				amount, m.pcfg.MinOrderAmount)
		}
		if amount > m.account.AvailableCash() {
			return fmt.Errorf("insufficient cash: need %.2f, have %.2f",
				amount, m.account.AvailableCash())
		}
	}

	if ok {
		if rs.DailyPnL < -m.rcfg.MaxDailyLossPercent*total {
			return fmt.Errorf("daily loss limit breached for %s", sig.Symbol)
		}
		if rs.MaxDrawdown > m.rcfg.MaxDrawdownPercent {
			return fmt.Errorf("drawdown limit breached for %s", sig.Symbol)
		}
	}
	return nil
}

// orderAmount applies the sizing rule: the signal's suggestion when
// positive, else the configured default.
func (m *Manager) orderAmount(sig *entity.Signal) float64 {
	if sig.SuggestedPositionSize > 0 {
		return sig.SuggestedPositionSize
	}
	return m.pcfg.DefaultPositionSize
}

// buildOrder sizes and constructs the LIMIT order for a gated signal.
func (m *Manager) buildOrder(sig *entity.Signal) (*entity.Order, error) {
	amount := m.orderAmount(sig)

	// Whole-lot rounding for equities.
	quantity := int64(math.Floor(amount/sig.ReferencePrice/100)) * 100

	side := entity.SideBuy
	if sig.IsSell() {
		side = entity.SideSell
		pos, held := m.account.GetPosition(sig.Symbol)
		if !held || pos.Quantity <= 0 {
			return nil, fmt.Errorf("no position to sell in %s", sig.Symbol)
		}
		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("sized quantity is zero for amount %.2f at %.2f",
			amount, sig.ReferencePrice)
	}

	order := entity.NewOrder(sig.Symbol, entity.OrderLimit, side, quantity,
		sig.ReferencePrice, sig.StrategyID)
	order.SignalID = sig.SignalID
	return order, nil
}

func (m *Manager) reject(symbol, reason string) {
	atomic.AddUint64(&m.rejectedSignals, 1)
	log.Printf("[PortfolioManager] Signal rejected (%s): %s", symbol, reason)
}

// handleFill settles the fill and advances the symbol's risk state.
// Order fill accounting belongs to the execution handler; here the fill
// only moves cash, positions and the frozen reservation.
func (m *Manager) handleFill(ev *entity.FillEvent) {
	fill := ev.Fill
	if fill == nil || !fill.IsValid() {
		log.Printf("[PortfolioManager] Ignoring invalid fill")
		return
	}

	if fill.Side == entity.SideBuy {
		m.settleFrozen(fill)
	}
	realized := m.account.ApplyFill(fill)

	m.mu.Lock()
	rs := m.riskLocked(fill.Symbol)
	rs.DailyPnL += realized - fill.TotalFee
	if rs.DailyPnL > rs.PeakPnL {
		rs.PeakPnL = rs.DailyPnL
	}
	if total := m.account.TotalEquity(); total > 0 {
		rs.MaxDrawdown = (rs.PeakPnL - rs.DailyPnL) / total
	}
	rs.LastTradeTime = fill.Timestamp
	m.mu.Unlock()
}

// settleFrozen releases the reserved cash a buy fill consumed. A fill
// that finishes the order releases whatever reservation remains.
func (m *Manager) settleFrozen(fill *entity.Fill) {
	order, known := m.account.GetOrder(fill.OrderID)

	m.mu.Lock()
	remaining, held := m.frozen[fill.OrderID]
	if !held {
		m.mu.Unlock()
		return
	}
	release := remaining
	if known && !order.IsFinished() {
		release = float64(fill.Quantity) * order.Price
		if release > remaining {
			release = remaining
		}
		m.frozen[fill.OrderID] = remaining - release
	} else {
		delete(m.frozen, fill.OrderID)
	}
	m.mu.Unlock()

	m.account.UnfreezeCash(release)
}

// releaseOrderFunds drops an order's reservation entirely.
func (m *Manager) releaseOrderFunds(orderID string) {
	m.mu.Lock()
	amount, ok := m.frozen[orderID]
	delete(m.frozen, orderID)
	m.mu.Unlock()
	if ok {
		m.account.UnfreezeCash(amount)
	}
}

// reconcileFrozen releases reservations whose orders reached a terminal
// state without consuming them (rejects, cancels, expiries). It runs on
// the risk-check timer.
func (m *Manager) reconcileFrozen() {
	m.mu.Lock()
	var release float64
	for id, amount := range m.frozen {
		order, ok := m.account.GetOrder(id)
		if !ok || order.IsFinished() {
			release += amount
			delete(m.frozen, id)
		}
	}
	m.mu.Unlock()
	if release > 0 {
		m.account.UnfreezeCash(release)
	}
}

// riskSweep re-evaluates every symbol's limits and blocks breaches.
func (m *Manager) riskSweep() {
	total := m.account.TotalEquity()
	if total <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, rs := range m.risk {
		if rs.IsBlocked {
			continue
		}
		if rs.DailyPnL < -m.rcfg.MaxDailyLossPercent*total ||
			rs.MaxDrawdown > m.rcfg.MaxDrawdownPercent {
			rs.IsBlocked = true
			rs.BlockReason = "risk-limit-triggered"
			log.Printf("[PortfolioManager] Risk sweep blocked %s (dailyPnL=%.2f, drawdown=%.4f)",
				sym, rs.DailyPnL, rs.MaxDrawdown)
		}
	}
}

// riskLocked returns the symbol's risk entry, creating it if missing.
// Caller holds m.mu.
func (m *Manager) riskLocked(symbol string) *RiskStatus {
	rs, ok := m.risk[symbol]
	if !ok {
		rs = &RiskStatus{Symbol: symbol}
		m.risk[symbol] = rs
	}
	return rs
}
