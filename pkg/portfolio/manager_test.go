package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []entity.Event
	accept bool
}

func (p *capturingPublisher) Publish(ev entity.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accept {
		return false
	}
	p.events = append(p.events, ev)
	return true
}

func (p *capturingPublisher) orders() []*entity.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*entity.OrderEvent
	for _, ev := range p.events {
		if oe, ok := ev.(*entity.OrderEvent); ok {
			out = append(out, oe)
		}
	}
	return out
}

func testManager(initialCash float64) (*Manager, *capturingPublisher) {
	pub := &capturingPublisher{accept: true}
	acct := entity.NewAccount("test", initialCash)
	pcfg := config.PortfolioConfig{
		MaxPositionPercent:      0.05,
		MaxTotalPositionPercent: 0.8,
		MinOrderAmount:          1000,
		DefaultPositionSize:     10000,
	}
	rcfg := config.RiskConfig{
		MaxDailyLossPercent: 0.03,
		MaxDrawdownPercent:  0.1,
	}
	return NewManager(pub, acct, pcfg, rcfg), pub
}

func buySignal(symbol string, price float64) *entity.Signal {
	return entity.NewSignal("s1", symbol, entity.SignalBuy, 0.8, price, "test")
}

func TestSignalSizedIntoWholeLotsOrder(t *testing.T) {
	m, pub := testManager(1_000_000)

	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), "trigger"))

	orders := pub.orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	order := orders[0].Order
	// 10000 / 10 / 100 * 100 = 1000 shares.
	if order.Quantity != 1000 {
		t.Errorf("quantity = %d, want 1000", order.Quantity)
	}
	if order.Type != entity.OrderLimit || order.Price != 10.0 {
		t.Errorf("order = %s %f, want LIMIT at 10", order.Type, order.Price)
	}
	if order.Side != entity.SideBuy {
		t.Errorf("side = %s, want BUY", order.Side)
	}
	if orders[0].Priority() != entity.PriorityOrder {
		t.Errorf("order event priority = %d, want 2", orders[0].Priority())
	}
	if order.SignalID == "" || order.StrategyID != "s1" {
		t.Error("order not tagged with signal and strategy ids")
	}

	stats := m.Statistics()
	if stats.TotalSignals != 1 || stats.PassedSignals != 1 || stats.GeneratedOrders != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSuggestedSizeOverridesDefault(t *testing.T) {
	m, pub := testManager(1_000_000)

	sig := buySignal("000001.SZ", 10.0)
	sig.SuggestedPositionSize = 50000
	m.HandleEvent(entity.NewSignalEvent(sig, ""))

	orders := pub.orders()
	if len(orders) != 1 || orders[0].Order.Quantity != 5000 {
		t.Fatalf("suggested sizing not applied: %v", orders)
	}
}

func TestExpiredSignalRejected(t *testing.T) {
	m, pub := testManager(1_000_000)

	sig := buySignal("000001.SZ", 10.0)
	sig.Timestamp = time.Now().Add(-time.Duration(sig.ValiditySeconds+10) * time.Second)
	m.HandleEvent(entity.NewSignalEvent(sig, ""))

	if len(pub.orders()) != 0 {
		t.Error("expired signal produced an order")
	}
	if m.Statistics().RejectedSignals != 1 {
		t.Error("rejection not counted")
	}
}

func TestPositionLimitRejectsBuy(t *testing.T) {
	m, pub := testManager(1_000_000)

	// Seed a position worth 6% of assets; the limit is 5%.
	m.Account().ApplyFill(entity.NewFill("o0", "000001.SZ", entity.SideBuy, 6000, 10.0,
		time.Now(), "s1"))
	m.Account().UpdatePrice("000001.SZ", 10.0)

	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))

	if len(pub.orders()) != 0 {
		t.Error("position-limited signal produced an order")
	}
	if m.Statistics().RejectedSignals != 1 {
		t.Errorf("rejected = %d, want 1", m.Statistics().RejectedSignals)
	}
}

func TestCashCheckRejectsBuy(t *testing.T) {
	m, pub := testManager(5000) // default position size 10000 exceeds cash
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))

	if len(pub.orders()) != 0 {
		t.Error("unaffordable signal produced an order")
	}
}

func TestMinOrderAmountRejects(t *testing.T) {
	m, pub := testManager(1_000_000)
	sig := buySignal("000001.SZ", 10.0)
	sig.SuggestedPositionSize = 500 // below the 1000 minimum
	m.HandleEvent(entity.NewSignalEvent(sig, ""))

	if len(pub.orders()) != 0 {
		t.Error("sub-minimum signal produced an order")
	}
}

func TestBlockedSymbolRejected(t *testing.T) {
	m, pub := testManager(1_000_000)
	m.BlockSymbol("000001.SZ", "manual")

	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))
	if len(pub.orders()) != 0 {
		t.Error("blocked symbol produced an order")
	}

	m.UnblockSymbol("000001.SZ")
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))
	if len(pub.orders()) != 1 {
		t.Error("unblocked symbol still rejected")
	}
}

func TestSellCappedAtHeldQuantity(t *testing.T) {
	m, pub := testManager(1_000_000)
	m.Account().ApplyFill(entity.NewFill("o0", "000001.SZ", entity.SideBuy, 300, 10.0,
		time.Now(), "s1"))

	sell := entity.NewSignal("s1", "000001.SZ", entity.SignalSell, 0.9, 10.0, "exit")
	sell.SuggestedPositionSize = 100000 // would size to 10000 shares
	m.HandleEvent(entity.NewSignalEvent(sell, ""))

	orders := pub.orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Order.Quantity != 300 || orders[0].Order.Side != entity.SideSell {
		t.Errorf("sell order = %+v, want 300 SELL", orders[0].Order)
	}
}

func TestSellWithoutPositionRejected(t *testing.T) {
	m, pub := testManager(1_000_000)
	sell := entity.NewSignal("s1", "000001.SZ", entity.SignalSell, 0.9, 10.0, "exit")
	m.HandleEvent(entity.NewSignalEvent(sell, ""))

	if len(pub.orders()) != 0 {
		t.Error("sell without position produced an order")
	}
}

func TestFillUpdatesAccountAndOrder(t *testing.T) {
	m, pub := testManager(1_000_000)
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))

	orders := pub.orders()
	if len(orders) != 1 {
		t.Fatal("no order generated")
	}
	order := orders[0].Order
	if got := m.Account().FrozenCash(); got != 10000 {
		t.Errorf("frozen cash = %f, want the order notional 10000", got)
	}

	// The execution handler owns order fill accounting.
	order.AddFill(1000, 10.0)
	fill := entity.NewFill(order.OrderID, "000001.SZ", entity.SideBuy, 1000, 10.0,
		time.Now(), "s1")
	m.HandleEvent(entity.NewFillEvent(fill))

	pos, ok := m.Account().GetPosition("000001.SZ")
	if !ok || pos.Quantity != 1000 {
		t.Fatalf("position = %+v", pos)
	}
	if order.Status != entity.OrderFilled {
		t.Errorf("order status = %s, want FILLED", order.Status)
	}
	wantCash := 1_000_000 + fill.NetAmount
	if m.Account().Cash() != wantCash {
		t.Errorf("cash = %f, want %f", m.Account().Cash(), wantCash)
	}
	if got := m.Account().FrozenCash(); got != 0 {
		t.Errorf("frozen cash after fill = %f, want 0", got)
	}

	rs, ok := m.RiskStatusFor("000001.SZ")
	if !ok || rs.LastTradeTime.IsZero() {
		t.Error("risk status not advanced by fill")
	}

	held := m.HeldSymbols()
	if len(held) != 1 || held[0] != "000001.SZ" {
		t.Errorf("held symbols = %v", held)
	}
}

func TestFillAppliedOnceToOrder(t *testing.T) {
	m, pub := testManager(1_000_000)
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))
	order := pub.orders()[0].Order

	// The execution side records the partial execution on the order;
	// consuming the fill event must not count it a second time.
	order.AddFill(600, 10.0)
	m.HandleEvent(entity.NewFillEvent(entity.NewFill(order.OrderID, "000001.SZ",
		entity.SideBuy, 600, 10.0, time.Now(), "s1")))

	if order.FilledQuantity != 600 || order.RemainingQuantity != 400 {
		t.Errorf("fill accounting = %d/%d, want 600 filled 400 remaining",
			order.FilledQuantity, order.RemainingQuantity)
	}
	if order.Status != entity.OrderPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", order.Status)
	}
	if order.FilledQuantity+order.RemainingQuantity != order.Quantity {
		t.Error("filled plus remaining does not equal quantity")
	}
}

func TestHoldSignalRejected(t *testing.T) {
	m, pub := testManager(1_000_000)

	hold := entity.NewSignal("s1", "000001.SZ", entity.SignalHold, 0.8, 10.0, "no edge")
	m.HandleEvent(entity.NewSignalEvent(hold, ""))

	if len(pub.orders()) != 0 {
		t.Error("HOLD signal produced an order")
	}
	if m.Statistics().RejectedSignals != 1 {
		t.Errorf("rejected = %d, want 1", m.Statistics().RejectedSignals)
	}
}

func TestBuyReservesCashUntilSettled(t *testing.T) {
	m, pub := testManager(15_000)

	// First buy reserves its 10000 notional.
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))
	if got := m.Account().FrozenCash(); got != 10000 {
		t.Fatalf("frozen = %f, want 10000", got)
	}

	// A second buy cannot spend the same cash while the first is open.
	m.HandleEvent(entity.NewSignalEvent(buySignal("600000.SH", 10.0), ""))
	if len(pub.orders()) != 1 {
		t.Fatalf("orders = %d, want only the first", len(pub.orders()))
	}

	// Partial execution releases the consumed part of the reservation.
	order := pub.orders()[0].Order
	order.AddFill(600, 10.0)
	m.HandleEvent(entity.NewFillEvent(entity.NewFill(order.OrderID, "000001.SZ",
		entity.SideBuy, 600, 10.0, time.Now(), "s1")))
	if got := m.Account().FrozenCash(); got != 4000 {
		t.Errorf("frozen after partial = %f, want 4000", got)
	}

	// Completion releases the rest.
	order.AddFill(400, 10.0)
	m.HandleEvent(entity.NewFillEvent(entity.NewFill(order.OrderID, "000001.SZ",
		entity.SideBuy, 400, 10.0, time.Now(), "s1")))
	if got := m.Account().FrozenCash(); got != 0 {
		t.Errorf("frozen after completion = %f, want 0", got)
	}
	if !m.Account().IsHealthy() {
		t.Error("account unhealthy after settlement")
	}
}

func TestRejectedOrderReleasesFrozenCash(t *testing.T) {
	m, pub := testManager(1_000_000)
	m.HandleEvent(entity.NewSignalEvent(buySignal("000001.SZ", 10.0), ""))
	order := pub.orders()[0].Order

	// The venue rejects; the risk-check sweep reconciles the reservation.
	order.Reject("venue rejected")
	m.HandleEvent(entity.NewTimerEvent(entity.TimerRiskCheck, 1000, nil))

	if got := m.Account().FrozenCash(); got != 0 {
		t.Errorf("frozen after reject = %f, want 0", got)
	}
}

func TestRiskSweepBlocksBreachedSymbol(t *testing.T) {
	m, _ := testManager(1_000_000)

	// A losing round trip: buy 1000@10, sell 1000@5 realizes about -5000.
	// With capital 100k that is beyond the 3% daily loss limit.
	small, _ := testManager(100_000)
	small.Account().ApplyFill(entity.NewFill("o0", "000001.SZ", entity.SideBuy, 1000, 10.0,
		time.Now(), "s1"))
	small.HandleEvent(entity.NewFillEvent(entity.NewFill("o1", "000001.SZ", entity.SideSell,
		1000, 5.0, time.Now(), "s1")))

	small.HandleEvent(entity.NewTimerEvent(entity.TimerRiskCheck, 1000, nil))

	rs, ok := small.RiskStatusFor("000001.SZ")
	if !ok || !rs.IsBlocked {
		t.Fatalf("breached symbol not blocked: %+v", rs)
	}
	if rs.BlockReason != "risk-limit-triggered" {
		t.Errorf("block reason = %q", rs.BlockReason)
	}

	// The healthy manager's sweep blocks nothing.
	m.HandleEvent(entity.NewTimerEvent(entity.TimerRiskCheck, 1000, nil))
	if rs, ok := m.RiskStatusFor("000001.SZ"); ok && rs.IsBlocked {
		t.Error("healthy symbol blocked")
	}
}

func TestResetDailyRisk(t *testing.T) {
	m, _ := testManager(1_000_000)
	m.HandleEvent(entity.NewFillEvent(entity.NewFill("o1", "000001.SZ", entity.SideBuy,
		100, 10.0, time.Now(), "s1")))

	m.ResetDailyRisk()
	rs, _ := m.RiskStatusFor("000001.SZ")
	if rs.DailyPnL != 0 || rs.MaxDrawdown != 0 {
		t.Errorf("daily risk not reset: %+v", rs)
	}
}

func TestMarketEventRefreshesValuation(t *testing.T) {
	m, _ := testManager(1_000_000)
	m.Account().ApplyFill(entity.NewFill("o0", "000001.SZ", entity.SideBuy, 1000, 10.0,
		time.Now(), "s1"))

	bar := &entity.Bar{Symbol: "000001.SZ", Timestamp: time.Now(), Frequency: entity.FreqDaily,
		Open: 11, High: 12, Low: 11, Close: 12, Volume: 1000}
	m.HandleEvent(entity.NewMarketEvent(bar))

	pos, _ := m.Account().GetPosition("000001.SZ")
	if pos.LastPrice != 12 {
		t.Errorf("valuation price = %f, want 12", pos.LastPrice)
	}
}
