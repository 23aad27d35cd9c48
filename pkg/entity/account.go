package entity

import (
	"fmt"
	"sync"
	"time"
)

// Account tracks cash, positions and the order/fill/trade registries for
// one trading book. All methods are safe for concurrent use.
type Account struct {
	mu sync.RWMutex

	AccountID   string
	InitialCash float64

	cash       float64
	frozenCash float64

	positions map[string]*Position
	orders    map[string]*Order
	fills     []*Fill
	trades    []*Trade

	// openTrades tracks the in-flight round trip per symbol.
	openTrades map[string]*Trade

	createdTime    time.Time
	lastUpdateTime time.Time
}

// NewAccount creates an account funded with initial cash.
func NewAccount(accountID string, initialCash float64) *Account {
	now := time.Now()
	return &Account{
		AccountID:      accountID,
		InitialCash:    initialCash,
		cash:           initialCash,
		positions:      make(map[string]*Position),
		orders:         make(map[string]*Order),
		openTrades:     make(map[string]*Trade),
		createdTime:    now,
		lastUpdateTime: now,
	}
}

// Cash returns the total cash balance including frozen cash.
func (a *Account) Cash() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

// FrozenCash returns the cash reserved by open buy orders.
func (a *Account) FrozenCash() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozenCash
}

// AvailableCash is cash minus frozen cash.
func (a *Account) AvailableCash() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash - a.frozenCash
}

// FreezeCash reserves amount for an open order. It fails when the
// available balance cannot cover it.
func (a *Account) FreezeCash(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("freeze amount must be positive, got %.2f", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cash-a.frozenCash < amount {
		return fmt.Errorf("insufficient available cash: need %.2f, have %.2f",
			amount, a.cash-a.frozenCash)
	}
	a.frozenCash += amount
	a.lastUpdateTime = time.Now()
	return nil
}

// UnfreezeCash releases a previous reservation, clamping at zero.
func (a *Account) UnfreezeCash(amount float64) {
	if amount <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozenCash -= amount
	if a.frozenCash < 0 {
		a.frozenCash = 0
	}
	a.lastUpdateTime = time.Now()
}

// ApplyFill settles a fill against cash and positions, records it and
// advances the symbol's round-trip trade. It returns the realized pnl
// the fill produced.
func (a *Account) ApplyFill(fill *Fill) float64 {
	if fill == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cash += fill.NetAmount

	pos, ok := a.positions[fill.Symbol]
	if !ok {
		pos = NewPosition(fill.Symbol, 0, fill.Price)
		pos.Quantity = 0
		a.positions[fill.Symbol] = pos
	}
	before := pos.RealizedPnL
	pos.Apply(fill.SignedQuantity(), fill.Price)
	realized := pos.RealizedPnL - before
	if pos.IsFlat() {
		delete(a.positions, fill.Symbol)
	}

	a.fills = append(a.fills, fill)
	a.applyFillToTrade(fill)
	a.lastUpdateTime = time.Now()
	return realized
}

func (a *Account) applyFillToTrade(fill *Fill) {
	t, ok := a.openTrades[fill.Symbol]
	if !ok {
		t = NewTrade(fill.Symbol, fill.StrategyID)
		a.openTrades[fill.Symbol] = t
		a.trades = append(a.trades, t)
	}
	t.AddFill(fill)
	if t.Status == TradeClosed {
		delete(a.openTrades, fill.Symbol)
	}
}

// RegisterOrder records an order in the registry, replacing any entry
// with the same id.
func (a *Account) RegisterOrder(order *Order) {
	if order == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders[order.OrderID] = order
	a.lastUpdateTime = time.Now()
}

// GetOrder looks up an order by id.
func (a *Account) GetOrder(orderID string) (*Order, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.orders[orderID]
	return o, ok
}

// GetPosition returns a copy of the position for symbol, or false when
// flat.
func (a *Account) GetPosition(symbol string) (Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a copy of every open position keyed by symbol.
func (a *Account) Positions() map[string]Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Position, len(a.positions))
	for sym, p := range a.positions {
		out[sym] = *p
	}
	return out
}

// PositionCount returns the number of open positions.
func (a *Account) PositionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.positions)
}

// UpdatePrice refreshes the valuation price of one symbol's position.
func (a *Account) UpdatePrice(symbol string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.positions[symbol]; ok {
		p.UpdatePrice(price)
	}
}

// TotalMarketValue sums the valuation of all open positions.
func (a *Account) TotalMarketValue() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := 0.0
	for _, p := range a.positions {
		total += p.MarketValue()
	}
	return total
}

// TotalEquity is cash plus the market value of all positions.
func (a *Account) TotalEquity() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := a.cash
	for _, p := range a.positions {
		total += p.MarketValue()
	}
	return total
}

// TotalPnL is equity relative to the initial funding.
func (a *Account) TotalPnL() float64 {
	return a.TotalEquity() - a.InitialCash
}

// IsHealthy reports whether cash is non-negative and frozen cash does
// not exceed the balance.
func (a *Account) IsHealthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash >= 0 && a.frozenCash >= 0 && a.frozenCash <= a.cash
}

// Fills returns a copy of the fill history.
func (a *Account) Fills() []*Fill {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Fill, len(a.fills))
	copy(out, a.fills)
	return out
}

// Trades returns a copy of the trade history, open and closed.
func (a *Account) Trades() []*Trade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

func (a *Account) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fmt.Sprintf("Account[%s cash=%.2f frozen=%.2f positions=%d]",
		a.AccountID, a.cash, a.frozenCash, len(a.positions))
}
