package entity

import (
	"fmt"
	"time"
)

// Position is the signed holding state for one symbol. Quantity is
// positive for long, negative for short; a position at quantity zero is
// removed from its account rather than kept around.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`

	LastPrice      float64   `json:"last_price"`
	LastUpdateTime time.Time `json:"last_update_time"`

	RealizedPnL float64 `json:"realized_pnl"`

	// FrozenQuantity is the part of a long position reserved by open
	// sell orders.
	FrozenQuantity int64 `json:"frozen_quantity"`
}

// NewPosition creates a position opened by a single trade.
func NewPosition(symbol string, quantity int64, price float64) *Position {
	return &Position{
		Symbol:         symbol,
		Quantity:       quantity,
		AvgPrice:       price,
		LastPrice:      price,
		LastUpdateTime: time.Now(),
	}
}

// Apply merges a signed quantity delta executed at price into the
// position. Adding in the same direction recomputes the average cost;
// reducing keeps it and realizes pnl on the closed part; crossing
// through zero resets the average cost to the execution price.
func (p *Position) Apply(delta int64, price float64) {
	if delta == 0 {
		return
	}
	newQty := p.Quantity + delta

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, delta):
		total := float64(p.Quantity)*p.AvgPrice + float64(delta)*price
		p.AvgPrice = abs(total) / abs(float64(newQty))
	case sameSign(p.Quantity, newQty):
		// Partial reduce: average cost unchanged, realize the closed part.
		p.RealizedPnL += abs(float64(delta)) * (price - p.AvgPrice) * sign(p.Quantity)
	case newQty == 0:
		p.RealizedPnL += float64(p.Quantity) * (price - p.AvgPrice)
		p.AvgPrice = 0
	default:
		// Reversal through zero: the old leg is fully closed, the
		// remainder opens at the execution price.
		p.RealizedPnL += float64(p.Quantity) * (price - p.AvgPrice)
		p.AvgPrice = price
	}

	p.Quantity = newQty
	p.LastPrice = price
	p.LastUpdateTime = time.Now()
}

// UpdatePrice records the latest market price for valuation.
func (p *Position) UpdatePrice(price float64) {
	p.LastPrice = price
	p.LastUpdateTime = time.Now()
}

// MarketValue is the signed valuation at the last known price, falling
// back to average cost when no price was seen yet.
func (p *Position) MarketValue() float64 {
	price := p.LastPrice
	if price <= 0 {
		price = p.AvgPrice
	}
	return float64(p.Quantity) * price
}

// UnrealizedPnL is the open profit at the last known price.
func (p *Position) UnrealizedPnL() float64 {
	if p.Quantity == 0 || p.LastPrice <= 0 {
		return 0
	}
	return float64(p.Quantity) * (p.LastPrice - p.AvgPrice)
}

// IsLong reports whether the position is net long.
func (p *Position) IsLong() bool { return p.Quantity > 0 }

// IsShort reports whether the position is net short.
func (p *Position) IsShort() bool { return p.Quantity < 0 }

// IsFlat reports whether the position is empty.
func (p *Position) IsFlat() bool { return p.Quantity == 0 }

// SellableQuantity is the unfrozen part of a long position.
func (p *Position) SellableQuantity() int64 {
	if p.Quantity <= 0 {
		return 0
	}
	q := p.Quantity - p.FrozenQuantity
	if q < 0 {
		return 0
	}
	return q
}

func (p *Position) String() string {
	return fmt.Sprintf("Position[%s %d@%.2f last=%.2f pnl=%.2f]",
		p.Symbol, p.Quantity, p.AvgPrice, p.LastPrice, p.RealizedPnL)
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(a int64) float64 {
	if a < 0 {
		return -1
	}
	return 1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
