package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FeeSchedule holds the tunable fee rates applied to fills. The zero
// value charges nothing; use DefaultFeeSchedule for the standard A-share
// rates.
type FeeSchedule struct {
	CommissionRate  float64 `yaml:"commission_rate" json:"commission_rate"`
	MinCommission   float64 `yaml:"min_commission" json:"min_commission"`
	StampTaxRate    float64 `yaml:"stamp_tax_rate" json:"stamp_tax_rate"` // SELL only
	TransferFeeRate float64 `yaml:"transfer_fee_rate" json:"transfer_fee_rate"`
	MinTransferFee  float64 `yaml:"min_transfer_fee" json:"min_transfer_fee"`
}

// DefaultFeeSchedule returns the domain default rates: 0.03% commission
// with a 5 floor, 0.1% stamp tax on sells, 0.002% transfer fee with a 1
// floor.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		CommissionRate:  0.0003,
		MinCommission:   5.0,
		StampTaxRate:    0.001,
		TransferFeeRate: 0.00002,
		MinTransferFee:  1.0,
	}
}

// Fill is a realized (partial) execution of an order.
type Fill struct {
	FillID   string    `json:"fill_id"`
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`

	// Amount is quantity times price, before fees.
	Amount      float64 `json:"amount"`
	Commission  float64 `json:"commission"`
	StampTax    float64 `json:"stamp_tax"`
	TransferFee float64 `json:"transfer_fee"`
	TotalFee    float64 `json:"total_fee"`

	// NetAmount is the signed cash flow: -(amount+fees) on BUY,
	// amount-fees on SELL.
	NetAmount float64 `json:"net_amount"`

	Timestamp  time.Time `json:"timestamp"`
	StrategyID string    `json:"strategy_id,omitempty"`

	// ExchangeTradeID is set by live execution only.
	ExchangeTradeID string `json:"exchange_trade_id,omitempty"`
	IsSimulated     bool   `json:"is_simulated"`
}

// NewFill creates a fill and computes its fees from the default schedule.
func NewFill(orderID, symbol string, side OrderSide, quantity int64,
	price float64, timestamp time.Time, strategyID string) *Fill {

	f := &Fill{
		FillID:      uuid.NewString(),
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		Timestamp:   timestamp,
		StrategyID:  strategyID,
		IsSimulated: true,
	}
	f.ApplyFees(DefaultFeeSchedule())
	return f
}

// ApplyFees recomputes amount, the three fee components and the net
// cash flow under the given schedule.
func (f *Fill) ApplyFees(s FeeSchedule) {
	f.Amount = float64(f.Quantity) * f.Price

	f.Commission = f.Amount * s.CommissionRate
	if f.Commission < s.MinCommission {
		f.Commission = s.MinCommission
	}

	f.StampTax = 0
	if f.Side == SideSell {
		f.StampTax = f.Amount * s.StampTaxRate
	}

	f.TransferFee = f.Amount * s.TransferFeeRate
	if f.TransferFee < s.MinTransferFee {
		f.TransferFee = s.MinTransferFee
	}

	f.TotalFee = f.Commission + f.StampTax + f.TransferFee

	if f.Side == SideBuy {
		f.NetAmount = -(f.Amount + f.TotalFee)
	} else {
		f.NetAmount = f.Amount - f.TotalFee
	}
}

// SignedQuantity is positive for buys and negative for sells.
func (f *Fill) SignedQuantity() int64 {
	if f.Side == SideBuy {
		return f.Quantity
	}
	return -f.Quantity
}

// IsValid reports whether the fill references an order and has positive
// quantity, price and amount.
func (f *Fill) IsValid() bool {
	return f.FillID != "" && f.OrderID != "" && f.Symbol != "" &&
		(f.Side == SideBuy || f.Side == SideSell) &&
		f.Quantity > 0 && f.Price > 0 && f.Amount > 0 &&
		!f.Timestamp.IsZero()
}

// FeeRate is the total fee relative to the traded amount.
func (f *Fill) FeeRate() float64 {
	if f.Amount <= 0 {
		return 0
	}
	return f.TotalFee / f.Amount
}

// Reverse creates the opposite-side fill at the same quantity and price,
// for undo scenarios.
func (f *Fill) Reverse() *Fill {
	r := NewFill(f.OrderID, f.Symbol, f.Side.Opposite(), f.Quantity, f.Price,
		time.Now(), f.StrategyID)
	r.IsSimulated = f.IsSimulated
	return r
}

func (f *Fill) String() string {
	return fmt.Sprintf("Fill[%s %s %d@%.2f net=%.2f fee=%.2f]",
		f.Symbol, f.Side, f.Quantity, f.Price, f.NetAmount, f.TotalFee)
}
