package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order is a commitment to trade at specific terms pending execution.
//
// The invariant FilledQuantity + RemainingQuantity == Quantity holds
// through every AddFill call.
type Order struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Type     OrderType `json:"order_type"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"` // limit price; 0 allowed for market orders

	Status OrderStatus `json:"status"`

	CreatedTime    time.Time `json:"created_time"`
	SubmittedTime  time.Time `json:"submitted_time,omitempty"`
	LastUpdateTime time.Time `json:"last_update_time"`

	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	AvgFillPrice      float64 `json:"avg_fill_price"`
	TotalFillAmount   float64 `json:"total_fill_amount"`

	SignalID   string `json:"signal_id,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	Tag        string `json:"tag,omitempty"`

	TimeInForce TimeInForce `json:"time_in_force"`
	ExpireTime  time.Time   `json:"expire_time,omitempty"`

	// CancelReason holds the cancel or reject reason, whichever applies.
	CancelReason string `json:"cancel_reason,omitempty"`
}

// NewOrder creates a PENDING day order with a fresh id.
func NewOrder(symbol string, orderType OrderType, side OrderSide,
	quantity int64, price float64, strategyID string) *Order {

	now := time.Now()
	return &Order{
		OrderID:           uuid.NewString(),
		Symbol:            symbol,
		Type:              orderType,
		Side:              side,
		Quantity:          quantity,
		Price:             price,
		StrategyID:        strategyID,
		Status:            OrderPending,
		CreatedTime:       now,
		LastUpdateTime:    now,
		RemainingQuantity: quantity,
		TimeInForce:       TIFDay,
	}
}

// UpdateStatus transitions the order and stamps the update time.
// SUBMITTED additionally records the submission time.
func (o *Order) UpdateStatus(status OrderStatus) {
	o.Status = status
	o.LastUpdateTime = time.Now()
	if status == OrderSubmitted {
		o.SubmittedTime = o.LastUpdateTime
	}
}

// AddFill applies a (partial) execution, updating fill accounting and
// transitioning to PARTIALLY_FILLED or FILLED.
func (o *Order) AddFill(quantity int64, price float64) {
	if quantity <= 0 || price <= 0 {
		return
	}

	o.TotalFillAmount += float64(quantity) * price
	o.FilledQuantity += quantity
	o.RemainingQuantity = o.Quantity - o.FilledQuantity
	if o.RemainingQuantity < 0 {
		o.RemainingQuantity = 0
	}
	if o.FilledQuantity > 0 {
		o.AvgFillPrice = o.TotalFillAmount / float64(o.FilledQuantity)
	}

	if o.RemainingQuantity == 0 {
		o.UpdateStatus(OrderFilled)
	} else {
		o.UpdateStatus(OrderPartiallyFilled)
	}
}

// Cancel marks the order cancelled with a reason.
func (o *Order) Cancel(reason string) {
	o.CancelReason = reason
	o.UpdateStatus(OrderCancelled)
}

// Reject marks the order rejected with a reason.
func (o *Order) Reject(reason string) {
	o.CancelReason = reason
	o.UpdateStatus(OrderRejected)
}

// Expire marks the order expired.
func (o *Order) Expire() {
	o.UpdateStatus(OrderExpired)
}

// IsValidAt checks the structural fields and, for GTT orders, the expiry.
// Market orders may carry price 0.
func (o *Order) IsValidAt(now time.Time) bool {
	if o.OrderID == "" || o.Symbol == "" || o.Quantity <= 0 {
		return false
	}
	if o.Price < 0 || (o.Price == 0 && o.Type != OrderMarket) {
		return false
	}
	if o.TimeInForce == TIFGTT && !o.ExpireTime.IsZero() && now.After(o.ExpireTime) {
		return false
	}
	return o.Status != OrderRejected && o.Status != OrderCancelled
}

// IsFinished reports whether the order reached a terminal status.
func (o *Order) IsFinished() bool {
	switch o.Status {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// IsCancellable reports whether a cancel request is meaningful now.
func (o *Order) IsCancellable() bool {
	switch o.Status {
	case OrderPending, OrderSubmitted, OrderPartiallyFilled:
		return true
	}
	return false
}

// FillRatio is filled quantity over total quantity in [0,1].
func (o *Order) FillRatio() float64 {
	if o.Quantity <= 0 {
		return 0
	}
	return float64(o.FilledQuantity) / float64(o.Quantity)
}

// TotalValue is quantity times limit price.
func (o *Order) TotalValue() float64 {
	return float64(o.Quantity) * o.Price
}

func (o *Order) String() string {
	return fmt.Sprintf("Order[%s %s %s %d@%.2f %s]",
		o.Symbol, o.Side, o.Type, o.Quantity, o.Price, o.Status)
}
