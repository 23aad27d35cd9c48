package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trade aggregates the fills of one round trip in a symbol, from the
// first opening fill until the position returns to flat. It is
// informational; cash and positions settle per fill on the account.
type Trade struct {
	TradeID    string      `json:"trade_id"`
	Symbol     string      `json:"symbol"`
	StrategyID string      `json:"strategy_id,omitempty"`
	Status     TradeStatus `json:"status"`

	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time,omitempty"`

	// Net quantity currently open; positive long, negative short.
	OpenQuantity int64 `json:"open_quantity"`

	BuyQuantity   int64   `json:"buy_quantity"`
	SellQuantity  int64   `json:"sell_quantity"`
	BuyAmount     float64 `json:"buy_amount"`
	SellAmount    float64 `json:"sell_amount"`
	TotalFee      float64 `json:"total_fee"`
	RealizedPnL   float64 `json:"realized_pnl"`
	FillCount     int     `json:"fill_count"`
}

// NewTrade starts an open round trip for a symbol.
func NewTrade(symbol, strategyID string) *Trade {
	return &Trade{
		TradeID:    uuid.NewString(),
		Symbol:     symbol,
		StrategyID: strategyID,
		Status:     TradeOpen,
		OpenTime:   time.Now(),
	}
}

// AddFill folds one fill into the round trip and closes it when the net
// quantity returns to zero.
func (t *Trade) AddFill(fill *Fill) {
	if fill == nil || fill.Symbol != t.Symbol {
		return
	}

	if fill.Side == SideBuy {
		t.BuyQuantity += fill.Quantity
		t.BuyAmount += fill.Amount
	} else {
		t.SellQuantity += fill.Quantity
		t.SellAmount += fill.Amount
	}
	t.TotalFee += fill.TotalFee
	t.OpenQuantity += fill.SignedQuantity()
	t.FillCount++

	if t.OpenQuantity == 0 {
		t.Status = TradeClosed
		t.CloseTime = fill.Timestamp
		t.RealizedPnL = t.SellAmount - t.BuyAmount - t.TotalFee
	}
}

// IsClosed reports whether the round trip has completed.
func (t *Trade) IsClosed() bool { return t.Status == TradeClosed }

// IsWin reports whether a closed trade ended profitable.
func (t *Trade) IsWin() bool {
	return t.Status == TradeClosed && t.RealizedPnL > 0
}

// HoldingDuration is the time from open to close, or to now while open.
func (t *Trade) HoldingDuration() time.Duration {
	if t.Status == TradeClosed {
		return t.CloseTime.Sub(t.OpenTime)
	}
	return time.Since(t.OpenTime)
}

// ReturnRate is the realized pnl over the invested buy amount.
func (t *Trade) ReturnRate() float64 {
	if t.BuyAmount <= 0 {
		return 0
	}
	return t.RealizedPnL / t.BuyAmount
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade[%s %s open=%d pnl=%.2f fills=%d]",
		t.Symbol, t.Status, t.OpenQuantity, t.RealizedPnL, t.FillCount)
}
