// Package entity defines the domain model shared by every component:
// bars, signals, orders, fills, positions, accounts, trades and the
// event types that flow through the event engine.
package entity

// EventType identifies the kind of event on the bus.
type EventType string

const (
	EventMarket EventType = "MARKET"
	EventSignal EventType = "SIGNAL"
	EventOrder  EventType = "ORDER"
	EventFill   EventType = "FILL"
	EventTimer  EventType = "TIMER"
	EventSystem EventType = "SYSTEM"
)

// Default event priorities. Lower is more urgent; 1 is reserved for
// fill events and 2 for order events.
const (
	PriorityFill    = 1
	PriorityOrder   = 2
	PrioritySignal  = 3
	PriorityDefault = 5
)

// SignalDirection is a strategy's trading recommendation.
type SignalDirection string

const (
	SignalBuy  SignalDirection = "BUY"
	SignalSell SignalDirection = "SELL"
	SignalHold SignalDirection = "HOLD"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// OrderSide is the trade direction of an order or fill.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the reverse side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// TimeInForce is the validity policy of an order across time.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
	TIFGTT TimeInForce = "GTT"
)

// OrderAction is the intent carried by an OrderEvent.
type OrderAction string

const (
	ActionNew    OrderAction = "NEW"
	ActionModify OrderAction = "MODIFY"
	ActionCancel OrderAction = "CANCEL"
	ActionReject OrderAction = "REJECT"
)

// TradeStatus is the state of a round-trip trade.
type TradeStatus string

const (
	TradeOpen            TradeStatus = "OPEN"
	TradePartiallyClosed TradeStatus = "PARTIALLY_CLOSED"
	TradeClosed          TradeStatus = "CLOSED"
)

// Frequency is the time bucket of a bar.
type Frequency string

const (
	Freq1Min    Frequency = "1m"
	Freq5Min    Frequency = "5m"
	Freq15Min   Frequency = "15m"
	Freq30Min   Frequency = "30m"
	Freq1Hour   Frequency = "1h"
	Freq4Hour   Frequency = "4h"
	FreqDaily   Frequency = "1d"
	FreqWeekly  Frequency = "1w"
	FreqMonthly Frequency = "1mo"
)

// Valid reports whether f is one of the recognized frequency tags.
func (f Frequency) Valid() bool {
	switch f {
	case Freq1Min, Freq5Min, Freq15Min, Freq30Min, Freq1Hour, Freq4Hour,
		FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// TimerType tags a periodic timer event with its purpose.
type TimerType string

const (
	TimerMarketDataUpdate   TimerType = "MARKET_DATA_UPDATE"
	TimerRiskCheck          TimerType = "RISK_CHECK"
	TimerHeartbeat          TimerType = "HEARTBEAT"
	TimerCleanup            TimerType = "CLEANUP"
	TimerStrategyTimer      TimerType = "STRATEGY_TIMER"
	TimerPortfolioRebalance TimerType = "PORTFOLIO_REBALANCE"
)

// Priority returns the event priority derived from the timer type.
func (t TimerType) Priority() int {
	switch t {
	case TimerMarketDataUpdate:
		return 3
	case TimerRiskCheck:
		return 4
	case TimerStrategyTimer:
		return 5
	case TimerPortfolioRebalance:
		return 6
	case TimerHeartbeat:
		return 8
	case TimerCleanup:
		return 9
	default:
		return PriorityDefault
	}
}
