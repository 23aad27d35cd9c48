package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the contract every bus event satisfies. Events are immutable
// after publication; the extension map is for producer-side annotation
// before publishing only.
type Event interface {
	EventID() string
	Type() EventType
	Timestamp() time.Time
	// Symbol is the related instrument, empty when not applicable.
	Symbol() string
	// Priority orders dispatch; lower is more urgent.
	Priority() int
}

// BaseEvent carries the fields common to all events. Concrete events
// embed it and add their payload.
type BaseEvent struct {
	ID     string
	Kind   EventType
	Time   time.Time
	Sym    string
	Prio   int
	Extras map[string]interface{}
}

func newBaseEvent(kind EventType, ts time.Time, symbol string, priority int) BaseEvent {
	return BaseEvent{
		ID:   uuid.NewString(),
		Kind: kind,
		Time: ts,
		Sym:  symbol,
		Prio: priority,
	}
}

func (e *BaseEvent) EventID() string      { return e.ID }
func (e *BaseEvent) Type() EventType      { return e.Kind }
func (e *BaseEvent) Timestamp() time.Time { return e.Time }
func (e *BaseEvent) Symbol() string       { return e.Sym }
func (e *BaseEvent) Priority() int        { return e.Prio }

// MarketEvent is a new bar for a symbol.
type MarketEvent struct {
	BaseEvent
	Bar *Bar
}

// NewMarketEvent wraps a bar for publication.
func NewMarketEvent(bar *Bar) *MarketEvent {
	return &MarketEvent{
		BaseEvent: newBaseEvent(EventMarket, bar.Timestamp, bar.Symbol, PriorityDefault),
		Bar:       bar,
	}
}

func (e *MarketEvent) String() string {
	return fmt.Sprintf("MarketEvent[%s %s]", e.Sym, e.Bar)
}

// SignalEvent carries a strategy signal and the id of the market event
// that triggered it.
type SignalEvent struct {
	BaseEvent
	Signal         *Signal
	TriggerEventID string
}

// NewSignalEvent wraps a signal for publication.
func NewSignalEvent(signal *Signal, triggerEventID string) *SignalEvent {
	return &SignalEvent{
		BaseEvent:      newBaseEvent(EventSignal, time.Now(), signal.Symbol, PrioritySignal),
		Signal:         signal,
		TriggerEventID: triggerEventID,
	}
}

func (e *SignalEvent) String() string {
	return fmt.Sprintf("SignalEvent[%s]", e.Signal)
}

// OrderEvent carries an order plus the action requested on it.
type OrderEvent struct {
	BaseEvent
	Order           *Order
	Action          OrderAction
	RelatedSignalID string
}

// NewOrderEvent wraps an order for publication. Order events are urgent
// (priority 2).
func NewOrderEvent(order *Order, action OrderAction, relatedSignalID string) *OrderEvent {
	return &OrderEvent{
		BaseEvent:       newBaseEvent(EventOrder, time.Now(), order.Symbol, PriorityOrder),
		Order:           order,
		Action:          action,
		RelatedSignalID: relatedSignalID,
	}
}

func (e *OrderEvent) String() string {
	return fmt.Sprintf("OrderEvent[%s %s]", e.Action, e.Order)
}

// FillEvent carries a fill. Fill events take the highest priority so that
// position and cash state converge before further decisions.
type FillEvent struct {
	BaseEvent
	Fill *Fill
}

// NewFillEvent wraps a fill for publication.
func NewFillEvent(fill *Fill) *FillEvent {
	return &FillEvent{
		BaseEvent: newBaseEvent(EventFill, fill.Timestamp, fill.Symbol, PriorityFill),
		Fill:      fill,
	}
}

// StrategyID is the id of the strategy the fill is attributed to.
func (e *FillEvent) StrategyID() string { return e.Fill.StrategyID }

func (e *FillEvent) String() string {
	return fmt.Sprintf("FillEvent[%s]", e.Fill)
}

// TimerEvent is a periodic trigger. Its priority derives from the timer
// type.
type TimerEvent struct {
	BaseEvent
	TimerType  TimerType
	IntervalMs int64
	Payload    map[string]interface{}
}

// NewTimerEvent creates a timer event for the given type and recurrence
// interval.
func NewTimerEvent(timerType TimerType, intervalMs int64, payload map[string]interface{}) *TimerEvent {
	return &TimerEvent{
		BaseEvent:  newBaseEvent(EventTimer, time.Now(), "", timerType.Priority()),
		TimerType:  timerType,
		IntervalMs: intervalMs,
		Payload:    payload,
	}
}

func (e *TimerEvent) String() string {
	return fmt.Sprintf("TimerEvent[%s %dms]", e.TimerType, e.IntervalMs)
}

// SystemEvent signals an engine-level condition (startup, shutdown, ...).
type SystemEvent struct {
	BaseEvent
	Message string
}

// NewSystemEvent creates a system event.
func NewSystemEvent(message string, priority int) *SystemEvent {
	return &SystemEvent{
		BaseEvent: newBaseEvent(EventSystem, time.Now(), "", priority),
		Message:   message,
	}
}

func (e *SystemEvent) String() string {
	return fmt.Sprintf("SystemEvent[%s]", e.Message)
}
