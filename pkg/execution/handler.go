// Package execution consumes order events, drives orders through their
// lifecycle and emits fill events. Two implementations share the base
// bookkeeping: a simulated handler for backtests and a NATS-backed live
// handler.
package execution

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Publisher is the slice of the event engine the handlers publish fills
// through.
type Publisher interface {
	Publish(event entity.Event) bool
}

// Handler is the execution contract both implementations satisfy. It
// extends the engine handler surface with order cancellation.
type Handler interface {
	Name() string
	Initialize() error
	HandleEvent(event entity.Event) error
	Destroy() error

	// CancelOrder cancels an active order; it reports false when the
	// order is unknown, not cancellable, or the venue refused.
	CancelOrder(orderID string) bool

	// Statistics snapshots the handler counters.
	Statistics() Statistics
}

// Statistics is a snapshot of the execution counters.
type Statistics struct {
	Received    uint64 `json:"received"`
	Submitted   uint64 `json:"submitted"`
	Filled      uint64 `json:"filled"`
	PartialFill uint64 `json:"partial_fills"`
	Rejected    uint64 `json:"rejected"`
	Cancelled   uint64 `json:"cancelled"`
	Active      int    `json:"active"`
}

// executor is the subtype-specific part of order handling.
type executor interface {
	// executeOrder attempts to execute; an error rejects the order.
	executeOrder(order *entity.Order) error

	// cancelOrder cancels at the venue; false leaves status unchanged.
	cancelOrder(order *entity.Order) bool
}

// baseHandler carries active-order bookkeeping, fill emission and the
// shared half of the order lifecycle.
type baseHandler struct {
	name      string
	publisher Publisher
	fees      entity.FeeSchedule
	exec      executor

	mu           sync.RWMutex
	activeOrders map[string]*entity.Order

	received    uint64
	submitted   uint64
	filled      uint64
	partialFill uint64
	rejected    uint64
	cancelled   uint64
}

func newBaseHandler(name string, publisher Publisher, fees entity.FeeSchedule) *baseHandler {
	return &baseHandler{
		name:         name,
		publisher:    publisher,
		fees:         fees,
		activeOrders: make(map[string]*entity.Order),
	}
}

// Name implements the engine handler contract.
func (b *baseHandler) Name() string { return b.name }

// HandleEvent accepts order events; other event types fall through to
// the concrete handler via onEvent hooks.
func (b *baseHandler) HandleEvent(event entity.Event) error {
	ev, ok := event.(*entity.OrderEvent)
	if !ok {
		return nil
	}
	switch ev.Action {
	case entity.ActionNew:
		b.submitOrder(ev.Order)
	case entity.ActionCancel:
		if ev.Order != nil {
			b.CancelOrder(ev.Order.OrderID)
		}
	}
	return nil
}

// submitOrder validates, registers and executes one incoming order.
func (b *baseHandler) submitOrder(order *entity.Order) {
	atomic.AddUint64(&b.received, 1)

	if err := validateOrder(order); err != nil {
		atomic.AddUint64(&b.rejected, 1)
		if order != nil {
			order.Reject(err.Error())
		}
		log.Printf("[%s] Order rejected: %v", b.name, err)
		return
	}

	b.mu.Lock()
	b.activeOrders[order.OrderID] = order
	b.mu.Unlock()

	order.UpdateStatus(entity.OrderSubmitted)
	atomic.AddUint64(&b.submitted, 1)

	if err := b.exec.executeOrder(order); err != nil {
		b.rejectOrder(order, err.Error())
	}
}

func validateOrder(order *entity.Order) error {
	if order == nil {
		return fmt.Errorf("nil order")
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order %s: non-positive quantity %d", order.OrderID, order.Quantity)
	}
	if order.Price < 0 {
		return fmt.Errorf("order %s: negative price %.4f", order.OrderID, order.Price)
	}
	if order.Price == 0 && order.Type != entity.OrderMarket {
		return fmt.Errorf("order %s: %s order requires a price", order.OrderID, order.Type)
	}
	return nil
}

// rejectOrder marks the order rejected and drops it from the active
// set. No fill is emitted.
func (b *baseHandler) rejectOrder(order *entity.Order, reason string) {
	order.Reject(reason)
	b.removeActive(order.OrderID)
	atomic.AddUint64(&b.rejected, 1)
	log.Printf("[%s] Order %s rejected: %s", b.name, order.OrderID, reason)
}

// processFill applies one execution to the order, emits the fill event
// and retires the order when nothing remains.
func (b *baseHandler) processFill(order *entity.Order, quantity int64, price float64,
	simulated bool, exchangeTradeID string) {

	order.AddFill(quantity, price)

	fill := entity.NewFill(order.OrderID, order.Symbol, order.Side, quantity, price,
		time.Now(), order.StrategyID)
	fill.IsSimulated = simulated
	fill.ExchangeTradeID = exchangeTradeID
	fill.ApplyFees(b.fees)

	if order.Status == entity.OrderFilled {
		b.removeActive(order.OrderID)
		atomic.AddUint64(&b.filled, 1)
	} else {
		atomic.AddUint64(&b.partialFill, 1)
	}

	if !b.publisher.Publish(entity.NewFillEvent(fill)) {
		log.Printf("[%s] Fill event rejected by engine for order %s", b.name, order.OrderID)
	}
}

// CancelOrder cancels an active order if it is cancellable.
func (b *baseHandler) CancelOrder(orderID string) bool {
	b.mu.RLock()
	order, ok := b.activeOrders[orderID]
	b.mu.RUnlock()
	if !ok || !order.IsCancellable() {
		return false
	}

	if !b.exec.cancelOrder(order) {
		// A failed venue cancel leaves the order as it was.
		return false
	}

	order.Cancel("cancel requested")
	b.removeActive(orderID)
	atomic.AddUint64(&b.cancelled, 1)
	log.Printf("[%s] Order %s cancelled", b.name, orderID)
	return true
}

// CancelAll cancels every active order; used on shutdown.
func (b *baseHandler) CancelAll() {
	b.mu.RLock()
	ids := make([]string, 0, len(b.activeOrders))
	for id := range b.activeOrders {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	for _, id := range ids {
		b.CancelOrder(id)
	}
}

// ActiveOrder looks up an active order by id.
func (b *baseHandler) ActiveOrder(orderID string) (*entity.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.activeOrders[orderID]
	return o, ok
}

// activeForSymbol snapshots the active orders for one symbol.
func (b *baseHandler) activeForSymbol(symbol string) []*entity.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*entity.Order
	for _, o := range b.activeOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

func (b *baseHandler) removeActive(orderID string) {
	b.mu.Lock()
	delete(b.activeOrders, orderID)
	b.mu.Unlock()
}

// Statistics snapshots the handler counters.
func (b *baseHandler) Statistics() Statistics {
	b.mu.RLock()
	active := len(b.activeOrders)
	b.mu.RUnlock()
	return Statistics{
		Received:    atomic.LoadUint64(&b.received),
		Submitted:   atomic.LoadUint64(&b.submitted),
		Filled:      atomic.LoadUint64(&b.filled),
		PartialFill: atomic.LoadUint64(&b.partialFill),
		Rejected:    atomic.LoadUint64(&b.rejected),
		Cancelled:   atomic.LoadUint64(&b.cancelled),
		Active:      active,
	}
}
