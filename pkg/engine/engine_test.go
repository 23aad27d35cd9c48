package engine

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// mockHandler records events; an optional callback runs inside
// HandleEvent.
type mockHandler struct {
	name string
	fn   func(entity.Event) error

	mu     sync.Mutex
	events []entity.Event

	initialized int32
	destroyed   int32
}

func newMockHandler(name string) *mockHandler {
	return &mockHandler{name: name}
}

func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) Initialize() error {
	atomic.AddInt32(&m.initialized, 1)
	return nil
}

func (m *mockHandler) Destroy() error {
	atomic.AddInt32(&m.destroyed, 1)
	return nil
}

func (m *mockHandler) HandleEvent(ev entity.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ev)
	}
	return nil
}

func (m *mockHandler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockHandler) snapshot() []entity.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Event, len(m.events))
	copy(out, m.events)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testBar(symbol string) *entity.Bar {
	return &entity.Bar{Symbol: symbol, Timestamp: time.Now(), Frequency: entity.FreqDaily,
		Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000}
}

func TestHeapOrdersByPriorityThenSequence(t *testing.T) {
	h := make(eventHeap, 0)

	sig := entity.NewSignal("s1", "A", entity.SignalBuy, 0.5, 10, "")
	ord := entity.NewOrder("A", entity.OrderLimit, entity.SideBuy, 100, 10, "s1")
	fill := entity.NewFill(ord.OrderID, "A", entity.SideBuy, 100, 10, time.Now(), "s1")

	events := []entity.Event{
		entity.NewMarketEvent(testBar("A")), // priority 5
		entity.NewSignalEvent(sig, ""),      // priority 3
		entity.NewFillEvent(fill),           // priority 1
		entity.NewOrderEvent(ord, entity.ActionNew, ""), // priority 2
		entity.NewMarketEvent(testBar("B")), // priority 5, published after A
	}
	for i, ev := range events {
		heap.Push(&h, &queuedEvent{event: ev, priority: ev.Priority(), seq: uint64(i)})
	}

	var got []entity.EventType
	var symbols []string
	for h.Len() > 0 {
		item := heap.Pop(&h).(*queuedEvent)
		got = append(got, item.event.Type())
		symbols = append(symbols, item.event.Symbol())
	}

	want := []entity.EventType{entity.EventFill, entity.EventOrder,
		entity.EventSignal, entity.EventMarket, entity.EventMarket}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop %d = %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
	// Equal priority dispatches in publish order.
	if symbols[3] != "A" || symbols[4] != "B" {
		t.Errorf("FIFO tie-break violated: %v", symbols[3:])
	}
}

func TestPublishRequiresRunningEngine(t *testing.T) {
	e := NewEngine(nil)
	if e.Publish(entity.NewMarketEvent(testBar("A"))) {
		t.Error("publish on stopped engine must return false")
	}
	if e.Publish(nil) {
		t.Error("publish of nil must return false")
	}
}

func TestPublishAndDispatch(t *testing.T) {
	e := NewEngine(nil)
	h := newMockHandler("market-sub")
	if err := e.Register(h, entity.EventMarket); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	if atomic.LoadInt32(&h.initialized) != 1 {
		t.Error("handler not initialized on register")
	}

	for i := 0; i < 10; i++ {
		if !e.Publish(entity.NewMarketEvent(testBar(fmt.Sprintf("SYM%d", i)))) {
			t.Fatalf("publish %d rejected", i)
		}
	}

	waitFor(t, func() bool { return h.count() == 10 }, "events not delivered")
}

func TestDispatchFiltersByEventType(t *testing.T) {
	e := NewEngine(nil)
	market := newMockHandler("market-sub")
	signal := newMockHandler("signal-sub")
	e.Register(market, entity.EventMarket)
	e.Register(signal, entity.EventSignal)
	e.Start()
	defer e.Stop()

	e.Publish(entity.NewMarketEvent(testBar("A")))
	sig := entity.NewSignal("s1", "A", entity.SignalBuy, 0.5, 10, "")
	e.Publish(entity.NewSignalEvent(sig, ""))

	waitFor(t, func() bool { return market.count() == 1 && signal.count() == 1 },
		"events not routed")

	if market.snapshot()[0].Type() != entity.EventMarket {
		t.Error("market subscriber received wrong event type")
	}
	if signal.snapshot()[0].Type() != entity.EventSignal {
		t.Error("signal subscriber received wrong event type")
	}
}

func TestLowPriorityShedNearCapacity(t *testing.T) {
	e := NewEngine(&Config{MaxQueueSize: 10, InboxSize: 10})
	// Mark running without launching the dispatcher so the queue level
	// stays exactly where the test puts it.
	e.mu.Lock()
	e.isRunning = true
	e.mu.Unlock()

	e.queueMu.Lock()
	for i := 0; i < 9; i++ {
		ev := entity.NewMarketEvent(testBar("PAD"))
		e.queue = append(e.queue, &queuedEvent{event: ev, priority: 5, seq: uint64(i)})
	}
	e.queueMu.Unlock()

	// 9/10 is at the 90% mark: low priority is shed, high is admitted.
	if e.Publish(entity.NewTimerEvent(entity.TimerHeartbeat, 1000, nil)) {
		t.Error("priority 8 event admitted to a nearly full queue")
	}
	fill := entity.NewFill("o", "A", entity.SideBuy, 100, 10, time.Now(), "")
	if !e.Publish(entity.NewFillEvent(fill)) {
		t.Error("priority 1 event rejected from a nearly full queue")
	}

	stats := e.Statistics()
	if stats.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", stats.Rejected)
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	e := NewEngine(nil)

	release := make(chan struct{})
	slow := newMockHandler("slow-sub")
	slow.fn = func(entity.Event) error {
		<-release
		return nil
	}
	fast := newMockHandler("fast-sub")

	e.Register(slow, entity.EventMarket)
	e.Register(fast, entity.EventMarket)
	e.Start()
	defer e.Stop()

	for i := 0; i < 5; i++ {
		e.Publish(entity.NewMarketEvent(testBar("A")))
	}

	// The fast subscriber finishes all five while the slow one is stuck
	// on its first event.
	waitFor(t, func() bool { return fast.count() == 5 }, "fast subscriber blocked")
	close(release)
	waitFor(t, func() bool { return slow.count() == 5 }, "slow subscriber never drained")
}

func TestFullInboxDropsForThatSubscriberOnly(t *testing.T) {
	e := NewEngine(&Config{MaxQueueSize: 1000, InboxSize: 2})

	release := make(chan struct{})
	stuck := newMockHandler("stuck-sub")
	stuck.fn = func(entity.Event) error {
		<-release
		return nil
	}
	healthy := newMockHandler("healthy-sub")

	e.Register(stuck, entity.EventMarket)
	e.Register(healthy, entity.EventMarket)
	e.Start()
	defer e.Stop()

	// Worker takes one, inbox holds two; the rest drop for stuck only.
	for i := 0; i < 10; i++ {
		e.Publish(entity.NewMarketEvent(testBar("A")))
	}

	waitFor(t, func() bool { return healthy.count() == 10 }, "healthy subscriber starved")
	waitFor(t, func() bool {
		return e.Statistics().Subscribers["stuck-sub"].Dropped > 0
	}, "no drops recorded for saturated subscriber")

	close(release)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	e := NewEngine(nil)

	bad := newMockHandler("panic-sub")
	bad.fn = func(entity.Event) error { panic("boom") }
	good := newMockHandler("good-sub")

	e.Register(bad, entity.EventMarket)
	e.Register(good, entity.EventMarket)
	e.Start()
	defer e.Stop()

	e.Publish(entity.NewMarketEvent(testBar("A")))
	e.Publish(entity.NewMarketEvent(testBar("B")))

	waitFor(t, func() bool { return good.count() == 2 }, "panic took down dispatch")
	waitFor(t, func() bool {
		return e.Statistics().Subscribers["panic-sub"].Errors == 2
	}, "panics not counted as errors")
}

func TestStopReturnsStatistics(t *testing.T) {
	e := NewEngine(nil)
	h := newMockHandler("sub")
	e.Register(h, entity.EventMarket)
	e.Start()

	for i := 0; i < 3; i++ {
		e.Publish(entity.NewMarketEvent(testBar("A")))
	}
	waitFor(t, func() bool { return h.count() == 3 }, "events not processed")

	stats := e.Stop()
	if stats.Published != 3 || stats.Dispatched != 3 {
		t.Errorf("stats = %+v, want published=3 dispatched=3", stats)
	}
	if atomic.LoadInt32(&h.destroyed) != 1 {
		t.Errorf("destroy count = %d, want 1", h.destroyed)
	}
	if e.IsRunning() {
		t.Error("engine still running after Stop")
	}

	// Stop again is a no-op.
	e.Stop()
}

func TestStatisticsReportRunningAndInboxState(t *testing.T) {
	e := NewEngine(nil)
	h := newMockHandler("sub")
	e.Register(h, entity.EventMarket)

	stats := e.Statistics()
	if stats.Running {
		t.Error("running reported before Start")
	}
	if sub, ok := stats.Subscribers["sub"]; !ok || sub.Active {
		t.Errorf("subscriber before Start = %+v, want registered and inactive", sub)
	}

	e.Start()
	defer e.Stop()

	e.Publish(entity.NewMarketEvent(testBar("A")))
	waitFor(t, func() bool { return h.count() == 1 }, "event not processed")

	stats = e.Statistics()
	if !stats.Running {
		t.Error("running not reported after Start")
	}
	sub := stats.Subscribers["sub"]
	if !sub.Active || sub.InboxSize != 0 {
		t.Errorf("subscriber = %+v, want active with a drained inbox", sub)
	}
}

func TestDoubleStartAndDuplicateRegister(t *testing.T) {
	e := NewEngine(nil)
	h := newMockHandler("sub")
	if err := e.Register(h, entity.EventMarket); err != nil {
		t.Fatal(err)
	}
	if err := e.Register(newMockHandler("sub"), entity.EventMarket); err == nil {
		t.Error("duplicate register must fail")
	}

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	if err := e.Start(); err == nil {
		t.Error("double start must fail")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	e := NewEngine(nil)
	h := newMockHandler("sub")
	e.Register(h, entity.EventMarket)
	e.Start()
	defer e.Stop()

	e.Publish(entity.NewMarketEvent(testBar("A")))
	waitFor(t, func() bool { return h.count() == 1 }, "first event not delivered")

	if err := e.Unregister("sub"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&h.destroyed) == 1 },
		"handler not destroyed on unregister")

	e.Publish(entity.NewMarketEvent(testBar("B")))
	time.Sleep(150 * time.Millisecond)
	if h.count() != 1 {
		t.Errorf("events delivered after unregister: %d", h.count())
	}

	if err := e.Unregister("sub"); err == nil {
		t.Error("unregister of unknown handler must fail")
	}
}
