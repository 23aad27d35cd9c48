package engine

import (
	"container/heap"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

const (
	// DefaultMaxQueueSize bounds the main priority queue.
	DefaultMaxQueueSize = 10000

	// DefaultInboxSize bounds each subscriber's FIFO inbox.
	DefaultInboxSize = 1000

	// queueRejectRatio is the fill level above which low-priority
	// publishes are rejected.
	queueRejectRatio = 0.9

	// lowPriorityThreshold marks events that may be shed under load;
	// priorities above it are non-critical.
	lowPriorityThreshold = 5

	// slowHandlerWarn is how long one HandleEvent call may take before
	// a warning is logged.
	slowHandlerWarn = 5 * time.Second

	// pollInterval is the dispatcher's fallback wakeup period.
	pollInterval = 100 * time.Millisecond

	// stopTimeout bounds how long Stop waits for workers to drain.
	stopTimeout = 5 * time.Second
)

// Config tunes the engine's queue bounds.
type Config struct {
	MaxQueueSize int `yaml:"max_queue_size"`
	InboxSize    int `yaml:"inbox_size"`
}

// subscriber is one registered handler with its inbox and worker state.
type subscriber struct {
	name    string
	handler Handler
	types   map[entity.EventType]bool
	inbox   chan entity.Event

	processed uint64
	dropped   uint64
	errors    uint64
}

// SubscriberStats is a point-in-time snapshot of one subscriber's
// counters and inbox state.
type SubscriberStats struct {
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
	InboxSize int    `json:"inbox_size"`
	Active    bool   `json:"active"`
}

// Statistics is a snapshot of the engine's counters.
type Statistics struct {
	Running     bool                       `json:"running"`
	Published   uint64                     `json:"published"`
	Dispatched  uint64                     `json:"dispatched"`
	Rejected    uint64                     `json:"rejected"`
	QueueDepth  int                        `json:"queue_depth"`
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

// Engine is the prioritized event bus. One dispatcher goroutine drains
// the priority queue and fans events out to per-subscriber inboxes;
// each subscriber consumes its inbox on a dedicated worker so a slow
// handler never stalls the others.
type Engine struct {
	maxQueueSize int
	inboxSize    int

	queueMu sync.Mutex
	queue   eventHeap
	seq     uint64

	// wakeup nudges the dispatcher after a publish; capacity 1 so
	// publishers never block on it.
	wakeup chan struct{}

	subMu       sync.RWMutex
	subscribers map[string]*subscriber

	mu             sync.RWMutex
	isRunning      bool
	stopChan       chan struct{}
	dispatcherDone chan struct{}
	wg             sync.WaitGroup

	published  uint64
	dispatched uint64
	rejected   uint64
}

// NewEngine creates an engine. A nil config uses the defaults.
func NewEngine(cfg *Config) *Engine {
	maxQueue := DefaultMaxQueueSize
	inbox := DefaultInboxSize
	if cfg != nil {
		if cfg.MaxQueueSize > 0 {
			maxQueue = cfg.MaxQueueSize
		}
		if cfg.InboxSize > 0 {
			inbox = cfg.InboxSize
		}
	}
	return &Engine{
		maxQueueSize: maxQueue,
		inboxSize:    inbox,
		queue:        make(eventHeap, 0, 64),
		wakeup:       make(chan struct{}, 1),
		subscribers:  make(map[string]*subscriber),
	}
}

// Register subscribes a handler to the given event types. The handler's
// Initialize is called first; if the engine is already running the
// subscriber's worker starts immediately.
func (e *Engine) Register(handler Handler, types ...entity.EventType) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if len(types) == 0 {
		return fmt.Errorf("handler %s subscribes to no event types", handler.Name())
	}

	e.subMu.Lock()
	if _, exists := e.subscribers[handler.Name()]; exists {
		e.subMu.Unlock()
		return fmt.Errorf("handler %s already registered", handler.Name())
	}
	e.subMu.Unlock()

	if err := handler.Initialize(); err != nil {
		return fmt.Errorf("initialize handler %s: %w", handler.Name(), err)
	}

	sub := &subscriber{
		name:    handler.Name(),
		handler: handler,
		types:   make(map[entity.EventType]bool, len(types)),
		inbox:   make(chan entity.Event, e.inboxSize),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	e.subMu.Lock()
	e.subscribers[sub.name] = sub
	e.subMu.Unlock()

	e.mu.RLock()
	running := e.isRunning
	e.mu.RUnlock()
	if running {
		e.wg.Add(1)
		go e.runWorker(sub)
	}

	log.Printf("[EventEngine] Registered handler %s for %d event types",
		sub.name, len(types))
	return nil
}

// Unregister removes a handler. Its inbox is closed, the worker drains
// what is already queued, then Destroy is called.
func (e *Engine) Unregister(name string) error {
	e.subMu.Lock()
	sub, ok := e.subscribers[name]
	if !ok {
		e.subMu.Unlock()
		return fmt.Errorf("handler %s not registered", name)
	}
	delete(e.subscribers, name)
	e.subMu.Unlock()

	close(sub.inbox)

	e.mu.RLock()
	running := e.isRunning
	e.mu.RUnlock()
	if !running {
		// No worker is draining the inbox; destroy directly.
		if err := sub.handler.Destroy(); err != nil {
			log.Printf("[EventEngine] Destroy handler %s: %v", name, err)
		}
	}

	log.Printf("[EventEngine] Unregistered handler %s", name)
	return nil
}

// Publish enqueues an event. It reports false when the event is nil,
// the engine is not running, or the queue is nearly full and the event
// is low priority.
func (e *Engine) Publish(event entity.Event) bool {
	if event == nil {
		return false
	}

	e.mu.RLock()
	running := e.isRunning
	e.mu.RUnlock()
	if !running {
		return false
	}

	e.queueMu.Lock()
	if len(e.queue) >= e.maxQueueSize {
		e.queueMu.Unlock()
		atomic.AddUint64(&e.rejected, 1)
		return false
	}
	if float64(len(e.queue)) >= float64(e.maxQueueSize)*queueRejectRatio &&
		event.Priority() > lowPriorityThreshold {
		e.queueMu.Unlock()
		atomic.AddUint64(&e.rejected, 1)
		log.Printf("[EventEngine] Queue near capacity, shedding low-priority %s event",
			event.Type())
		return false
	}
	e.seq++
	heap.Push(&e.queue, &queuedEvent{event: event, priority: event.Priority(), seq: e.seq})
	e.queueMu.Unlock()

	atomic.AddUint64(&e.published, 1)

	select {
	case e.wakeup <- struct{}{}:
	default:
	}
	return true
}

// Start launches the dispatcher and one worker per registered
// subscriber. Calling Start on a running engine is an error.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return fmt.Errorf("event engine already running")
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	e.dispatcherDone = make(chan struct{})
	e.mu.Unlock()

	e.subMu.RLock()
	for _, sub := range e.subscribers {
		e.wg.Add(1)
		go e.runWorker(sub)
	}
	count := len(e.subscribers)
	e.subMu.RUnlock()

	e.wg.Add(1)
	go e.runDispatcher()

	log.Printf("[EventEngine] Started with %d subscribers (queue=%d, inbox=%d)",
		count, e.maxQueueSize, e.inboxSize)
	return nil
}

// Stop halts dispatch, closes every inbox and waits up to five seconds
// for workers to drain. It returns the final statistics snapshot. Stop
// on a stopped engine is a no-op.
func (e *Engine) Stop() Statistics {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return e.Statistics()
	}
	e.isRunning = false
	close(e.stopChan)
	dispatcherDone := e.dispatcherDone
	e.mu.Unlock()

	// The dispatcher must be out of deliver before any inbox is closed;
	// publishes are already refused so its final drain is bounded.
	select {
	case <-dispatcherDone:
	case <-time.After(stopTimeout):
		log.Printf("[EventEngine] Stop timed out waiting for dispatcher")
	}

	// Closing the inboxes lets workers drain pending events and exit.
	e.subMu.RLock()
	for _, sub := range e.subscribers {
		close(sub.inbox)
	}
	e.subMu.RUnlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Printf("[EventEngine] Stop timed out waiting for workers")
	}

	// Inboxes are closed; re-arm them so a later Start finds usable
	// subscribers.
	e.subMu.Lock()
	for _, sub := range e.subscribers {
		sub.inbox = make(chan entity.Event, e.inboxSize)
	}
	e.subMu.Unlock()

	stats := e.Statistics()
	log.Printf("[EventEngine] Stopped: published=%d dispatched=%d rejected=%d",
		stats.Published, stats.Dispatched, stats.Rejected)
	return stats
}

// IsRunning reports whether the engine is dispatching.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// QueueDepth returns the number of events waiting in the main queue.
func (e *Engine) QueueDepth() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}

// Statistics returns a snapshot of the engine counters.
func (e *Engine) Statistics() Statistics {
	running := e.IsRunning()
	stats := Statistics{
		Running:     running,
		Published:   atomic.LoadUint64(&e.published),
		Dispatched:  atomic.LoadUint64(&e.dispatched),
		Rejected:    atomic.LoadUint64(&e.rejected),
		QueueDepth:  e.QueueDepth(),
		Subscribers: make(map[string]SubscriberStats),
	}
	e.subMu.RLock()
	for name, sub := range e.subscribers {
		stats.Subscribers[name] = SubscriberStats{
			Processed: atomic.LoadUint64(&sub.processed),
			Dropped:   atomic.LoadUint64(&sub.dropped),
			Errors:    atomic.LoadUint64(&sub.errors),
			InboxSize: len(sub.inbox),
			Active:    running,
		}
	}
	e.subMu.RUnlock()
	return stats
}

// runDispatcher drains the priority queue into subscriber inboxes. It
// wakes on publish and additionally polls so nothing is stranded.
func (e *Engine) runDispatcher() {
	defer e.wg.Done()
	defer close(e.dispatcherDone)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Flush whatever was accepted before publishes stopped.
			e.drainQueue()
			return
		case <-e.wakeup:
			e.drainQueue()
		case <-ticker.C:
			e.drainQueue()
		}
	}
}

func (e *Engine) drainQueue() {
	for {
		e.queueMu.Lock()
		if len(e.queue) == 0 {
			e.queueMu.Unlock()
			return
		}
		item := heap.Pop(&e.queue).(*queuedEvent)
		e.queueMu.Unlock()

		e.deliver(item.event)
		atomic.AddUint64(&e.dispatched, 1)
	}
}

// deliver fans one event out to every subscriber of its type. A full
// inbox drops the event for that subscriber only.
func (e *Engine) deliver(event entity.Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()

	for _, sub := range e.subscribers {
		if !sub.types[event.Type()] {
			continue
		}
		select {
		case sub.inbox <- event:
		default:
			atomic.AddUint64(&sub.dropped, 1)
			log.Printf("[EventEngine] Inbox full, dropping %s event for %s",
				event.Type(), sub.name)
		}
	}
}

// runWorker consumes one subscriber's inbox until it is closed.
func (e *Engine) runWorker(sub *subscriber) {
	defer e.wg.Done()

	for event := range sub.inbox {
		e.invokeHandler(sub, event)
	}

	if err := sub.handler.Destroy(); err != nil {
		log.Printf("[EventEngine] Destroy handler %s: %v", sub.name, err)
	}
}

// invokeHandler calls one handler with panic isolation and slow-call
// detection.
func (e *Engine) invokeHandler(sub *subscriber, event entity.Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&sub.errors, 1)
			log.Printf("[EventEngine] Handler %s panicked on %s event: %v",
				sub.name, event.Type(), r)
		}
	}()

	start := time.Now()
	if err := sub.handler.HandleEvent(event); err != nil {
		atomic.AddUint64(&sub.errors, 1)
		log.Printf("[EventEngine] Handler %s failed on %s event: %v",
			sub.name, event.Type(), err)
	}
	if elapsed := time.Since(start); elapsed > slowHandlerWarn {
		log.Printf("[EventEngine] Handler %s took %v on %s event",
			sub.name, elapsed, event.Type())
	}

	atomic.AddUint64(&sub.processed, 1)
}
