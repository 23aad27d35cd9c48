// Package timer publishes recurring TimerEvents onto the event bus.
// Each registered timer runs its own ticker goroutine; the event's
// priority derives from the timer type.
package timer

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Publisher is the slice of the event engine the timer manager needs.
type Publisher interface {
	Publish(event entity.Event) bool
}

// timerEntry is one registered recurring timer.
type timerEntry struct {
	timerType entity.TimerType
	interval  time.Duration
	payload   map[string]interface{}

	stopChan chan struct{}
	fired    uint64
	shed     uint64
}

// Manager owns the set of recurring timers and publishes their events.
type Manager struct {
	publisher Publisher

	mu     sync.RWMutex
	timers map[entity.TimerType]*timerEntry

	isRunning bool
	wg        sync.WaitGroup
}

// NewManager creates a timer manager publishing through the given
// publisher.
func NewManager(publisher Publisher) *Manager {
	return &Manager{
		publisher: publisher,
		timers:    make(map[entity.TimerType]*timerEntry),
	}
}

// AddTimer registers a recurring timer. When the manager is already
// running the timer starts immediately.
func (m *Manager) AddTimer(timerType entity.TimerType, interval time.Duration,
	payload map[string]interface{}) error {

	if interval <= 0 {
		return fmt.Errorf("timer %s: interval must be positive, got %v", timerType, interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[timerType]; exists {
		return fmt.Errorf("timer %s already registered", timerType)
	}

	entry := &timerEntry{
		timerType: timerType,
		interval:  interval,
		payload:   payload,
		stopChan:  make(chan struct{}),
	}
	m.timers[timerType] = entry

	if m.isRunning {
		m.wg.Add(1)
		go m.runTimer(entry, entry.stopChan)
	}

	log.Printf("[TimerManager] Added timer %s (interval=%v, priority=%d)",
		timerType, interval, timerType.Priority())
	return nil
}

// RemoveTimer stops and removes one timer.
func (m *Manager) RemoveTimer(timerType entity.TimerType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.timers[timerType]
	if !ok {
		return fmt.Errorf("timer %s not registered", timerType)
	}
	delete(m.timers, timerType)

	if m.isRunning {
		close(entry.stopChan)
	}

	log.Printf("[TimerManager] Removed timer %s", timerType)
	return nil
}

// Start launches every registered timer.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("timer manager already running")
	}
	m.isRunning = true

	for _, entry := range m.timers {
		m.wg.Add(1)
		go m.runTimer(entry, entry.stopChan)
	}

	log.Printf("[TimerManager] Started %d timers", len(m.timers))
	return nil
}

// Stop halts all timers and waits for their goroutines to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	for _, entry := range m.timers {
		close(entry.stopChan)
	}
	m.mu.Unlock()

	m.wg.Wait()

	// Only after every goroutine is gone may the channels be re-armed
	// for a later Start.
	m.mu.Lock()
	for _, entry := range m.timers {
		entry.stopChan = make(chan struct{})
	}
	m.mu.Unlock()
	log.Printf("[TimerManager] Stopped")
}

// IsRunning reports whether the timers are firing.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// FireCount returns how many times one timer has fired.
func (m *Manager) FireCount(timerType entity.TimerType) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.timers[timerType]; ok {
		return atomic.LoadUint64(&entry.fired)
	}
	return 0
}

// runTimer fires one timer until its stop channel closes. The channel
// is passed in so a Stop/Start cycle can never hand a goroutine the
// re-armed channel.
func (m *Manager) runTimer(entry *timerEntry, stop chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ev := entity.NewTimerEvent(entry.timerType,
				entry.interval.Milliseconds(), entry.payload)
			if m.publisher.Publish(ev) {
				atomic.AddUint64(&entry.fired, 1)
			} else {
				// The engine sheds low-priority timers under load.
				atomic.AddUint64(&entry.shed, 1)
			}
		}
	}
}
