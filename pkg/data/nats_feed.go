package data

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// barSubjectPrefix + symbol is the per-symbol live bar subject.
const barSubjectPrefix = "md.bar."

// NATSFeed delivers live bars published as JSON on per-symbol subjects.
type NATSFeed struct {
	nc       *nats.Conn
	listener BarListener

	mu   sync.Mutex
	subs map[string]*nats.Subscription

	received uint64
	dropped  uint64
}

// NewNATSFeed creates a feed over an established connection. The
// listener is invoked on the NATS delivery goroutine; it must not block.
func NewNATSFeed(nc *nats.Conn, listener BarListener) *NATSFeed {
	return &NATSFeed{
		nc:       nc,
		listener: listener,
		subs:     make(map[string]*nats.Subscription),
	}
}

// Subscribe starts bar delivery for one symbol.
func (f *NATSFeed) Subscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[symbol]; ok {
		return nil
	}

	subject := barSubjectPrefix + symbol
	sub, err := f.nc.Subscribe(subject, f.onBarMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	f.subs[symbol] = sub
	log.Printf("[NATSFeed] Subscribed %s", subject)
	return nil
}

// Start is part of the Feed contract; subscriptions are live from the
// moment Subscribe returns, so this only checks the connection.
func (f *NATSFeed) Start() error {
	if f.nc == nil || !f.nc.IsConnected() {
		return fmt.Errorf("nats connection not established")
	}
	return nil
}

// Stop drains all subscriptions.
func (f *NATSFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for symbol, sub := range f.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[NATSFeed] Unsubscribe %s: %v", symbol, err)
		}
		delete(f.subs, symbol)
	}
	return nil
}

// Counts returns received and dropped message totals.
func (f *NATSFeed) Counts() (received, dropped uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received, f.dropped
}

func (f *NATSFeed) onBarMessage(msg *nats.Msg) {
	f.mu.Lock()
	f.received++
	f.mu.Unlock()

	var bar entity.Bar
	if err := json.Unmarshal(msg.Data, &bar); err != nil {
		f.drop(msg.Subject, err)
		return
	}
	if err := bar.Validate(); err != nil {
		f.drop(msg.Subject, err)
		return
	}
	f.listener(&bar)
}

func (f *NATSFeed) drop(subject string, err error) {
	f.mu.Lock()
	f.dropped++
	f.mu.Unlock()
	log.Printf("[NATSFeed] Dropped message on %s: %v", subject, err)
}
