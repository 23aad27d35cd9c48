package engine

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// queuedEvent pairs an event with the sequence number assigned at
// publish time. The sequence breaks priority ties so equal-priority
// events dispatch in publish order.
type queuedEvent struct {
	event    entity.Event
	priority int
	seq      uint64
}

// eventHeap is a min-heap on (priority, seq).
type eventHeap []*queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*queuedEvent))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
