// Package stats holds bounded time series used for runtime monitoring:
// equity and cash history for the operator dashboard, plus the rolling
// statistics computed over them.
package stats

import (
	"math"
	"sync"
	"time"
)

// Point is one timestamped observation.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is a bounded, thread-safe series of observations. When the
// capacity is reached the oldest point is dropped.
type TimeSeries struct {
	name     string
	capacity int

	mu     sync.RWMutex
	points []Point
}

// NewTimeSeries creates a series holding up to capacity points.
func NewTimeSeries(name string, capacity int) *TimeSeries {
	if capacity <= 0 {
		capacity = 1024
	}
	return &TimeSeries{
		name:     name,
		capacity: capacity,
		points:   make([]Point, 0, capacity),
	}
}

// Name returns the series identifier.
func (ts *TimeSeries) Name() string { return ts.name }

// Append records a value at a timestamp.
func (ts *TimeSeries) Append(value float64, at time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.points = append(ts.points, Point{Timestamp: at, Value: value})
	if len(ts.points) > ts.capacity {
		ts.points = ts.points[1:]
	}
}

// AppendNow records a value at the current time.
func (ts *TimeSeries) AppendNow(value float64) {
	ts.Append(value, time.Now())
}

// Len returns the number of stored points.
func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.points)
}

// Last returns the newest point.
func (ts *TimeSeries) Last() (Point, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if len(ts.points) == 0 {
		return Point{}, false
	}
	return ts.points[len(ts.points)-1], true
}

// Tail returns a copy of the newest n points, oldest first. n <= 0
// returns everything.
func (ts *TimeSeries) Tail(n int) []Point {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if n <= 0 || n > len(ts.points) {
		n = len(ts.points)
	}
	out := make([]Point, n)
	copy(out, ts.points[len(ts.points)-n:])
	return out
}

// Values returns a copy of the newest n values, oldest first.
func (ts *TimeSeries) Values(n int) []float64 {
	tail := ts.Tail(n)
	out := make([]float64, len(tail))
	for i, p := range tail {
		out[i] = p.Value
	}
	return out
}

// Summary holds rolling statistics over the newest part of a series.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Last  float64 `json:"last"`
}

// Summarize computes the rolling statistics over the newest n points.
func (ts *TimeSeries) Summarize(n int) Summary {
	values := ts.Values(n)
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
		Last:  values[len(values)-1],
	}
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))

	sumSquares := 0.0
	for _, v := range values {
		diff := v - s.Mean
		sumSquares += diff * diff
	}
	s.Std = math.Sqrt(sumSquares / float64(len(values)))
	return s
}

// Clear drops all points.
func (ts *TimeSeries) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.points = ts.points[:0]
}

// Tracker is a named collection of series.
type Tracker struct {
	mu     sync.RWMutex
	series map[string]*TimeSeries
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{series: make(map[string]*TimeSeries)}
}

// Series returns the named series, creating it with the capacity when
// absent.
func (t *Tracker) Series(name string, capacity int) *TimeSeries {
	t.mu.RLock()
	ts, ok := t.series[name]
	t.mu.RUnlock()
	if ok {
		return ts
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok = t.series[name]; ok {
		return ts
	}
	ts = NewTimeSeries(name, capacity)
	t.series[name] = ts
	return ts
}

// Names lists the tracked series.
func (t *Tracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.series))
	for name := range t.series {
		out = append(out, name)
	}
	return out
}

// Snapshot returns the newest n points of every series.
func (t *Tracker) Snapshot(n int) map[string][]Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]Point, len(t.series))
	for name, ts := range t.series {
		out[name] = ts.Tail(n)
	}
	return out
}
