// Package data supplies market data to the rest of the system: historical
// bars from partitioned CSV files, reference data (calendar, universe,
// stock info) from a SQLite store, and live bars over NATS.
package data

import (
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Provider is the read surface for historical and reference data.
type Provider interface {
	// ReadBars returns the bars for a symbol in [start, end], ascending
	// by timestamp.
	ReadBars(symbol string, freq entity.Frequency, start, end time.Time) ([]*entity.Bar, error)

	// LatestBar returns the most recent bar at or before ts.
	LatestBar(symbol string, freq entity.Frequency, ts time.Time) (*entity.Bar, error)

	// IsTradingDay reports whether the market is open on the given date.
	IsTradingDay(date time.Time) (bool, error)

	// TradingCalendar returns the open trading days in [start, end].
	TradingCalendar(start, end time.Time) ([]time.Time, error)

	// Universe returns the tradable symbol list.
	Universe() ([]string, error)
}

// HistoricalProvider composes the CSV bar files with the SQLite
// reference store into one Provider.
type HistoricalProvider struct {
	bars *CSVBarSource
	ref  *SQLiteStore
}

// NewHistoricalProvider wires a bar source and a reference store.
func NewHistoricalProvider(bars *CSVBarSource, ref *SQLiteStore) *HistoricalProvider {
	return &HistoricalProvider{bars: bars, ref: ref}
}

func (p *HistoricalProvider) ReadBars(symbol string, freq entity.Frequency,
	start, end time.Time) ([]*entity.Bar, error) {
	return p.bars.ReadBars(symbol, freq, start, end)
}

func (p *HistoricalProvider) LatestBar(symbol string, freq entity.Frequency,
	ts time.Time) (*entity.Bar, error) {
	return p.bars.LatestBar(symbol, freq, ts)
}

func (p *HistoricalProvider) IsTradingDay(date time.Time) (bool, error) {
	return p.ref.IsTradingDay(date)
}

func (p *HistoricalProvider) TradingCalendar(start, end time.Time) ([]time.Time, error) {
	return p.ref.TradingCalendar(start, end)
}

func (p *HistoricalProvider) Universe() ([]string, error) {
	return p.ref.Universe()
}

// BarListener receives live bars from a feed.
type BarListener func(bar *entity.Bar)

// Feed is a push source of live bars.
type Feed interface {
	// Subscribe starts delivery for a symbol. Subscribing the same
	// symbol twice is a no-op.
	Subscribe(symbol string) error
	Start() error
	Stop() error
}
