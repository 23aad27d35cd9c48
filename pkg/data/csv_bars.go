package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// CSVBarSource reads bars from CSV files laid out as
//
//	<root>/kline/frequency=<freq>/year=<YYYY>/<symbol>.csv
//
// with columns: timestamp,open,high,low,close,volume,amount. Timestamps
// are "2006-01-02" for daily and coarser bars, "2006-01-02 15:04:05"
// otherwise.
type CSVBarSource struct {
	root string
}

// NewCSVBarSource creates a source rooted at the data directory.
func NewCSVBarSource(root string) *CSVBarSource {
	return &CSVBarSource{root: root}
}

// ReadBars loads the bars for a symbol in [start, end], ascending.
// Missing year files are skipped; a symbol with no files at all is an
// error.
func (s *CSVBarSource) ReadBars(symbol string, freq entity.Frequency,
	start, end time.Time) ([]*entity.Bar, error) {

	if end.Before(start) {
		return nil, fmt.Errorf("bar range inverted: %s after %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var bars []*entity.Bar
	found := false
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barFile(symbol, freq, year)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		found = true

		yearBars, err := s.loadFile(path, symbol, freq)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		for _, bar := range yearBars {
			if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
				continue
			}
			bars = append(bars, bar)
		}
	}
	if !found {
		return nil, fmt.Errorf("no bar files for %s at %s", symbol, freq)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// LatestBar returns the most recent bar at or before ts, searching back
// up to one year.
func (s *CSVBarSource) LatestBar(symbol string, freq entity.Frequency,
	ts time.Time) (*entity.Bar, error) {

	bars, err := s.ReadBars(symbol, freq, ts.AddDate(-1, 0, 0), ts)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bar for %s at or before %s",
			symbol, ts.Format("2006-01-02"))
	}
	return bars[len(bars)-1], nil
}

func (s *CSVBarSource) barFile(symbol string, freq entity.Frequency, year int) string {
	return filepath.Join(s.root, "kline",
		fmt.Sprintf("frequency=%s", freq),
		fmt.Sprintf("year=%d", year),
		symbol+".csv")
}

func (s *CSVBarSource) loadFile(path, symbol string, freq entity.Frequency) ([]*entity.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 7 {
		return nil, fmt.Errorf("expected at least 7 columns, got %d", len(header))
	}

	var bars []*entity.Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		bar, err := parseBarRecord(record, symbol, freq)
		if err != nil {
			log.Printf("[CSVBars] %s:%d skipped: %v", path, line, err)
			continue
		}
		if err := bar.Validate(); err != nil {
			log.Printf("[CSVBars] %s:%d skipped: %v", path, line, err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBarRecord(record []string, symbol string, freq entity.Frequency) (*entity.Bar, error) {
	if len(record) < 7 {
		return nil, fmt.Errorf("expected at least 7 fields, got %d", len(record))
	}

	ts, err := parseBarTime(record[0])
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}

	fields := make([]float64, 4)
	names := []string{"open", "high", "low", "close"}
	for i := range fields {
		fields[i], err = strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", names[i], err)
		}
	}

	volume, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid volume: %w", err)
	}
	amount, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	return &entity.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Frequency: freq,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    volume,
		Amount:    amount,
	}, nil
}

func parseBarTime(s string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}
