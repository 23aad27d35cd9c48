package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

func writeBarFile(t *testing.T, root, symbol string, freq entity.Frequency,
	year int, rows string) {
	t.Helper()
	dir := filepath.Join(root, "kline", "frequency="+string(freq),
		fmt.Sprintf("year=%d", year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "timestamp,open,high,low,close,volume,amount\n" + rows
	if err := os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCSVReadBarsAcrossYears(t *testing.T) {
	root := t.TempDir()
	writeBarFile(t, root, "000001.SZ", entity.FreqDaily, 2023,
		"2023-12-28,10,11,9.5,10.5,1000,10500\n"+
			"2023-12-29,10.5,11.5,10,11,1200,13200\n")
	writeBarFile(t, root, "000001.SZ", entity.FreqDaily, 2024,
		"2024-01-02,11,12,10.5,11.5,1500,17250\n")

	src := NewCSVBarSource(root)
	start := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	bars, err := src.ReadBars("000001.SZ", entity.FreqDaily, start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 (range filtered)", len(bars))
	}
	if !bars[0].Timestamp.Before(bars[1].Timestamp) {
		t.Error("bars not ascending")
	}
	if bars[0].Close != 11 || bars[1].Close != 11.5 {
		t.Errorf("closes = %f/%f", bars[0].Close, bars[1].Close)
	}
	if bars[0].Symbol != "000001.SZ" || bars[0].Frequency != entity.FreqDaily {
		t.Errorf("bar identity = %s/%s", bars[0].Symbol, bars[0].Frequency)
	}
}

func TestCSVSkipsMalformedRows(t *testing.T) {
	root := t.TempDir()
	writeBarFile(t, root, "000001.SZ", entity.FreqDaily, 2024,
		"2024-01-02,11,12,10.5,11.5,1500,17250\n"+
			"2024-01-03,not-a-number,12,10.5,11.5,1500,17250\n"+
			"2024-01-04,11,10,10.5,11.5,1500,17250\n") // high below open

	src := NewCSVBarSource(root)
	bars, err := src.ReadBars("000001.SZ", entity.FreqDaily,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("bars = %d, want 1 good row", len(bars))
	}
}

func TestCSVMissingSymbolIsError(t *testing.T) {
	src := NewCSVBarSource(t.TempDir())
	_, err := src.ReadBars("600000.SH", entity.FreqDaily,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Error("missing symbol returned no error")
	}
}

func TestCSVLatestBar(t *testing.T) {
	root := t.TempDir()
	writeBarFile(t, root, "000001.SZ", entity.FreqDaily, 2024,
		"2024-01-02,11,12,10.5,11.5,1500,17250\n"+
			"2024-01-03,11.5,12.5,11,12,1600,19200\n")

	src := NewCSVBarSource(root)
	bar, err := src.LatestBar("000001.SZ", entity.FreqDaily,
		time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LatestBar: %v", err)
	}
	if !bar.Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("latest bar = %s, want 2024-01-02", bar.Timestamp)
	}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "ref.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStockInfoRoundTrip(t *testing.T) {
	store := openTestStore(t)

	info := StockInfo{
		Symbol: "000001.SZ", Name: "PAB", Exchange: "SZSE",
		ListDate: time.Date(1991, 4, 3, 0, 0, 0, 0, time.UTC),
	}
	if err := store.UpsertStockInfo(info); err != nil {
		t.Fatalf("UpsertStockInfo: %v", err)
	}
	// Upsert again with a new name.
	info.Name = "Ping An Bank"
	if err := store.UpsertStockInfo(info); err != nil {
		t.Fatalf("UpsertStockInfo update: %v", err)
	}

	got, err := store.GetStockInfo("000001.SZ")
	if err != nil {
		t.Fatalf("GetStockInfo: %v", err)
	}
	if got.Name != "Ping An Bank" || got.Exchange != "SZSE" {
		t.Errorf("info = %+v", got)
	}
	if !got.ListDate.Equal(info.ListDate) {
		t.Errorf("list date = %s", got.ListDate)
	}

	if _, err := store.GetStockInfo("no-such"); err == nil {
		t.Error("unknown symbol returned no error")
	}
}

func TestSQLiteTradingCalendar(t *testing.T) {
	store := openTestStore(t)

	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)

	// Unrecorded dates fall back to weekday semantics.
	if open, _ := store.IsTradingDay(monday); !open {
		t.Error("unrecorded Monday closed")
	}
	if open, _ := store.IsTradingDay(saturday); open {
		t.Error("unrecorded Saturday open")
	}

	// A recorded holiday overrides the weekday default.
	if err := store.SetTradingDay(monday, false); err != nil {
		t.Fatal(err)
	}
	if open, _ := store.IsTradingDay(monday); open {
		t.Error("recorded holiday open")
	}

	store.SetTradingDay(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true)
	store.SetTradingDay(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), true)
	store.SetTradingDay(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), true)

	days, err := store.TradingCalendar(monday, saturday)
	if err != nil {
		t.Fatalf("TradingCalendar: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %v, want the two recorded open days in range", days)
	}
	if !days[0].Before(days[1]) {
		t.Error("calendar not ascending")
	}
}

func TestSQLiteUniverse(t *testing.T) {
	store := openTestStore(t)

	for _, s := range []string{"600000.SH", "000001.SZ", "000001.SZ"} {
		if err := store.AddToUniverse(s); err != nil {
			t.Fatal(err)
		}
	}

	symbols, err := store.Universe()
	if err != nil {
		t.Fatalf("Universe: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "000001.SZ" {
		t.Errorf("universe = %v, want two sorted symbols", symbols)
	}

	store.RemoveFromUniverse("000001.SZ")
	symbols, _ = store.Universe()
	if len(symbols) != 1 || symbols[0] != "600000.SH" {
		t.Errorf("universe after remove = %v", symbols)
	}
}

func TestNATSFeedDecodesAndValidatesBars(t *testing.T) {
	var got []*entity.Bar
	feed := NewNATSFeed(nil, func(bar *entity.Bar) { got = append(got, bar) })

	good := &entity.Bar{
		Symbol: "000001.SZ", Timestamp: time.Now(), Frequency: entity.FreqDaily,
		Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000,
	}
	payload, _ := json.Marshal(good)
	feed.onBarMessage(&nats.Msg{Subject: "md.bar.000001.SZ", Data: payload})

	feed.onBarMessage(&nats.Msg{Subject: "md.bar.000001.SZ", Data: []byte("not json")})

	bad := *good
	bad.Low = 20 // above open
	payload, _ = json.Marshal(&bad)
	feed.onBarMessage(&nats.Msg{Subject: "md.bar.000001.SZ", Data: payload})

	if len(got) != 1 || got[0].Close != 10.5 {
		t.Fatalf("delivered bars = %v, want only the valid one", got)
	}
	received, dropped := feed.Counts()
	if received != 3 || dropped != 2 {
		t.Errorf("counts = %d/%d, want 3 received 2 dropped", received, dropped)
	}
}
