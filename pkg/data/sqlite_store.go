package data

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// StockInfo is one row of instrument reference data.
type StockInfo struct {
	Symbol   string
	Name     string
	Exchange string
	ListDate time.Time
}

// SQLiteStore holds reference data: stock info, the trading calendar and
// the tradable universe.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and migrates) the reference store at path.
// ":memory:" gives a transient store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The sqlite driver does not support concurrent writers on one
	// connection pool.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_info (
			symbol    TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			exchange  TEXT NOT NULL,
			list_date TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trading_calendar (
			date    TEXT PRIMARY KEY,
			is_open INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS universe (
			symbol TEXT PRIMARY KEY
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertStockInfo inserts or replaces one instrument row.
func (s *SQLiteStore) UpsertStockInfo(info StockInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO stock_info (symbol, name, exchange, list_date)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
		   name = excluded.name, exchange = excluded.exchange,
		   list_date = excluded.list_date`,
		info.Symbol, info.Name, info.Exchange, info.ListDate.Format("2006-01-02"))
	return err
}

// GetStockInfo looks up one instrument by symbol.
func (s *SQLiteStore) GetStockInfo(symbol string) (*StockInfo, error) {
	row := s.db.QueryRow(
		`SELECT symbol, name, exchange, list_date FROM stock_info WHERE symbol = ?`,
		symbol)

	var info StockInfo
	var listDate string
	if err := row.Scan(&info.Symbol, &info.Name, &info.Exchange, &listDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("unknown symbol %s", symbol)
		}
		return nil, err
	}
	info.ListDate, _ = time.Parse("2006-01-02", listDate)
	return &info, nil
}

// SetTradingDay records whether the market is open on a date.
func (s *SQLiteStore) SetTradingDay(date time.Time, open bool) error {
	openInt := 0
	if open {
		openInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO trading_calendar (date, is_open) VALUES (?, ?)
		 ON CONFLICT(date) DO UPDATE SET is_open = excluded.is_open`,
		date.Format("2006-01-02"), openInt)
	return err
}

// IsTradingDay reports whether the market is open on a date. Dates not
// in the calendar default to weekday semantics.
func (s *SQLiteStore) IsTradingDay(date time.Time) (bool, error) {
	row := s.db.QueryRow(
		`SELECT is_open FROM trading_calendar WHERE date = ?`,
		date.Format("2006-01-02"))

	var open int
	err := row.Scan(&open)
	if err == sql.ErrNoRows {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday, nil
	}
	if err != nil {
		return false, err
	}
	return open == 1, nil
}

// TradingCalendar returns the open trading days in [start, end],
// ascending. Only explicitly recorded days are returned.
func (s *SQLiteStore) TradingCalendar(start, end time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(
		`SELECT date FROM trading_calendar
		 WHERE is_open = 1 AND date >= ? AND date <= ?
		 ORDER BY date`,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, err
		}
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad calendar date %q: %w", dateStr, err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// AddToUniverse marks a symbol tradable.
func (s *SQLiteStore) AddToUniverse(symbol string) error {
	_, err := s.db.Exec(
		`INSERT INTO universe (symbol) VALUES (?) ON CONFLICT(symbol) DO NOTHING`,
		symbol)
	return err
}

// RemoveFromUniverse drops a symbol from the tradable set.
func (s *SQLiteStore) RemoveFromUniverse(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM universe WHERE symbol = ?`, symbol)
	return err
}

// Universe returns the tradable symbols, ascending.
func (s *SQLiteStore) Universe() ([]string, error) {
	rows, err := s.db.Query(`SELECT symbol FROM universe ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}
