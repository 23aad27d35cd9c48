// Package backtest replays historical bars through the full event
// pipeline and measures the outcome.
package backtest

import (
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// EquityPoint is one day on the equity curve.
type EquityPoint struct {
	Date     time.Time `json:"date"`
	Equity   float64   `json:"equity"`
	DailyPnL float64   `json:"daily_pnl"`
	Return   float64   `json:"return"`
}

// Result is the outcome of one backtest run.
type Result struct {
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Duration  time.Duration `json:"duration"`

	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalReturn    float64 `json:"total_return"`

	AnnualizedReturn float64 `json:"annualized_return"`
	DailyVolatility  float64 `json:"daily_volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`

	MaxDrawdown         float64       `json:"max_drawdown"`
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`

	TotalTrades  int     `json:"total_trades"`
	WinTrades    int     `json:"win_trades"`
	LossTrades   int     `json:"loss_trades"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalFees    float64 `json:"total_fees"`

	BarsReplayed int `json:"bars_replayed"`

	EquityCurve []EquityPoint   `json:"equity_curve"`
	Trades      []*entity.Trade `json:"trades,omitempty"`
}
