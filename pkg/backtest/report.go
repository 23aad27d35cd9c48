package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Report renders a backtest result for the operator.
type Report struct {
	result *Result
}

// NewReport wraps a finished result.
func NewReport(result *Result) *Report {
	return &Report{result: result}
}

// Print writes the summary tables to w.
func (r *Report) Print(w io.Writer) {
	res := r.result

	fmt.Fprintf(w, "\nBacktest %s to %s (%d bars, wall time %s)\n",
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"),
		res.BarsReplayed, res.Duration.Round(time.Millisecond))

	perf := tablewriter.NewWriter(w)
	perf.Header("Metric", "Value")
	perf.Append("Initial capital", fmt.Sprintf("%.2f", res.InitialCapital))
	perf.Append("Final equity", fmt.Sprintf("%.2f", res.FinalEquity))
	perf.Append("Total return", fmt.Sprintf("%.2f%%", res.TotalReturn*100))
	perf.Append("Annualized return", fmt.Sprintf("%.2f%%", res.AnnualizedReturn*100))
	perf.Append("Sharpe ratio", fmt.Sprintf("%.2f", res.SharpeRatio))
	perf.Append("Sortino ratio", fmt.Sprintf("%.2f", res.SortinoRatio))
	perf.Append("Calmar ratio", fmt.Sprintf("%.2f", res.CalmarRatio))
	perf.Append("Max drawdown", fmt.Sprintf("%.2f%%", res.MaxDrawdown*100))
	perf.Append("Drawdown duration", res.MaxDrawdownDuration.String())
	perf.Render()

	trades := tablewriter.NewWriter(w)
	trades.Header("Trades", "Wins", "Losses", "Win rate", "Avg win", "Avg loss", "PF", "Fees")
	trades.Append(
		fmt.Sprintf("%d", res.TotalTrades),
		fmt.Sprintf("%d", res.WinTrades),
		fmt.Sprintf("%d", res.LossTrades),
		fmt.Sprintf("%.1f%%", res.WinRate*100),
		fmt.Sprintf("%.2f", res.AvgWin),
		fmt.Sprintf("%.2f", res.AvgLoss),
		fmt.Sprintf("%.2f", res.ProfitFactor),
		fmt.Sprintf("%.2f", res.TotalFees),
	)
	trades.Render()
}

// PrintSummary writes the report to stdout.
func (r *Report) PrintSummary() {
	r.Print(os.Stdout)
}

// SaveJSON writes the full result, equity curve included, to path.
func (r *Report) SaveJSON(path string) error {
	payload, err := json.MarshalIndent(r.result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
