// Command backtest replays historical bars through the trading pipeline
// and prints a performance report.
package main

import (
	"flag"
	"log"

	"github.com/yourusername/quantcapital-engine/pkg/backtest"
	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/data"
)

var (
	configFile = flag.String("config", "./config/backtest.yaml", "Configuration file path")
	reportFile = flag.String("report", "", "Optional JSON report output path")
	seed       = flag.Int64("seed", 0, "Execution randomness seed (0 = from clock)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	cfg.Mode = config.ModeBacktest

	store, err := data.OpenSQLiteStore(cfg.Data.SQLitePath)
	if err != nil {
		log.Fatalf("Open reference store: %v", err)
	}
	defer store.Close()

	provider := data.NewHistoricalProvider(data.NewCSVBarSource(cfg.Data.RootPath), store)

	runner, err := backtest.NewRunner(cfg, provider, *seed)
	if err != nil {
		log.Fatalf("Create runner: %v", err)
	}
	result, err := runner.Run()
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	report := backtest.NewReport(result)
	report.PrintSummary()
	if *reportFile != "" {
		if err := report.SaveJSON(*reportFile); err != nil {
			log.Fatalf("Save report: %v", err)
		}
		log.Printf("Report written to %s", *reportFile)
	}
}
