package backtest

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/data"
	"github.com/yourusername/quantcapital-engine/pkg/engine"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
	"github.com/yourusername/quantcapital-engine/pkg/execution"
	"github.com/yourusername/quantcapital-engine/pkg/portfolio"
	"github.com/yourusername/quantcapital-engine/pkg/strategy"
)

const (
	settleTimeout = 5 * time.Second
	settlePoll    = 2 * time.Millisecond
	// settleStable is how many consecutive unchanged snapshots count as
	// a drained pipeline.
	settleStable = 3
)

// Runner wires the full pipeline against a simulated execution handler
// and replays historical bars through it day by day.
type Runner struct {
	cfg      *config.Config
	provider data.Provider
	seed     int64

	eng        *engine.Engine
	account    *entity.Account
	portfolio  *portfolio.Manager
	strategies *strategy.Manager
	exec       *execution.SimulatedHandler
}

// NewRunner creates a runner for a validated configuration. The seed
// fixes the simulated execution randomness; zero picks one from the
// clock.
func NewRunner(cfg *config.Config, provider data.Provider, seed int64) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("data provider cannot be nil")
	}
	if len(cfg.Backtest.Universe) == 0 {
		return nil, fmt.Errorf("backtest universe is empty")
	}
	return &Runner{cfg: cfg, provider: provider, seed: seed}, nil
}

// Account exposes the backtest account, mainly for inspection in tests.
func (r *Runner) Account() *entity.Account { return r.account }

// Run executes the whole backtest and returns its result.
func (r *Runner) Run() (*Result, error) {
	start, end, err := r.cfg.BacktestRange()
	if err != nil {
		return nil, err
	}
	freq := entity.Frequency(r.cfg.Backtest.Frequency)

	if err := r.build(); err != nil {
		return nil, err
	}

	barsByDay, days, err := r.loadBars(freq, start, end)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no bars between %s and %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	if err := r.eng.Start(); err != nil {
		return nil, err
	}
	r.strategies.StartAll()

	began := time.Now()
	result := &Result{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: r.cfg.Account.InitialCapital,
	}

	prevEquity := r.cfg.Account.InitialCapital
	for _, day := range days {
		r.portfolio.ResetDailyRisk()

		for _, bar := range barsByDay[day] {
			if !r.eng.Publish(entity.NewMarketEvent(bar)) {
				log.Printf("[Backtest] Bar rejected by engine: %s", bar)
				continue
			}
			result.BarsReplayed++
		}
		r.settle()

		// The daily risk sweep runs on a timer in live mode; replay it
		// explicitly at each day close.
		r.eng.Publish(entity.NewTimerEvent(entity.TimerRiskCheck, 0, nil))
		r.settle()

		equity := r.account.TotalEquity()
		point := EquityPoint{
			Date:     mustParseDay(day),
			Equity:   equity,
			DailyPnL: equity - prevEquity,
		}
		if prevEquity > 0 {
			point.Return = point.DailyPnL / prevEquity
		}
		result.EquityCurve = append(result.EquityCurve, point)
		prevEquity = equity
	}

	r.strategies.StopAll()
	r.eng.Stop()

	result.Duration = time.Since(began)
	result.FinalEquity = r.account.TotalEquity()
	result.Trades = r.account.Trades()
	computeStatistics(result, result.Trades)

	log.Printf("[Backtest] Done: %d bars over %d days, pnl=%.2f (%.2f%%)",
		result.BarsReplayed, len(days), result.TotalPnL, result.TotalReturn*100)
	return result, nil
}

// build assembles the engine, account, portfolio, strategies and the
// simulated execution handler.
func (r *Runner) build() error {
	cfg := r.cfg
	r.eng = engine.NewEngine(&engine.Config{
		MaxQueueSize: cfg.Engine.QueueCapacity,
		InboxSize:    cfg.Engine.InboxSize,
	})
	r.account = entity.NewAccount(cfg.Account.AccountID, cfg.Account.InitialCapital)
	r.portfolio = portfolio.NewManager(r.eng, r.account, cfg.Portfolio, cfg.Risk)
	r.exec = execution.NewSimulatedHandler(r.eng, cfg.Execution.Simulation,
		cfg.Execution.Fees, r.seed)
	r.strategies = strategy.NewManager(r.eng, cfg.Strategy.MaxStrategies)

	for _, item := range cfg.Strategy.Items {
		if !item.Enabled {
			continue
		}
		s, err := strategy.New(item.ID, item.Type)
		if err != nil {
			return err
		}
		if hp, ok := s.(interface {
			SetHoldingsProvider(strategy.HoldingsProvider)
		}); ok {
			hp.SetHoldingsProvider(r.portfolio)
		}

		universe := item.Universe
		if len(universe) == 0 {
			universe = cfg.Backtest.Universe
		}
		err = r.strategies.Register(s, &strategy.Config{
			ID:         item.ID,
			Type:       s.StrategyType(),
			Universe:   universe,
			Parameters: item.Parameters,
			Enabled:    true,
		})
		if err != nil {
			return err
		}
	}

	if err := r.eng.Register(r.strategies,
		entity.EventMarket, entity.EventFill, entity.EventTimer); err != nil {
		return err
	}
	if err := r.eng.Register(r.portfolio,
		entity.EventSignal, entity.EventFill, entity.EventMarket, entity.EventTimer); err != nil {
		return err
	}
	if err := r.eng.Register(r.exec,
		entity.EventOrder, entity.EventMarket); err != nil {
		return err
	}
	return nil
}

// loadBars reads the whole range per symbol, groups by calendar day and
// sorts within each day by timestamp then symbol. Symbols without data
// are skipped with a warning so one delisted name does not kill a run.
func (r *Runner) loadBars(freq entity.Frequency, start, end time.Time) (
	map[string][]*entity.Bar, []string, error) {

	tradingDays := make(map[string]bool)
	if days, err := r.provider.TradingCalendar(start, end); err == nil {
		for _, d := range days {
			tradingDays[d.Format("2006-01-02")] = true
		}
	}

	barsByDay := make(map[string][]*entity.Bar)
	loaded := 0
	for _, symbol := range r.cfg.Backtest.Universe {
		bars, err := r.provider.ReadBars(symbol, freq, start, end)
		if err != nil {
			log.Printf("[Backtest] Skipping %s: %v", symbol, err)
			continue
		}
		loaded++
		for _, bar := range bars {
			day := bar.Timestamp.Format("2006-01-02")
			if len(tradingDays) > 0 && !tradingDays[day] {
				continue
			}
			barsByDay[day] = append(barsByDay[day], bar)
		}
	}
	if loaded == 0 {
		return nil, nil, fmt.Errorf("no universe symbol has bar data")
	}

	days := make([]string, 0, len(barsByDay))
	for day := range barsByDay {
		days = append(days, day)
		sort.Slice(barsByDay[day], func(i, j int) bool {
			a, b := barsByDay[day][i], barsByDay[day][j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Symbol < b.Symbol
		})
	}
	sort.Strings(days)
	return barsByDay, days, nil
}

// settle blocks until the pipeline has gone quiet: empty queue and the
// subscriber counters unchanged across consecutive snapshots.
func (r *Runner) settle() {
	deadline := time.Now().Add(settleTimeout)
	stable := 0
	prev := r.eng.Statistics()
	for time.Now().Before(deadline) {
		time.Sleep(settlePoll)
		cur := r.eng.Statistics()
		if cur.QueueDepth == 0 && cur.Published == prev.Published &&
			processedTotal(cur) == processedTotal(prev) {
			stable++
			if stable >= settleStable {
				return
			}
		} else {
			stable = 0
		}
		prev = cur
	}
	log.Printf("[Backtest] Settle timed out with queue depth %d", r.eng.QueueDepth())
}

func processedTotal(stats engine.Statistics) uint64 {
	var total uint64
	for _, sub := range stats.Subscribers {
		total += sub.Processed
	}
	return total
}

func mustParseDay(day string) time.Time {
	ts, _ := time.Parse("2006-01-02", day)
	return ts
}
