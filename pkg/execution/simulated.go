package execution

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// SimulatedHandler executes orders against the latest bar per symbol.
// Pricing is conservative: market buys pay the bar high, market sells
// receive the bar low; limit orders fill at the better of their limit
// and the bar extreme.
type SimulatedHandler struct {
	*baseHandler
	cfg config.SimulationConfig

	rngMu sync.Mutex
	rng   *rand.Rand

	marketMu sync.RWMutex
	market   map[string]*entity.Bar

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewSimulatedHandler creates a simulated execution handler. A zero
// seed derives one from the clock.
func NewSimulatedHandler(publisher Publisher, cfg config.SimulationConfig,
	fees entity.FeeSchedule, seed int64) *SimulatedHandler {

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h := &SimulatedHandler{
		baseHandler: newBaseHandler("SimulatedExecution", publisher, fees),
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(seed)),
		market:      make(map[string]*entity.Bar),
		stopChan:    make(chan struct{}),
	}
	h.exec = h
	return h
}

// Initialize implements the engine handler contract.
func (h *SimulatedHandler) Initialize() error {
	log.Printf("[SimulatedExecution] Initialized (slippage=%v, partial=%v, delay=%v, reject=%.2f)",
		h.cfg.EnableSlippage, h.cfg.EnablePartialFill, h.cfg.EnableDelayedExecution,
		h.cfg.RejectionProbability)
	return nil
}

// Destroy cancels the active orders and waits for delayed executions.
func (h *SimulatedHandler) Destroy() error {
	close(h.stopChan)
	h.CancelAll()
	h.wg.Wait()
	return nil
}

// HandleEvent consumes order events via the base and market events to
// keep the current-market map fresh. A new bar also retries the
// partially filled orders on that symbol.
func (h *SimulatedHandler) HandleEvent(event entity.Event) error {
	if ev, ok := event.(*entity.MarketEvent); ok {
		if ev.Bar != nil {
			h.UpdateMarketData(ev.Bar)
		}
		return nil
	}
	return h.baseHandler.HandleEvent(event)
}

// UpdateMarketData records the latest bar for a symbol and retries any
// order still working on it.
func (h *SimulatedHandler) UpdateMarketData(bar *entity.Bar) {
	h.marketMu.Lock()
	h.market[bar.Symbol] = bar
	h.marketMu.Unlock()

	for _, order := range h.activeForSymbol(bar.Symbol) {
		if order.RemainingQuantity <= 0 || order.IsFinished() {
			continue
		}
		if err := h.tryExecute(order); err != nil {
			// A limit away from this bar's range stays working; it is
			// not a terminal rejection once already submitted.
			log.Printf("[SimulatedExecution] Order %s still working: %v", order.OrderID, err)
		}
	}
}

// LatestBar returns the current bar for a symbol.
func (h *SimulatedHandler) LatestBar(symbol string) (*entity.Bar, bool) {
	h.marketMu.RLock()
	defer h.marketMu.RUnlock()
	bar, ok := h.market[symbol]
	return bar, ok
}

// executeOrder implements the executor contract for fresh orders.
func (h *SimulatedHandler) executeOrder(order *entity.Order) error {
	h.marketMu.RLock()
	_, ok := h.market[order.Symbol]
	h.marketMu.RUnlock()
	if !ok {
		return fmt.Errorf("missing market data for %s", order.Symbol)
	}

	if p := h.cfg.RejectionProbability; p > 0 && h.random() < p {
		return fmt.Errorf("simulated market rejection")
	}

	if h.cfg.EnableDelayedExecution {
		delay := h.executionDelay()
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			select {
			case <-h.stopChan:
				return
			case <-time.After(delay):
			}
			if err := h.tryExecute(order); err != nil {
				h.rejectOrder(order, err.Error())
			}
		}()
		return nil
	}

	return h.tryExecute(order)
}

// cancelOrder implements the executor contract; simulated cancels
// always succeed.
func (h *SimulatedHandler) cancelOrder(order *entity.Order) bool { return true }

// tryExecute prices and fills one attempt against the latest bar.
func (h *SimulatedHandler) tryExecute(order *entity.Order) error {
	h.marketMu.RLock()
	bar := h.market[order.Symbol]
	h.marketMu.RUnlock()
	if bar == nil {
		return fmt.Errorf("missing market data for %s", order.Symbol)
	}
	if order.IsFinished() {
		return nil
	}

	price, err := h.executionPrice(order, bar)
	if err != nil {
		return err
	}
	price = h.applySlippage(order, bar, price)

	quantity := h.fillQuantity(order.RemainingQuantity)
	h.processFill(order, quantity, price, true, "")
	return nil
}

// executionPrice derives the raw execution price from the bar.
func (h *SimulatedHandler) executionPrice(order *entity.Order, bar *entity.Bar) (float64, error) {
	switch order.Type {
	case entity.OrderMarket:
		if order.Side == entity.SideBuy {
			return bar.High, nil
		}
		return bar.Low, nil
	case entity.OrderLimit:
		if order.Side == entity.SideBuy {
			if order.Price < bar.Low {
				return 0, fmt.Errorf("limit below market")
			}
			return math.Min(order.Price, bar.High), nil
		}
		if order.Price > bar.High {
			return 0, fmt.Errorf("limit above market")
		}
		return math.Max(order.Price, bar.Low), nil
	default:
		return 0, fmt.Errorf("order type %s not supported in simulation", order.Type)
	}
}

// applySlippage adjusts the price against the order's side.
func (h *SimulatedHandler) applySlippage(order *entity.Order, bar *entity.Bar, price float64) float64 {
	if !h.cfg.EnableSlippage {
		return price
	}

	impact := 0.0
	if bar.Volume > 0 {
		impact = float64(order.Quantity) / float64(bar.Volume) * 0.001
	}
	noise := h.normal() * 0.5 * h.cfg.BaseSlippage

	slip := h.cfg.BaseSlippage + impact + noise
	if slip < 0 {
		slip = 0
	}
	if slip > h.cfg.MaxSlippage {
		slip = h.cfg.MaxSlippage
	}

	if order.Side == entity.SideBuy {
		price *= 1 + slip
	} else {
		price *= 1 - slip
	}
	if price < 0.01 {
		price = 0.01
	}
	return price
}

// fillQuantity picks the executed quantity for this attempt.
func (h *SimulatedHandler) fillQuantity(remaining int64) int64 {
	if !h.cfg.EnablePartialFill || h.random() >= h.cfg.PartialFillProbability {
		return remaining
	}
	ratio := h.cfg.MinPartialFillRatio + h.random()*(1-h.cfg.MinPartialFillRatio)
	qty := int64(math.Floor(float64(remaining) * ratio))
	if qty < 1 {
		qty = 1
	}
	if qty > remaining {
		qty = remaining
	}
	return qty
}

func (h *SimulatedHandler) executionDelay() time.Duration {
	min := h.cfg.MinExecutionDelayMs
	max := h.cfg.MaxExecutionDelayMs
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	ms := min + int(h.random()*float64(max-min))
	return time.Duration(ms) * time.Millisecond
}

func (h *SimulatedHandler) random() float64 {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return h.rng.Float64()
}

func (h *SimulatedHandler) normal() float64 {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return h.rng.NormFloat64()
}
