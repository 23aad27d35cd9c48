package indicators

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// MACD is the moving average convergence divergence of bar closes:
// DIF = EMA(fast) - EMA(slow), DEA = EMA(DIF, signal), histogram =
// DIF - DEA.
type MACD struct {
	BaseIndicator
	fast   *EMA
	slow   *EMA
	signal *EMA

	slowPeriod int
	count      int

	dif       float64
	dea       float64
	histogram float64
}

// NewMACD creates a MACD with the given periods; (12, 26, 9) are the
// conventional defaults.
func NewMACD(fastPeriod, slowPeriod, signalPeriod, maxHistory int) *MACD {
	if fastPeriod <= 0 {
		fastPeriod = 12
	}
	if slowPeriod <= 0 {
		slowPeriod = 26
	}
	if signalPeriod <= 0 {
		signalPeriod = 9
	}
	return &MACD{
		BaseIndicator: newBaseIndicator("MACD", maxHistory),
		fast:          NewEMA(fastPeriod, maxHistory),
		slow:          NewEMA(slowPeriod, maxHistory),
		signal:        NewEMA(signalPeriod, maxHistory),
		slowPeriod:    slowPeriod,
	}
}

// Update feeds one bar close.
func (m *MACD) Update(bar *entity.Bar) {
	m.UpdatePrice(bar.Close)
}

// UpdatePrice feeds one raw price.
func (m *MACD) UpdatePrice(price float64) {
	m.fast.UpdatePrice(price)
	m.slow.UpdatePrice(price)
	m.count++

	m.dif = m.fast.Current() - m.slow.Current()
	m.signal.UpdatePrice(m.dif)
	m.dea = m.signal.Current()
	m.histogram = m.dif - m.dea

	if m.count >= m.slowPeriod {
		m.addValue(m.histogram)
	}
}

// DIF returns the fast/slow EMA difference.
func (m *MACD) DIF() float64 { return m.dif }

// DEA returns the signal line.
func (m *MACD) DEA() float64 { return m.dea }

// Histogram returns DIF minus DEA.
func (m *MACD) Histogram() float64 { return m.histogram }

// Reset restores the initial state.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.count = 0
	m.dif, m.dea, m.histogram = 0, 0, 0
	m.BaseIndicator.Reset()
}

// NewMACDFromConfig creates a MACD from loosely typed parameters.
func NewMACDFromConfig(params map[string]interface{}) (Indicator, error) {
	fast := int(paramFloat(params, "fast_period", 12))
	slow := int(paramFloat(params, "slow_period", 26))
	signal := int(paramFloat(params, "signal_period", 9))
	maxHistory := int(paramFloat(params, "max_history", 1000))
	return NewMACD(fast, slow, signal, maxHistory), nil
}
