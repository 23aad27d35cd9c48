package indicators

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// EMA is the exponential moving average of bar closes with
// alpha = 2/(period+1). The first value seeds the average.
type EMA struct {
	BaseIndicator
	period int
	alpha  float64

	ema    float64
	seeded bool
	count  int
}

// NewEMA creates an EMA over the given period.
func NewEMA(period, maxHistory int) *EMA {
	if period <= 0 {
		period = 12
	}
	return &EMA{
		BaseIndicator: newBaseIndicator("EMA", maxHistory),
		period:        period,
		alpha:         2.0 / (float64(period) + 1.0),
	}
}

// Update feeds one bar close.
func (e *EMA) Update(bar *entity.Bar) {
	e.UpdatePrice(bar.Close)
}

// UpdatePrice feeds one raw price.
func (e *EMA) UpdatePrice(price float64) {
	if !e.seeded {
		e.ema = price
		e.seeded = true
	} else {
		e.ema = e.alpha*price + (1-e.alpha)*e.ema
	}
	e.count++
	if e.count >= e.period {
		e.addValue(e.ema)
	}
}

// Current returns the running average even before the period elapses.
func (e *EMA) Current() float64 { return e.ema }

// Period returns the configured period.
func (e *EMA) Period() int { return e.period }

// Reset restores the initial state.
func (e *EMA) Reset() {
	e.ema = 0
	e.seeded = false
	e.count = 0
	e.BaseIndicator.Reset()
}

// NewEMAFromConfig creates an EMA from loosely typed parameters.
func NewEMAFromConfig(params map[string]interface{}) (Indicator, error) {
	period := int(paramFloat(params, "period", 12))
	maxHistory := int(paramFloat(params, "max_history", 1000))
	return NewEMA(period, maxHistory), nil
}
