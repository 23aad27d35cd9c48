package indicators

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// RSI is the Wilder relative strength index of bar closes.
type RSI struct {
	BaseIndicator
	period int

	lastPrice float64
	avgGain   float64
	avgLoss   float64
	count     int
}

// NewRSI creates an RSI over the given period.
func NewRSI(period, maxHistory int) *RSI {
	if period <= 0 {
		period = 14
	}
	return &RSI{
		BaseIndicator: newBaseIndicator("RSI", maxHistory),
		period:        period,
	}
}

// Update feeds one bar close.
func (r *RSI) Update(bar *entity.Bar) {
	r.UpdatePrice(bar.Close)
}

// UpdatePrice feeds one raw price.
func (r *RSI) UpdatePrice(price float64) {
	if r.count == 0 {
		r.lastPrice = price
		r.count = 1
		return
	}

	change := price - r.lastPrice
	r.lastPrice = price

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count <= r.period {
		// Simple average over the warm-up window.
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
	} else {
		// Wilder smoothing thereafter.
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}
	r.count++

	if r.count > r.period {
		if r.avgLoss == 0 {
			r.addValue(100)
			return
		}
		rs := r.avgGain / r.avgLoss
		r.addValue(100 - 100/(1+rs))
	}
}

// Period returns the configured period.
func (r *RSI) Period() int { return r.period }

// Reset restores the initial state.
func (r *RSI) Reset() {
	r.lastPrice = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.count = 0
	r.BaseIndicator.Reset()
}

// NewRSIFromConfig creates an RSI from loosely typed parameters.
func NewRSIFromConfig(params map[string]interface{}) (Indicator, error) {
	period := int(paramFloat(params, "period", 14))
	maxHistory := int(paramFloat(params, "max_history", 1000))
	return NewRSI(period, maxHistory), nil
}
