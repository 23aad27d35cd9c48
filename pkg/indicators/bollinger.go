package indicators

import (
	"math"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// Bollinger computes Bollinger bands: an SMA middle band with upper and
// lower bands k standard deviations away.
type Bollinger struct {
	BaseIndicator
	period int
	k      float64
	window []float64

	upper  float64
	middle float64
	lower  float64
}

// NewBollinger creates Bollinger bands; (20, 2) are the conventional
// defaults.
func NewBollinger(period int, k float64, maxHistory int) *Bollinger {
	if period <= 0 {
		period = 20
	}
	if k <= 0 {
		k = 2
	}
	return &Bollinger{
		BaseIndicator: newBaseIndicator("BOLL", maxHistory),
		period:        period,
		k:             k,
		window:        make([]float64, 0, period),
	}
}

// Update feeds one bar close.
func (b *Bollinger) Update(bar *entity.Bar) {
	b.UpdatePrice(bar.Close)
}

// UpdatePrice feeds one raw price.
func (b *Bollinger) UpdatePrice(price float64) {
	b.window = append(b.window, price)
	if len(b.window) > b.period {
		b.window = b.window[1:]
	}
	if len(b.window) < b.period {
		return
	}

	sum := 0.0
	for _, p := range b.window {
		sum += p
	}
	mean := sum / float64(b.period)

	variance := 0.0
	for _, p := range b.window {
		d := p - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(b.period))

	b.middle = mean
	b.upper = mean + b.k*std
	b.lower = mean - b.k*std
	b.addValue(mean)
}

// Upper returns the upper band.
func (b *Bollinger) Upper() float64 { return b.upper }

// Middle returns the middle band.
func (b *Bollinger) Middle() float64 { return b.middle }

// Lower returns the lower band.
func (b *Bollinger) Lower() float64 { return b.lower }

// Reset restores the initial state.
func (b *Bollinger) Reset() {
	b.window = b.window[:0]
	b.upper, b.middle, b.lower = 0, 0, 0
	b.BaseIndicator.Reset()
}

// NewBollingerFromConfig creates Bollinger bands from loosely typed
// parameters.
func NewBollingerFromConfig(params map[string]interface{}) (Indicator, error) {
	period := int(paramFloat(params, "period", 20))
	k := paramFloat(params, "k", 2)
	maxHistory := int(paramFloat(params, "max_history", 1000))
	return NewBollinger(period, k, maxHistory), nil
}
