package indicators

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// SMA is the simple moving average of bar closes.
type SMA struct {
	BaseIndicator
	period int
	window []float64
	sum    float64
}

// NewSMA creates an SMA over the given period.
func NewSMA(period, maxHistory int) *SMA {
	if period <= 0 {
		period = 20
	}
	return &SMA{
		BaseIndicator: newBaseIndicator("SMA", maxHistory),
		period:        period,
		window:        make([]float64, 0, period),
	}
}

// Update feeds one bar close into the window.
func (s *SMA) Update(bar *entity.Bar) {
	s.UpdatePrice(bar.Close)
}

// UpdatePrice feeds one raw price into the window.
func (s *SMA) UpdatePrice(price float64) {
	s.window = append(s.window, price)
	s.sum += price
	if len(s.window) > s.period {
		s.sum -= s.window[0]
		s.window = s.window[1:]
	}
	if len(s.window) == s.period {
		s.addValue(s.sum / float64(s.period))
	}
}

// Period returns the configured period.
func (s *SMA) Period() int { return s.period }

// Reset restores the initial state.
func (s *SMA) Reset() {
	s.window = s.window[:0]
	s.sum = 0
	s.BaseIndicator.Reset()
}

// NewSMAFromConfig creates an SMA from loosely typed parameters.
func NewSMAFromConfig(params map[string]interface{}) (Indicator, error) {
	period := int(paramFloat(params, "period", 20))
	maxHistory := int(paramFloat(params, "max_history", 1000))
	return NewSMA(period, maxHistory), nil
}
