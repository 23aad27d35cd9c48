package entity

import (
	"fmt"
	"time"
)

// BarIndicators carries optional precomputed technical indicators for a bar.
type BarIndicators struct {
	MA5  float64 `json:"ma5"`
	MA10 float64 `json:"ma10"`
	MA20 float64 `json:"ma20"`
	MA60 float64 `json:"ma60"`

	MACDDif       float64 `json:"macd_dif"`
	MACDDea       float64 `json:"macd_dea"`
	MACDHistogram float64 `json:"macd_histogram"`

	RSI14 float64 `json:"rsi_14"`

	BollUpper  float64 `json:"boll_upper"`
	BollMiddle float64 `json:"boll_middle"`
	BollLower  float64 `json:"boll_lower"`
}

// Bar is one time-bucketed OHLC quote record with volume and turnover.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Frequency Frequency `json:"frequency"`

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	Volume int64   `json:"volume"` // traded shares
	Amount float64 `json:"amount"` // traded turnover

	Indicators *BarIndicators `json:"indicators,omitempty"`
}

// Validate checks the OHLC ordering invariant and non-negative volume.
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar missing symbol")
	}
	if !b.Frequency.Valid() {
		return fmt.Errorf("bar %s: invalid frequency %q", b.Symbol, b.Frequency)
	}
	lo, hi := b.Open, b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if b.Close > hi {
		hi = b.Close
	}
	if b.Low > lo || hi > b.High {
		return fmt.Errorf("bar %s: OHLC out of order (o=%.4f h=%.4f l=%.4f c=%.4f)",
			b.Symbol, b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %d", b.Symbol, b.Volume)
	}
	return nil
}

// Range returns high minus low.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// IsUp reports whether the bar closed above its open.
func (b *Bar) IsUp() bool {
	return b.Close > b.Open
}

func (b *Bar) String() string {
	return fmt.Sprintf("Bar[%s %s o=%.2f h=%.2f l=%.2f c=%.2f v=%d]",
		b.Symbol, b.Timestamp.Format("2006-01-02 15:04:05"),
		b.Open, b.High, b.Low, b.Close, b.Volume)
}
