package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSignalValiditySeconds is the validity window applied when the
// producing strategy does not set one.
const DefaultSignalValiditySeconds = 300

// Signal is a strategy's directional, strength-weighted recommendation
// for a symbol.
type Signal struct {
	SignalID   string          `json:"signal_id"`
	StrategyID string          `json:"strategy_id"`
	Symbol     string          `json:"symbol"`
	Direction  SignalDirection `json:"direction"`

	// Strength is clamped to [0,1] at construction.
	Strength       float64   `json:"strength"`
	Timestamp      time.Time `json:"timestamp"`
	ReferencePrice float64   `json:"reference_price"`

	// SuggestedPositionSize overrides the portfolio's default sizing when
	// positive.
	SuggestedPositionSize float64 `json:"suggested_position_size,omitempty"`

	Reason          string `json:"reason"`
	SignalPriority  int    `json:"priority"`
	ValiditySeconds int64  `json:"validity_seconds"`

	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
}

// NewSignal constructs a signal, clamping strength into [0,1] and
// applying the default priority and validity window.
func NewSignal(strategyID, symbol string, direction SignalDirection,
	strength, referencePrice float64, reason string) *Signal {

	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}

	return &Signal{
		SignalID:        uuid.NewString(),
		StrategyID:      strategyID,
		Symbol:          symbol,
		Direction:       direction,
		Strength:        strength,
		Timestamp:       time.Now(),
		ReferencePrice:  referencePrice,
		Reason:          reason,
		SignalPriority:  PriorityDefault,
		ValiditySeconds: DefaultSignalValiditySeconds,
	}
}

// IsValid reports whether every non-optional field is populated and in
// range.
func (s *Signal) IsValid() bool {
	return s.SignalID != "" &&
		s.StrategyID != "" &&
		s.Symbol != "" &&
		(s.Direction == SignalBuy || s.Direction == SignalSell || s.Direction == SignalHold) &&
		s.Strength >= 0 && s.Strength <= 1 &&
		!s.Timestamp.IsZero() &&
		s.ReferencePrice > 0 &&
		s.SignalPriority >= 1 && s.SignalPriority <= 10 &&
		s.ValiditySeconds > 0
}

// IsExpired reports whether the validity window has passed at now.
func (s *Signal) IsExpired(now time.Time) bool {
	return s.Timestamp.Add(time.Duration(s.ValiditySeconds) * time.Second).Before(now)
}

// IsBuy reports whether this is a buy signal.
func (s *Signal) IsBuy() bool { return s.Direction == SignalBuy }

// IsSell reports whether this is a sell signal.
func (s *Signal) IsSell() bool { return s.Direction == SignalSell }

// StrengthLevel buckets strength into a coarse label.
func (s *Signal) StrengthLevel() string {
	switch {
	case s.Strength >= 0.8:
		return "VERY_STRONG"
	case s.Strength >= 0.6:
		return "STRONG"
	case s.Strength >= 0.4:
		return "MODERATE"
	case s.Strength >= 0.2:
		return "WEAK"
	default:
		return "VERY_WEAK"
	}
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal[%s %s %s %.2f @%.2f %q]",
		s.StrategyID, s.Symbol, s.Direction, s.Strength, s.ReferencePrice, s.Reason)
}
