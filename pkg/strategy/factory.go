package strategy

import "fmt"

// New creates a strategy instance by type name.
func New(id, strategyType string) (Strategy, error) {
	switch strategyType {
	case "ma_cross":
		return NewMACrossStrategy(id), nil
	case "threshold_exit":
		return NewThresholdExitStrategy(id), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategyType)
	}
}
