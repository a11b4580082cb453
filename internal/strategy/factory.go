package strategy

import (
	"fmt"

	"parity/internal/config"
)

// New builds the strategy named in config. The digit-differs base stake is
// the broker minimum from the risk section.
func New(cfg config.StrategyConfig, minStake float64) (Strategy, error) {
	switch cfg.Name {
	case "oddeven", "":
		return NewOddEven(cfg), nil
	case "digitdiff":
		return NewDigitDiff(cfg, minStake), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Name)
}
