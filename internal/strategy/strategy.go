package strategy

import (
	"fmt"

	"parity/internal/market"
)

// Side is the contract direction a decision asks for.
type Side string

const (
	SideOdd     Side = "ODD"
	SideEven    Side = "EVEN"
	SideDiffers Side = "DIFFERS"
	SideSkip    Side = "SKIP"
)

// ContractType maps a side onto the broker's contract identifier.
func (s Side) ContractType() string {
	switch s {
	case SideOdd:
		return "DIGITODD"
	case SideEven:
		return "DIGITEVEN"
	case SideDiffers:
		return "DIGITDIFF"
	}
	return ""
}

// Decision is produced fresh on every evaluation and never mutated.
// StakeFraction is a suggestion; the risk engine has the final word.
type Decision struct {
	Side          Side
	Confidence    float64
	StakeFraction float64
	Barrier       int // only meaningful for SideDiffers
	Reason        string
}

func (d Decision) Skip() bool { return d.Side == SideSkip }

// Wins resolves the decision against the ground-truth outcome tick.
func (d Decision) Wins(outcome market.Tick) bool {
	switch d.Side {
	case SideOdd:
		return outcome.IsOdd
	case SideEven:
		return !outcome.IsOdd
	case SideDiffers:
		return outcome.LastDigit != d.Barrier
	}
	return false
}

func skip(format string, args ...any) Decision {
	return Decision{Side: SideSkip, Reason: fmt.Sprintf(format, args...)}
}

// Stats is the observability snapshot for status reporting.
type Stats struct {
	TotalTicks       int     `json:"total_ticks"`
	OddFrequency     float64 `json:"odd_frequency"`
	EvenFrequency    float64 `json:"even_frequency"`
	RecentWindowSize int     `json:"recent_window_size"`
	LookbackWindow   int     `json:"lookback_window"`
}

// Strategy turns a rolling tick window into trade decisions. Implementations
// are owned by the orchestrator's single control flow and need no locking.
type Strategy interface {
	Name() string
	AddTick(tick market.Tick)
	Analyze(balance, payoutRatio float64) Decision
	UpdateTradeResult(side Side, stake, profit float64)
	Statistics() Stats
}
