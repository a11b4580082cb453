package strategy

import (
	"fmt"
	"math"

	"parity/internal/config"
	"parity/internal/logger"
	"parity/internal/market"
)

// profitPercentage is the broker's typical digit-differs return on stake.
const profitPercentage = 0.8857

// DigitDiff places DIGITDIFF contracts against a fixed barrier digit with a
// recovery stake progression: after a loss the next stake is sized so a win
// recovers the whole chain plus the base profit. The chain resets on a win
// or when the balance can no longer cover the next stake.
type DigitDiff struct {
	cfg       config.StrategyConfig
	window    *market.Window
	baseStake float64

	stake        float64
	outcomeOnWin float64
}

func NewDigitDiff(cfg config.StrategyConfig, baseStake float64) *DigitDiff {
	d := &DigitDiff{
		cfg:       cfg,
		window:    market.NewWindow(cfg.MaxWindow),
		baseStake: baseStake,
	}
	d.reset()
	return d
}

func (d *DigitDiff) reset() {
	d.stake = d.baseStake
	d.outcomeOnWin = d.stake + d.stake*profitPercentage
}

func (d *DigitDiff) Name() string { return "digitdiff" }

func (d *DigitDiff) AddTick(tick market.Tick) {
	d.window.Add(tick)
}

// Analyze always trades: a differs contract against a single digit wins
// nine times out of ten at a payout below the fair 10/9, so the edge lives
// entirely in the staking progression. The chain resets when the balance
// cannot cover the next stake.
func (d *DigitDiff) Analyze(balance, payoutRatio float64) Decision {
	if d.window.Len() < d.cfg.LookbackWindow {
		return skip("insufficient data: %d/%d", d.window.Len(), d.cfg.LookbackWindow)
	}
	if d.stake > balance {
		d.reset()
		if d.stake > balance {
			return skip("balance $%.2f below base stake $%.2f", balance, d.baseStake)
		}
	}
	return Decision{
		Side:          SideDiffers,
		Confidence:    0.9,
		StakeFraction: d.stake / balance,
		Barrier:       d.cfg.Barrier,
		Reason:        fmt.Sprintf("differs vs %d, recovery stake $%.2f", d.cfg.Barrier, d.stake),
	}
}

// UpdateTradeResult advances the progression. On a loss the next stake must
// return the accumulated chain plus the base profit; on a win the chain
// resets to the base stake.
func (d *DigitDiff) UpdateTradeResult(side Side, stake, profit float64) {
	if profit < 0 {
		profitOnWin := d.outcomeOnWin + d.baseStake*profitPercentage
		d.stake = ceilTo2dp(profitOnWin / profitPercentage)
		d.outcomeOnWin = d.stake + profitOnWin
		logger.Infof("recovery progression: next stake $%.2f", d.stake)
		return
	}
	d.reset()
}

func ceilTo2dp(v float64) float64 {
	return math.Ceil(v*100) / 100
}

func (d *DigitDiff) Statistics() Stats {
	oddFreq, evenFreq := d.window.Frequencies()
	return Stats{
		TotalTicks:       d.window.TotalTicks(),
		OddFrequency:     oddFreq,
		EvenFrequency:    evenFreq,
		RecentWindowSize: d.window.Len(),
		LookbackWindow:   d.cfg.LookbackWindow,
	}
}
