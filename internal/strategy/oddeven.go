package strategy

import (
	"fmt"
	"math"
	"time"

	"parity/internal/config"
	"parity/internal/logger"
	"parity/internal/market"
)

// OddEven is a conservative mean-reversion strategy over last-digit parity.
// It only trades when the recent window shows a frequency bias and the
// expected value of the better side clears the house edge.
type OddEven struct {
	cfg    config.StrategyConfig
	window *market.Window

	lastTradeTime time.Time
	nowFn         func() time.Time
}

func NewOddEven(cfg config.StrategyConfig) *OddEven {
	return &OddEven{
		cfg:    cfg,
		window: market.NewWindow(cfg.MaxWindow),
		nowFn:  time.Now,
	}
}

func (s *OddEven) Name() string { return "oddeven" }

// SetNowFunc overrides the clock; test hook.
func (s *OddEven) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *OddEven) AddTick(tick market.Tick) {
	s.window.Add(tick)
}

// Analyze runs the full decision pipeline. Every filter can veto; the first
// veto wins and its reason is reported.
func (s *OddEven) Analyze(balance, payoutRatio float64) Decision {
	if !s.lastTradeTime.IsZero() && s.nowFn().Sub(s.lastTradeTime) < s.cfg.TradeCooldown() {
		return skip("cooldown period active")
	}

	if s.window.Len() < s.cfg.LookbackWindow {
		return skip("insufficient data: %d/%d", s.window.Len(), s.cfg.LookbackWindow)
	}

	ev := s.expectedValue(payoutRatio)
	if ev <= 0 {
		return skip("no positive edge: EV=%.4f", ev)
	}

	recent := s.window.Recent(s.cfg.LookbackWindow)

	freq := s.frequencyBias(recent)
	if freq.Skip() {
		return freq
	}

	if vetoed, cv := s.highVolatility(recent); vetoed {
		return skip("high volatility: %.4f", cv)
	}

	confidence := freq.Confidence * 0.9
	if confidence < s.cfg.MinConfidence {
		return skip("low confidence: %.3f", confidence)
	}

	return Decision{
		Side:          freq.Side,
		Confidence:    confidence,
		StakeFraction: positionFraction(confidence),
		Reason:        freq.Reason,
	}
}

// expectedValue estimates the edge of the better parity side over up to the
// last 200 ticks. Below the evidence thresholds it assumes the house edge
// implied by the payout, which for these contracts is negative.
func (s *OddEven) expectedValue(payoutRatio float64) float64 {
	if s.window.TotalTicks() < 100 {
		return payoutRatio - 1.0
	}
	n := s.window.Len()
	if n > 200 {
		n = 200
	}
	if n < 50 {
		return payoutRatio - 1.0
	}

	recent := s.window.Recent(n)
	odd := 0
	for _, t := range recent {
		if t.IsOdd {
			odd++
		}
	}
	oddRate := float64(odd) / float64(n)
	best := math.Max(oddRate, 1.0-oddRate)

	// 52% minimum to overcome the house edge.
	if best > 0.52 {
		return best*payoutRatio - 1.0
	}
	return payoutRatio - 1.0
}

// frequencyBias bets against the recent parity bias (mean reversion).
func (s *OddEven) frequencyBias(recent []market.Tick) Decision {
	if len(recent) == 0 {
		return skip("no recent ticks")
	}
	odd := 0
	for _, t := range recent {
		if t.IsOdd {
			odd++
		}
	}
	oddFreq := float64(odd) / float64(len(recent))
	bias := math.Abs(oddFreq - 0.5)
	if bias < s.cfg.FrequencyBiasThreshold {
		return skip("no significant bias: %.3f", bias)
	}

	confidence := math.Min(0.8, 0.5+bias)
	if oddFreq > 0.5 {
		return Decision{Side: SideEven, Confidence: confidence,
			Reason: fmt.Sprintf("mean reversion: odd_freq=%.3f", oddFreq)}
	}
	return Decision{Side: SideOdd, Confidence: confidence,
		Reason: fmt.Sprintf("mean reversion: even_freq=%.3f", 1.0-oddFreq)}
}

// highVolatility vetoes trading when the coefficient of variation of recent
// quotes exceeds the threshold.
func (s *OddEven) highVolatility(recent []market.Tick) (bool, float64) {
	if len(recent) < 5 {
		return false, 0
	}
	prices := make([]float64, len(recent))
	for i, t := range recent {
		prices[i] = t.Quote.InexactFloat64()
	}
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean <= 0 {
		return false, 0
	}
	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	cv := math.Sqrt(variance) / mean
	return cv > s.cfg.VolatilityThreshold, cv
}

// positionFraction scales a 1% base stake linearly from 50% confidence,
// hard-capped at 2%.
func positionFraction(confidence float64) float64 {
	mult := math.Min(2.0, confidence/0.5)
	return math.Min(0.01*mult, 0.02)
}

func (s *OddEven) UpdateTradeResult(side Side, stake, profit float64) {
	s.lastTradeTime = s.nowFn()
	outcome := "LOSS"
	if profit > 0 {
		outcome = "WIN"
	}
	logger.Infof("trade result: %s $%.2f -> %s $%.2f", side, stake, outcome, profit)
}

func (s *OddEven) Statistics() Stats {
	oddFreq, evenFreq := s.window.Frequencies()
	return Stats{
		TotalTicks:       s.window.TotalTicks(),
		OddFrequency:     oddFreq,
		EvenFrequency:    evenFreq,
		RecentWindowSize: s.window.Len(),
		LookbackWindow:   s.cfg.LookbackWindow,
	}
}
