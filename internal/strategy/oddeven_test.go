package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parity/internal/config"
	"parity/internal/market"
)

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Name:                   "oddeven",
		LookbackWindow:         20,
		MaxWindow:              1000,
		MinConfidence:          0.55,
		FrequencyBiasThreshold: 0.15,
		VolatilityThreshold:    0.02,
		TradeCooldownSeconds:   30,
		Barrier:                3,
	}
}

func tick(t *testing.T, quote string) market.Tick {
	t.Helper()
	q, err := decimal.NewFromString(quote)
	require.NoError(t, err)
	return market.NewTick("R_50", q, time.Now().Unix(), time.Now())
}

// feedBiased adds count ticks around a stable price with the given number of
// odd last digits; odd ticks come last so the lookback window sees them.
func feedBiased(t *testing.T, s *OddEven, count, odd int) {
	t.Helper()
	for i := 0; i < count-odd; i++ {
		s.AddTick(tick(t, fmt.Sprintf("100.%03d2", i%100)))
	}
	for i := 0; i < odd; i++ {
		s.AddTick(tick(t, fmt.Sprintf("100.%03d3", i%100)))
	}
}

func TestAnalyzeSkipsOnShortWindow(t *testing.T) {
	s := NewOddEven(testStrategyConfig())
	for i := 0; i < 10; i++ {
		s.AddTick(tick(t, "100.13"))
	}
	d := s.Analyze(100, 1.9)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "insufficient data")
}

func TestAnalyzeEVFallback(t *testing.T) {
	// Below the evidence threshold the EV gate assumes the edge implied by
	// the payout itself: a sub-fair payout skips, a 1.9 payout proceeds to
	// the bias filter even on 20 ticks of history.
	s := NewOddEven(testStrategyConfig())
	feedBiased(t, s, 20, 14)

	d := s.Analyze(100, 0.95)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "no positive edge")

	d = s.Analyze(100, 1.9)
	require.False(t, d.Skip(), "reason: %s", d.Reason)
	assert.Equal(t, SideEven, d.Side)
}

func TestAnalyzeBetsAgainstBias(t *testing.T) {
	// 200 ticks at 60% odd clear the EV gate; the last 20 run 70% odd, so
	// mean reversion bets EVEN.
	s := NewOddEven(testStrategyConfig())
	feedBiased(t, s, 180, 106)
	feedBiased(t, s, 20, 14)

	d := s.Analyze(100, 1.9)
	require.False(t, d.Skip(), "reason: %s", d.Reason)
	assert.Equal(t, SideEven, d.Side)
	assert.InDelta(t, 0.63, d.Confidence, 1e-9)
	assert.InDelta(t, 0.0126, d.StakeFraction, 1e-9)
}

func TestAnalyzeBetsOddAgainstEvenBias(t *testing.T) {
	s := NewOddEven(testStrategyConfig())
	// Majority odd overall for the EV gate, but the final lookback window is
	// 70% even.
	feedBiased(t, s, 180, 120)
	for i := 0; i < 6; i++ {
		s.AddTick(tick(t, "100.0013"))
	}
	for i := 0; i < 14; i++ {
		s.AddTick(tick(t, "100.0012"))
	}

	d := s.Analyze(100, 1.9)
	require.False(t, d.Skip(), "reason: %s", d.Reason)
	assert.Equal(t, SideOdd, d.Side)
}

func TestAnalyzeSkipsOnWeakBias(t *testing.T) {
	// 55/45 in the lookback window is below the 0.15 bias threshold.
	s := NewOddEven(testStrategyConfig())
	feedBiased(t, s, 180, 110)
	feedBiased(t, s, 20, 11)
	d := s.Analyze(100, 1.9)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "no significant bias")
}

func TestAnalyzeVolatilityVeto(t *testing.T) {
	s := NewOddEven(testStrategyConfig())
	feedBiased(t, s, 180, 106)
	// Wild price swings in the lookback window, still 70% odd.
	for i := 0; i < 6; i++ {
		s.AddTick(tick(t, "50.12"))
	}
	for i := 0; i < 14; i++ {
		s.AddTick(tick(t, "150.13"))
	}

	d := s.Analyze(100, 1.9)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "high volatility")
}

func TestAnalyzeConfidenceGate(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MinConfidence = 0.70
	s := NewOddEven(cfg)
	feedBiased(t, s, 180, 106)
	feedBiased(t, s, 20, 14)

	d := s.Analyze(100, 1.9)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "low confidence")
}

func TestAnalyzeTradeCooldown(t *testing.T) {
	s := NewOddEven(testStrategyConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return now })
	feedBiased(t, s, 180, 106)
	feedBiased(t, s, 20, 14)

	s.UpdateTradeResult(SideEven, 1.0, 0.9)
	d := s.Analyze(100, 1.9)
	require.True(t, d.Skip())
	assert.Contains(t, d.Reason, "cooldown")

	now = now.Add(31 * time.Second)
	d = s.Analyze(100, 1.9)
	assert.False(t, d.Skip(), "reason: %s", d.Reason)
}

func TestPositionFractionCaps(t *testing.T) {
	assert.InDelta(t, 0.01, positionFraction(0.5), 1e-9)
	assert.InDelta(t, 0.0144, positionFraction(0.72), 1e-9)
	assert.Equal(t, 0.02, positionFraction(1.0))
	assert.Equal(t, 0.02, positionFraction(5.0))
}

func TestStatistics(t *testing.T) {
	s := NewOddEven(testStrategyConfig())
	st := s.Statistics()
	assert.Equal(t, 0.5, st.OddFrequency)

	feedBiased(t, s, 100, 60)
	st = s.Statistics()
	assert.Equal(t, 100, st.TotalTicks)
	assert.InDelta(t, 0.6, st.OddFrequency, 1e-9)
	assert.Equal(t, 20, st.LookbackWindow)
}

func TestDecisionWins(t *testing.T) {
	odd := tick(t, "100.13")
	even := tick(t, "100.12")

	assert.True(t, Decision{Side: SideOdd}.Wins(odd))
	assert.False(t, Decision{Side: SideOdd}.Wins(even))
	assert.True(t, Decision{Side: SideEven}.Wins(even))
	assert.True(t, Decision{Side: SideDiffers, Barrier: 3}.Wins(even))
	assert.False(t, Decision{Side: SideDiffers, Barrier: 3}.Wins(odd))
	assert.False(t, Decision{Side: SideSkip}.Wins(odd))
}
