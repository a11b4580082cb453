package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxStakeFraction:    0.02,
		LowBalanceCap:       0.20,
		DailyLossFraction:   0.10,
		DrawdownFraction:    0.15,
		LossStreakThreshold: 3,
		Cooldown:            10 * time.Minute,
		BalanceFloor:        5.0,
		BalanceStopLower:    5.0,
		BalanceStopUpper:    10000.0,
		MinStake:            0.35,
	}
}

func newTestEngine(t *testing.T, balance float64) (*Engine, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := NewEngine(testLimits())
	e.SetNowFunc(func() time.Time { return now })
	e.InitializeSession(balance)
	return e, &now
}

func TestTradeAllowedHappyPath(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	allowed, reason := e.TradeAllowed()
	assert.True(t, allowed)
	assert.Equal(t, ReasonNone, reason.Code)
}

func TestTradeAllowedGateOrder(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(e *Engine)
		want    ReasonCode
	}{
		{
			name:    "balance floor",
			prepare: func(e *Engine) { e.UpdateBalance(4.0) },
			want:    ReasonBalanceFloor,
		},
		{
			name: "lower stop",
			prepare: func(e *Engine) {
				e.InitializeSession(5.0)
				e.UpdateBalance(5.0)
			},
			want: ReasonBalanceStopLow,
		},
		{
			name:    "upper stop",
			prepare: func(e *Engine) { e.UpdateBalance(10000.0) },
			want:    ReasonBalanceStopUp,
		},
		{
			name:    "daily loss",
			prepare: func(e *Engine) { e.UpdateBalance(89.0) },
			want:    ReasonDailyLoss,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t, 100)
			tc.prepare(e)
			allowed, reason := e.TradeAllowed()
			assert.False(t, allowed)
			assert.Equal(t, tc.want, reason.Code)
		})
	}
}

func TestDailyLossScenario(t *testing.T) {
	// Starting balance $100, daily loss fraction 0.10: dropping to $89 means
	// an $11 loss against a $10 limit.
	e, _ := newTestEngine(t, 100)
	e.UpdateBalance(89.0)
	allowed, reason := e.TradeAllowed()
	require.False(t, allowed)
	assert.Equal(t, ReasonDailyLoss, reason.Code)
	assert.Contains(t, reason.Message, "daily loss limit")
}

func TestDrawdownScenario(t *testing.T) {
	// Peak $120, balance $100: 16.7% drawdown exceeds the 15% limit.
	e, _ := newTestEngine(t, 100)
	e.UpdateBalance(120.0)
	e.UpdateBalance(100.0)
	allowed, reason := e.TradeAllowed()
	require.False(t, allowed)
	assert.Equal(t, ReasonDrawdown, reason.Code)
}

func TestSessionPeakMonotonic(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	e.UpdateBalance(110)
	e.UpdateBalance(90)
	e.UpdateBalance(105)
	assert.Equal(t, 110.0, e.Status().SessionPeak)
	e.UpdateBalance(130)
	assert.Equal(t, 130.0, e.Status().SessionPeak)
}

func TestPositionSizeClamps(t *testing.T) {
	e, _ := newTestEngine(t, 100)

	// 5% signal at $100 clamps to the 2% cap.
	assert.Equal(t, 2.00, e.PositionSize(0.05))

	// At $10 the low-balance cap applies, but the minimum stake wins when
	// the cap sits below it.
	e.UpdateBalance(10.0)
	stake := e.PositionSize(0.05)
	assert.Equal(t, 0.35, stake)

	// Tiny signals are floored at the minimum stake.
	e.UpdateBalance(100.0)
	assert.Equal(t, 0.35, e.PositionSize(0.001))
}

func TestClampStakeMatchesEngine(t *testing.T) {
	e, _ := newTestEngine(t, 250)
	for _, frac := range []float64{0.001, 0.01, 0.02, 0.05} {
		assert.Equal(t, e.PositionSize(frac), ClampStake(testLimits(), 250, frac))
	}
}

func TestLossStreakCooldown(t *testing.T) {
	e, now := newTestEngine(t, 100)

	e.RecordResult("ODD", 1, -1, 99)
	e.RecordResult("ODD", 1, -1, 98)
	allowed, _ := e.TradeAllowed()
	assert.True(t, allowed, "two losses should not trip the cooldown")

	rec := e.RecordResult("ODD", 1, -1, 97)
	assert.Equal(t, 3, rec.ConsecutiveLosses)
	allowed, reason := e.TradeAllowed()
	require.False(t, allowed)
	assert.Equal(t, ReasonCooldown, reason.Code)

	// The cooldown is recoverable, not an emergency stop.
	stop, _ := e.EmergencyStop()
	assert.False(t, stop)

	// Further losses must not re-arm the cooldown.
	*now = now.Add(9 * time.Minute)
	e.RecordResult("ODD", 1, -1, 96)
	*now = now.Add(2 * time.Minute)
	allowed, _ = e.TradeAllowed()
	assert.True(t, allowed, "cooldown expired and must not have been re-armed by the fourth loss")
}

func TestWinResetsStreak(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	e.RecordResult("EVEN", 1, -1, 99)
	e.RecordResult("EVEN", 1, -1, 98)
	rec := e.RecordResult("EVEN", 1, 0.9, 98.9)
	assert.Equal(t, OutcomeWin, rec.Outcome)
	assert.Equal(t, 0, rec.ConsecutiveLosses)
}

func TestEmergencyStopSubset(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	e.UpdateBalance(4.0)
	stop, reason := e.EmergencyStop()
	require.True(t, stop)
	assert.Equal(t, ReasonBalanceFloor, reason.Code)
	assert.True(t, reason.Fatal())
}

func TestDailyRollover(t *testing.T) {
	e, now := newTestEngine(t, 100)
	e.UpdateBalance(92.0)
	assert.False(t, e.NeedsDailyReset())

	*now = now.Add(24 * time.Hour)
	require.True(t, e.NeedsDailyReset())
	e.ResetDailyLimits()
	assert.False(t, e.NeedsDailyReset())

	// The daily limit is now measured from $92, so $89 is only a $3 loss.
	e.UpdateBalance(89.0)
	allowed, _ := e.TradeAllowed()
	assert.True(t, allowed)
}

func TestHistoryAppendOnly(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	e.RecordResult("ODD", 1, 0.9, 100.9)
	e.RecordResult("EVEN", 1, -1, 99.9)
	require.Len(t, e.History(), 2)
	assert.Equal(t, OutcomeWin, e.History()[0].Outcome)
	assert.Equal(t, OutcomeLoss, e.History()[1].Outcome)

	st := e.Status()
	assert.Equal(t, 2, st.TradesRecorded)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 1, st.Losses)
}

func TestKellyFraction(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(0.5, 1.9, 0.25), "no edge at 50% on a sub-fair payout")
	f := KellyFraction(0.6, 2.0, 0.5)
	assert.InDelta(t, 0.1, f, 1e-9)
	assert.Equal(t, 0.0, KellyFraction(0.6, 1.0, 1.0))
}
