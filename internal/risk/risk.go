package risk

import (
	"fmt"
	"math"
	"time"
)

// Limits holds the risk parameters for a session. Immutable once the engine
// is constructed.
type Limits struct {
	MaxStakeFraction    float64 // hard cap on stake as a fraction of balance
	LowBalanceCap       float64 // absolute stake cap applied when balance <= 10
	DailyLossFraction   float64 // daily loss stop as a fraction of the daily start
	DrawdownFraction    float64 // drawdown stop as a fraction of the session peak
	LossStreakThreshold int
	Cooldown            time.Duration
	BalanceFloor        float64 // absolute minimum balance to trade at all
	BalanceStopLower    float64
	BalanceStopUpper    float64
	MinStake            float64 // broker's minimum viable stake
}

// ReasonCode identifies which gate blocked trading. Stable values: callers
// branch on these, never on the message text.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonBalanceFloor   ReasonCode = "balance_floor"
	ReasonBelowMinStake  ReasonCode = "below_min_stake"
	ReasonBalanceStopLow ReasonCode = "balance_stop_lower"
	ReasonBalanceStopUp  ReasonCode = "balance_stop_upper"
	ReasonDailyLoss      ReasonCode = "daily_loss_limit"
	ReasonDrawdown       ReasonCode = "drawdown_limit"
	ReasonCooldown       ReasonCode = "loss_streak_cooldown"
)

// Reason is a risk gate verdict. Gate failures are data, not errors.
type Reason struct {
	Code    ReasonCode
	Message string
}

func (r Reason) Blocked() bool { return r.Code != ReasonNone }

// Fatal reports whether the reason belongs to the emergency-stop subset:
// conditions that cannot clear on their own within a session. The cooldown
// is deliberately excluded; it pauses, it does not terminate.
func (r Reason) Fatal() bool {
	switch r.Code {
	case ReasonBalanceFloor, ReasonBalanceStopLow, ReasonBalanceStopUp, ReasonDailyLoss, ReasonDrawdown:
		return true
	}
	return false
}

// Outcome of a settled contract.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// TradeRecord is one settled trade, append-only in the engine's history.
type TradeRecord struct {
	Side              string
	Stake             float64
	Outcome           Outcome
	Profit            float64
	BalanceAfter      float64
	ConsecutiveLosses int
	Timestamp         time.Time
}

// Engine tracks balance history and enforces every stop condition. It is a
// pure state machine: no I/O, no goroutines, mutated only by its owner.
type Engine struct {
	limits Limits

	currentBalance       float64
	startingBalance      float64
	dailyStartingBalance float64
	sessionPeak          float64
	consecutiveLosses    int
	cooldownUntil        time.Time
	lastResetDate        time.Time // calendar day of the last daily re-base
	history              []TradeRecord

	nowFn func() time.Time
}

func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits, nowFn: time.Now}
}

// SetNowFunc overrides the clock; test hook.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

func (e *Engine) Limits() Limits { return e.limits }

// InitializeSession sets balance and peak, and re-bases the daily starting
// balance at most once per calendar day.
func (e *Engine) InitializeSession(startingBalance float64) {
	e.startingBalance = startingBalance
	e.currentBalance = startingBalance
	e.sessionPeak = startingBalance

	today := dateOf(e.nowFn())
	if !today.Equal(e.lastResetDate) {
		e.dailyStartingBalance = startingBalance
		e.lastResetDate = today
	}
}

// UpdateBalance records the latest balance; the session peak only ever rises.
func (e *Engine) UpdateBalance(newBalance float64) {
	e.currentBalance = newBalance
	if newBalance > e.sessionPeak {
		e.sessionPeak = newBalance
	}
}

// PositionSize converts the strategy's suggested fraction into a safe stake.
// Clamp order matters: fraction cap, then the low-balance cap, then the
// broker minimum. The minimum wins even over the low-balance cap so a small
// account can still place the smallest tradable contract.
func (e *Engine) PositionSize(signalFraction float64) float64 {
	stake := signalFraction * e.currentBalance
	stake = math.Min(stake, e.limits.MaxStakeFraction*e.currentBalance)
	if e.currentBalance <= 10.0 {
		stake = math.Min(stake, math.Max(e.limits.LowBalanceCap, e.limits.MinStake))
	}
	stake = math.Max(stake, e.limits.MinStake)
	return math.Round(stake*100) / 100
}

// ClampStake is the same pipeline over an explicit balance, shared with the
// backtester so validation stakes the way live trading does.
func ClampStake(limits Limits, balance, signalFraction float64) float64 {
	stake := signalFraction * balance
	stake = math.Min(stake, limits.MaxStakeFraction*balance)
	if balance <= 10.0 {
		stake = math.Min(stake, math.Max(limits.LowBalanceCap, limits.MinStake))
	}
	stake = math.Max(stake, limits.MinStake)
	return math.Round(stake*100) / 100
}

// TradeAllowed evaluates the seven gates in order and returns the first
// failing reason. The order only controls which reason is reported; the
// gates are independent.
func (e *Engine) TradeAllowed() (bool, Reason) {
	if e.currentBalance < e.limits.BalanceFloor {
		return false, Reason{ReasonBalanceFloor,
			fmt.Sprintf("balance below minimum threshold ($%.2f)", e.limits.BalanceFloor)}
	}
	if e.currentBalance < e.limits.MinStake {
		return false, Reason{ReasonBelowMinStake,
			fmt.Sprintf("balance insufficient for minimum stake ($%.2f)", e.limits.MinStake)}
	}
	if e.currentBalance <= e.limits.BalanceStopLower {
		return false, Reason{ReasonBalanceStopLow,
			fmt.Sprintf("balance too low: $%.2f <= $%.2f", e.currentBalance, e.limits.BalanceStopLower)}
	}
	if e.currentBalance >= e.limits.BalanceStopUpper {
		return false, Reason{ReasonBalanceStopUp,
			fmt.Sprintf("balance target reached: $%.2f >= $%.2f", e.currentBalance, e.limits.BalanceStopUpper)}
	}
	dailyLoss := e.dailyStartingBalance - e.currentBalance
	dailyLimit := e.dailyStartingBalance * e.limits.DailyLossFraction
	if dailyLoss >= dailyLimit {
		return false, Reason{ReasonDailyLoss,
			fmt.Sprintf("daily loss limit reached: $%.2f >= $%.2f", dailyLoss, dailyLimit)}
	}
	drawdown := e.sessionPeak - e.currentBalance
	ddLimit := e.sessionPeak * e.limits.DrawdownFraction
	if drawdown >= ddLimit {
		return false, Reason{ReasonDrawdown,
			fmt.Sprintf("drawdown limit reached: $%.2f >= $%.2f", drawdown, ddLimit)}
	}
	if now := e.nowFn(); now.Before(e.cooldownUntil) {
		remaining := e.cooldownUntil.Sub(now).Round(time.Second)
		return false, Reason{ReasonCooldown,
			fmt.Sprintf("loss streak cooldown: %s remaining", remaining)}
	}
	return true, Reason{}
}

// RecordResult folds a settled trade back into the state. A win resets the
// loss streak; a loss that reaches the threshold arms the cooldown, which is
// not re-armed again until a win clears the streak.
func (e *Engine) RecordResult(side string, stake, profit, newBalance float64) TradeRecord {
	e.UpdateBalance(newBalance)

	outcome := OutcomeLoss
	if profit > 0 {
		outcome = OutcomeWin
		e.consecutiveLosses = 0
	} else {
		e.consecutiveLosses++
		if e.consecutiveLosses == e.limits.LossStreakThreshold {
			e.cooldownUntil = e.nowFn().Add(e.limits.Cooldown)
		}
	}

	rec := TradeRecord{
		Side:              side,
		Stake:             stake,
		Outcome:           outcome,
		Profit:            profit,
		BalanceAfter:      newBalance,
		ConsecutiveLosses: e.consecutiveLosses,
		Timestamp:         e.nowFn(),
	}
	e.history = append(e.history, rec)
	return rec
}

// EmergencyStop is true only for the irrecoverable gate subset.
func (e *Engine) EmergencyStop() (bool, Reason) {
	allowed, reason := e.TradeAllowed()
	if !allowed && reason.Fatal() {
		return true, reason
	}
	return false, Reason{}
}

// ResetDailyLimits re-bases the daily starting balance to the current
// balance; called by the orchestrator on calendar-day rollover.
func (e *Engine) ResetDailyLimits() {
	e.dailyStartingBalance = e.currentBalance
	e.lastResetDate = dateOf(e.nowFn())
}

// NeedsDailyReset reports whether the calendar day has rolled over since the
// last re-base.
func (e *Engine) NeedsDailyReset() bool {
	return !dateOf(e.nowFn()).Equal(e.lastResetDate)
}

func (e *Engine) History() []TradeRecord { return e.history }

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
