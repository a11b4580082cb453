package risk

import "time"

// Status is a point-in-time snapshot for the status server and the
// orchestrator's periodic log line.
type Status struct {
	CurrentBalance       float64   `json:"current_balance"`
	StartingBalance      float64   `json:"starting_balance"`
	DailyStartingBalance float64   `json:"daily_starting_balance"`
	SessionPeak          float64   `json:"session_peak"`
	SessionProfit        float64   `json:"session_profit"`
	DailyProfit          float64   `json:"daily_profit"`
	Drawdown             float64   `json:"drawdown"`
	ConsecutiveLosses    int       `json:"consecutive_losses"`
	CooldownUntil        time.Time `json:"cooldown_until,omitempty"`
	InCooldown           bool      `json:"in_cooldown"`
	TradesRecorded       int       `json:"trades_recorded"`
	Wins                 int       `json:"wins"`
	Losses               int       `json:"losses"`
}

func (e *Engine) Status() Status {
	wins, losses := 0, 0
	for _, rec := range e.history {
		if rec.Outcome == OutcomeWin {
			wins++
		} else {
			losses++
		}
	}
	return Status{
		CurrentBalance:       e.currentBalance,
		StartingBalance:      e.startingBalance,
		DailyStartingBalance: e.dailyStartingBalance,
		SessionPeak:          e.sessionPeak,
		SessionProfit:        e.currentBalance - e.startingBalance,
		DailyProfit:          e.currentBalance - e.dailyStartingBalance,
		Drawdown:             e.sessionPeak - e.currentBalance,
		ConsecutiveLosses:    e.consecutiveLosses,
		CooldownUntil:        e.cooldownUntil,
		InCooldown:           e.nowFn().Before(e.cooldownUntil),
		TradesRecorded:       len(e.history),
		Wins:                 wins,
		Losses:               losses,
	}
}
