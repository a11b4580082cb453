package engine

import (
	"fmt"

	"parity/internal/backtest"
	"parity/internal/logger"
	"parity/internal/risk"
	"parity/internal/strategy"
)

// Status is the snapshot served by the HTTP API and logged periodically.
type Status struct {
	Mode        Mode           `json:"mode"`
	ClientState string         `json:"client_state"`
	StopReason  string         `json:"stop_reason,omitempty"`
	LastTick    *TickView      `json:"last_tick,omitempty"`
	Risk        risk.Status    `json:"risk"`
	Strategy    strategy.Stats `json:"strategy"`
	Session     SessionStats   `json:"session"`
}

// TickView is the last streamed tick as served by the status API.
type TickView struct {
	Symbol    string `json:"symbol"`
	Quote     string `json:"quote"`
	Epoch     int64  `json:"epoch"`
	LastDigit int    `json:"last_digit"`
	IsOdd     bool   `json:"is_odd"`
}

func (e *Engine) updateSnapshot() {
	snap := Status{
		Mode:        e.mode,
		ClientState: e.client.State().String(),
		StopReason:  e.stopReason,
		Risk:        e.risk.Status(),
		Strategy:    e.strat.Statistics(),
		Session:     e.stats,
	}
	if t := e.lastTick; t != nil {
		snap.LastTick = &TickView{
			Symbol:    t.Symbol,
			Quote:     t.QuoteText(),
			Epoch:     t.Epoch,
			LastDigit: t.LastDigit,
			IsOdd:     t.IsOdd,
		}
	}
	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()
}

// Snapshot returns the last published status. Safe from any goroutine.
func (e *Engine) Snapshot() Status {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

// Validation returns the stored pre-loop verdict, nil before validation ran.
func (e *Engine) Validation() *backtest.Validation {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.validation
}

func (e *Engine) emitStatus() {
	rs := e.risk.Status()
	ss := e.strat.Statistics()
	logger.Infof("status: mode=%s balance=$%.2f pnl=%+.2f trades=%d (W%d/L%d) streak=%d ticks=%d odd=%.3f",
		e.mode, rs.CurrentBalance, rs.SessionProfit,
		e.stats.TotalTrades, e.stats.Wins, e.stats.Losses,
		rs.ConsecutiveLosses, ss.TotalTicks, ss.OddFrequency)
}

func (e *Engine) printFinalSummary() {
	rs := e.risk.Status()
	e.updateSnapshot()

	summary := fmt.Sprintf(
		"FINAL SESSION SUMMARY\n"+
			"Mode:             %s\n"+
			"Starting balance: $%.2f\n"+
			"Final balance:    $%.2f\n"+
			"Total P&L:        %+.2f\n"+
			"Session peak:     $%.2f\n"+
			"Total trades:     %d (W%d/L%d)",
		e.mode,
		rs.StartingBalance,
		rs.CurrentBalance,
		rs.CurrentBalance-rs.StartingBalance,
		rs.SessionPeak,
		e.stats.TotalTrades, e.stats.Wins, e.stats.Losses,
	)
	if e.stats.TotalTrades > 0 {
		summary += fmt.Sprintf("\nWin rate:         %.1f%%",
			100*float64(e.stats.Wins)/float64(e.stats.TotalTrades))
	}
	if e.stopReason != "" {
		summary += fmt.Sprintf("\nStop reason:      %s", e.stopReason)
	}
	logger.InfoBlock(summary)
}
