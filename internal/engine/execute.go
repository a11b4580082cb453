package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"parity/internal/deriv"
	"parity/internal/logger"
	"parity/internal/strategy"
)

func (e *Engine) execute(ctx context.Context, decision strategy.Decision, payoutRatio float64) error {
	stake := e.risk.PositionSize(decision.StakeFraction)

	if e.mode == ModePaper {
		e.executePaper(ctx, decision, stake, payoutRatio)
		return nil
	}
	return e.executeLive(ctx, decision, stake, payoutRatio)
}

// executePaper settles against the next live tick when the stream is
// flowing; with no tick inside the wait window it falls back to a coin
// flip so validation sessions on a dead stream still exercise the loop.
func (e *Engine) executePaper(ctx context.Context, decision strategy.Decision, stake, payoutRatio float64) {
	var win bool
	if outcome, ok := e.waitNextTick(ctx, 15*time.Second); ok {
		win = decision.Wins(outcome)
	} else {
		logger.Warnf("no tick for paper settlement, falling back to simulated outcome")
		win = rand.Float64() < 0.5
	}

	profit := -stake
	if win {
		profit = stake * (payoutRatio - 1)
	}
	newBalance := e.risk.Status().CurrentBalance + profit

	logger.Infof("PAPER TRADE: %s $%.2f -> %+.2f (%s)", decision.Side, stake, profit, decision.Reason)
	e.recordTrade(decision, stake, profit, newBalance)
}

// executeLive buys the contract, polls settlement until the contract is
// sold or the settle window expires, then refreshes the balance. A timed-out
// settlement falls back to the balance delta so risk state never goes stale.
func (e *Engine) executeLive(ctx context.Context, decision strategy.Decision, stake, payoutRatio float64) error {
	params := deriv.BuyParams{
		ContractType: decision.Side.ContractType(),
		Stake:        stake,
	}
	if decision.Side == strategy.SideDiffers {
		params.Barrier = strconv.Itoa(decision.Barrier)
	}

	before := e.risk.Status().CurrentBalance
	buy, err := e.client.Buy(ctx, params)
	if err != nil {
		logger.Errorf("trade execution failed: %v", err)
		return fmt.Errorf("buy: %w", err)
	}
	logger.Infof("LIVE TRADE: %s $%.2f contract %d (%s)", decision.Side, stake, buy.ContractID, decision.Reason)

	profit, settled := e.awaitSettlement(ctx, buy.ContractID)

	newBalance, err := e.client.Balance(ctx)
	if err != nil {
		logger.Errorf("post-trade balance fetch failed: %v", err)
		newBalance = before + profit
	}
	if !settled {
		// Settlement never confirmed; infer the result from the balance move.
		profit = newBalance - before
		logger.Warnf("settlement poll timed out for contract %d, inferred profit %+.2f", buy.ContractID, profit)
	}

	e.recordTrade(decision, stake, profit, newBalance)
	return nil
}

// awaitSettlement polls the contract status until it reports sold, bounded
// by the configured settle timeout.
func (e *Engine) awaitSettlement(ctx context.Context, contractID int64) (profit float64, settled bool) {
	deadline := time.Now().Add(e.cfg.Deriv.SettleTimeout())
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(time.Second):
		}
		status, err := e.client.ContractStatus(ctx, contractID)
		if err != nil {
			logger.Debugf("contract status poll failed: %v", err)
			continue
		}
		if status.Sold() {
			return status.Profit, true
		}
	}
	return 0, false
}

// recordTrade fans the settled result out to every consumer: risk state,
// strategy cooldown, journal, and the session tally.
func (e *Engine) recordTrade(decision strategy.Decision, stake, profit, newBalance float64) {
	rec := e.risk.RecordResult(string(decision.Side), stake, profit, newBalance)
	e.strat.UpdateTradeResult(decision.Side, stake, profit)

	if err := e.journal.Record(rec, string(e.mode)); err != nil {
		logger.Errorf("journal write failed: %v", err)
	}

	e.stats.TotalTrades++
	e.stats.TotalPnL += profit
	if profit > 0 {
		e.stats.Wins++
	} else {
		e.stats.Losses++
	}
}
