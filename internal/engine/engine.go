package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parity/internal/backtest"
	"parity/internal/config"
	"parity/internal/deriv"
	"parity/internal/journal"
	"parity/internal/logger"
	"parity/internal/market"
	"parity/internal/pkg/circuit"
	"parity/internal/risk"
	"parity/internal/scheduler"
	"parity/internal/strategy"
)

// Mode selects how decisions are executed.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live_demo"
)

// MarketClient is the broker session surface the orchestrator drives.
// Satisfied by *deriv.Client; mocked in tests.
type MarketClient interface {
	Connect(ctx context.Context) error
	Authenticate(ctx context.Context) error
	SubscribeTicks(ctx context.Context, symbol string, handler deriv.TickHandler) error
	Balance(ctx context.Context) (float64, error)
	Proposal(ctx context.Context, contractType string) (deriv.ProposalInfo, error)
	Buy(ctx context.Context, params deriv.BuyParams) (deriv.BuyInfo, error)
	ContractStatus(ctx context.Context, contractID int64) (deriv.ContractStatusInfo, error)
	HealthCheck(ctx context.Context) bool
	State() deriv.State
	Disconnect()
}

// SessionStats is the running tally printed in the final summary.
type SessionStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalPnL    float64 `json:"total_pnl"`
}

// Engine drives the trading loop. All trading state (risk, strategy, stats)
// is owned by the single Run control flow; ticks arriving on the receive
// loop cross over through a buffered channel, and the HTTP status server
// reads a snapshot behind its own lock.
type Engine struct {
	cfg     *config.Config
	client  MarketClient
	risk    *risk.Engine
	strat   strategy.Strategy
	journal *journal.Journal
	mode    Mode

	breaker        *circuit.CircuitBreaker
	healthInterval *scheduler.Interval
	statusInterval *scheduler.Interval

	ticks    chan market.Tick
	lastTick *market.Tick
	stats    SessionStats

	snapMu     sync.RWMutex
	snapshot   Status
	validation *backtest.Validation

	stopReason string
}

func New(cfg *config.Config, client MarketClient, riskEngine *risk.Engine, strat strategy.Strategy, jrnl *journal.Journal, mode Mode) *Engine {
	e := &Engine{
		cfg:            cfg,
		client:         client,
		risk:           riskEngine,
		strat:          strat,
		journal:        jrnl,
		mode:           mode,
		breaker:        circuit.NewCircuitBreaker("trading-loop", 5, time.Minute),
		healthInterval: scheduler.NewInterval(cfg.App.HealthInterval()),
		statusInterval: scheduler.NewInterval(cfg.App.StatusInterval()),
		ticks:          make(chan market.Tick, 256),
	}
	// Startup probes have just run; push both cadences one period out.
	e.healthInterval.Mark()
	e.statusInterval.Mark()
	// Publish an initial snapshot so the status API has something to serve
	// before the first loop iteration.
	e.updateSnapshot()
	return e
}

func (e *Engine) Mode() Mode { return e.mode }

// SetValidation stores the pre-loop validation verdict for status reporting.
func (e *Engine) SetValidation(v backtest.Validation) {
	e.snapMu.Lock()
	e.validation = &v
	e.snapMu.Unlock()
}

// Initialize connects, authenticates, seeds the risk session from the live
// balance and opens the tick stream.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.client.Connect(ctx); err != nil {
		return err
	}
	if err := e.client.Authenticate(ctx); err != nil {
		return err
	}
	balance, err := e.client.Balance(ctx)
	if err != nil {
		return fmt.Errorf("initial balance fetch: %w", err)
	}
	e.risk.InitializeSession(balance)

	if err := e.client.SubscribeTicks(ctx, e.cfg.Deriv.Symbol, e.onTick); err != nil {
		return err
	}
	logger.Infof("initialization complete, balance $%.2f", balance)
	return nil
}

// onTick runs on the client's receive loop; it must not touch loop-owned
// state. Full buffer drops the tick: the stream is dense and the window
// tolerates gaps.
func (e *Engine) onTick(tick market.Tick) {
	select {
	case e.ticks <- tick:
	default:
	}
}

// drainTicks feeds every buffered tick into the strategy window.
func (e *Engine) drainTicks() {
	for {
		select {
		case tick := <-e.ticks:
			e.strat.AddTick(tick)
			e.lastTick = &tick
		default:
			return
		}
	}
}

// waitNextTick blocks for the next streamed tick, still feeding the
// strategy, so paper settlement uses real market data.
func (e *Engine) waitNextTick(ctx context.Context, timeout time.Duration) (market.Tick, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case tick := <-e.ticks:
		e.strat.AddTick(tick)
		e.lastTick = &tick
		return tick, true
	case <-timer.C:
		return market.Tick{}, false
	case <-ctx.Done():
		return market.Tick{}, false
	}
}

// Run executes the trading loop until emergency stop, unrecoverable
// connection loss, or context cancellation. Shutdown always disconnects and
// prints the final summary.
func (e *Engine) Run(ctx context.Context) error {
	logger.Infof("starting trading loop in %s mode", e.mode)
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			e.stopReason = "shutdown requested"
			return nil
		default:
		}

		// An open breaker skips the iteration entirely until its timeout
		// elapses and it half-opens for a probe.
		if !e.breaker.Allow() {
			logger.Warnf("circuit breaker open, pausing iterations")
		} else if err := e.iterate(ctx); err != nil {
			if errors.Is(err, errStopLoop) {
				return nil
			}
			if errors.Is(err, errReconnectFailed) {
				return err
			}
			logger.Errorf("trading loop error: %v", err)
			e.breaker.RecordFailure()
		} else {
			e.breaker.RecordSuccess()
		}

		select {
		case <-ctx.Done():
			e.stopReason = "shutdown requested"
			return nil
		case <-time.After(e.cfg.App.LoopPause()):
		}
	}
}

var (
	errStopLoop        = errors.New("engine: stop requested")
	errReconnectFailed = errors.New("engine: reconnection failed")
)

func (e *Engine) iterate(ctx context.Context) error {
	e.drainTicks()

	if e.healthInterval.DueAndMark() {
		if !e.client.HealthCheck(ctx) {
			logger.Errorf("health check failed, attempting reconnection")
			if err := e.reconnect(ctx); err != nil {
				e.stopReason = "connection lost and could not be restored"
				return fmt.Errorf("%w: %v", errReconnectFailed, err)
			}
			return nil
		}
	}

	if e.risk.NeedsDailyReset() {
		e.risk.ResetDailyLimits()
		logger.Infof("daily limits re-based")
	}

	if stop, reason := e.risk.EmergencyStop(); stop {
		logger.Errorf("EMERGENCY STOP: %s", reason.Message)
		e.stopReason = fmt.Sprintf("emergency stop: %s", reason.Message)
		return errStopLoop
	}

	balance, err := e.refreshBalance(ctx)
	if err != nil {
		return err
	}

	if allowed, reason := e.risk.TradeAllowed(); allowed {
		if err := e.tryTrade(ctx, balance); err != nil {
			return err
		}
	} else {
		logger.Debugf("trading blocked: %s", reason.Message)
	}

	if e.statusInterval.DueAndMark() {
		e.emitStatus()
	}
	e.updateSnapshot()
	return nil
}

// refreshBalance pulls the broker balance into the risk engine. Paper mode
// tracks its own simulated balance after the first fill, so the broker
// number is only used until the first paper trade settles.
func (e *Engine) refreshBalance(ctx context.Context) (float64, error) {
	if e.mode == ModePaper && e.stats.TotalTrades > 0 {
		return e.risk.Status().CurrentBalance, nil
	}
	balance, err := e.client.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("balance refresh: %w", err)
	}
	e.risk.UpdateBalance(balance)
	return balance, nil
}

func (e *Engine) tryTrade(ctx context.Context, balance float64) error {
	proposalType := "DIGITEVEN"
	if e.strat.Name() == "digitdiff" {
		proposalType = "DIGITDIFF"
	}
	proposal, err := e.client.Proposal(ctx, proposalType)
	if err != nil {
		logger.Errorf("proposal fetch failed: %v", err)
		return nil
	}
	if proposal.PayoutRatio <= 0 {
		return nil
	}

	decision := e.strat.Analyze(balance, proposal.PayoutRatio)
	if decision.Skip() {
		logger.Debugf("signal skip: %s", decision.Reason)
		return nil
	}
	return e.execute(ctx, decision, proposal.PayoutRatio)
}

// reconnect tears the session down and rebuilds it with exponential backoff:
// connect, authenticate, re-subscribe. Bounded by reconnect_attempts.
func (e *Engine) reconnect(ctx context.Context) error {
	logger.Warnf("handling connection loss")
	e.client.Disconnect()

	attempts := e.cfg.Deriv.ReconnectAttempts
	for attempt := 0; attempt < attempts; attempt++ {
		delay := time.Duration(1<<attempt) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		err := e.client.Connect(ctx)
		if err == nil {
			err = e.client.Authenticate(ctx)
		}
		if err == nil {
			err = e.client.SubscribeTicks(ctx, e.cfg.Deriv.Symbol, e.onTick)
		}
		if err == nil {
			logger.Infof("connection restored")
			return nil
		}
		logger.Errorf("reconnection attempt %d/%d failed: %v", attempt+1, attempts, err)
		e.client.Disconnect()
	}
	return fmt.Errorf("failed to restore connection after %d attempts", attempts)
}

func (e *Engine) shutdown() {
	logger.Infof("initiating graceful shutdown")
	e.client.Disconnect()
	e.printFinalSummary()
	logger.Infof("shutdown complete")
}
