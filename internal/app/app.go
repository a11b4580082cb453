package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"parity/internal/backtest"
	"parity/internal/config"
	"parity/internal/deriv"
	"parity/internal/engine"
	"parity/internal/journal"
	"parity/internal/logger"
	"parity/internal/risk"
	"parity/internal/strategy"
	livehttp "parity/internal/transport/http/live"
)

// App wires config into components and orchestrates the two phases:
// validation (always) and the trading loop (full mode only).
type App struct {
	cfg        *config.Config
	client     *deriv.Client
	riskEngine *risk.Engine
	strat      strategy.Strategy
	backtester *backtest.Engine
	journal    *journal.Journal
}

// New builds the application object without starting anything.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	limits := riskLimits(cfg.Risk)
	strat, err := strategy.New(cfg.Strategy, cfg.Risk.MinStake)
	if err != nil {
		return nil, err
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
	}

	return &App{
		cfg:        cfg,
		client:     deriv.NewClient(cfg.Deriv),
		riskEngine: risk.NewEngine(limits),
		strat:      strat,
		backtester: backtest.NewEngine(cfg.Backtest, limits, cfg.Deriv.Symbol),
		journal:    jrnl,
	}, nil
}

func riskLimits(cfg config.RiskConfig) risk.Limits {
	return risk.Limits{
		MaxStakeFraction:    cfg.MaxStakeFraction,
		LowBalanceCap:       cfg.LowBalanceCap,
		DailyLossFraction:   cfg.DailyLossFraction,
		DrawdownFraction:    cfg.DrawdownFraction,
		LossStreakThreshold: cfg.LossStreakThreshold,
		Cooldown:            cfg.Cooldown(),
		BalanceFloor:        cfg.BalanceFloor,
		BalanceStopLower:    cfg.BalanceStopLower,
		BalanceStopUpper:    cfg.BalanceStopUpper,
		MinStake:            cfg.MinStake,
	}
}

// Validate runs the statistical validation phase: backtest the strategy over
// synthetic ticks, print the verdict, and write the equity report.
func (a *App) Validate() (bool, backtest.Validation) {
	logger.Infof("starting validation phase, backtesting for edge detection")

	// Validation runs on a throwaway strategy instance: the synthetic ticks
	// must not leak into the window the live session starts from.
	strat, err := strategy.New(a.cfg.Strategy, a.cfg.Risk.MinStake)
	if err != nil {
		logger.Errorf("validation strategy build failed: %v", err)
		return false, backtest.Validation{Recommendation: backtest.RecommendPaperOnly}
	}
	hasEdge, validation := a.backtester.ValidateEdge(strat)
	logger.InfoBlock(validation.Summary())

	if a.cfg.Backtest.ReportPath != "" {
		if err := backtest.WriteReport(validation.Result, a.cfg.Backtest.ReportPath); err != nil {
			logger.Errorf("equity report failed: %v", err)
		}
	}

	if hasEdge {
		logger.Infof("validation passed, live demo trading authorized")
	} else {
		logger.Warnf("validation failed, remaining in paper mode for safety")
	}
	return hasEdge, validation
}

// RunTrading starts the trading loop and the status HTTP server, and blocks
// until both stop. The mode has already been resolved by the caller from the
// validation verdict.
func (a *App) RunTrading(ctx context.Context, mode engine.Mode, validation backtest.Validation) error {
	eng := engine.New(a.cfg, a.client, a.riskEngine, a.strat, a.journal, mode)
	eng.SetValidation(validation)

	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	// The loop ending for any reason (emergency stop included) must also
	// bring the status server down, not just group-level errors.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	if a.cfg.App.HTTPAddr != "" {
		srv, err := livehttp.NewServer(livehttp.ServerConfig{Addr: a.cfg.App.HTTPAddr, Engine: eng})
		if err != nil {
			return err
		}
		logger.Infof("status server listening on %s", srv.Addr())
		group.Go(func() error {
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer cancel()
		return eng.Run(ctx)
	})

	err := group.Wait()
	if closeErr := a.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.journal.Close()
}
