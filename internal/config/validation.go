package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Deriv.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DerivConfig) validate() error {
	if strings.TrimSpace(d.AppID) == "" {
		return fmt.Errorf("deriv.app_id is required (or DERIV_APP_ID)")
	}
	if strings.TrimSpace(d.Token) == "" {
		return fmt.Errorf("deriv.token is required (or DERIV_API_TOKEN)")
	}
	switch d.AccountType {
	case "demo", "real":
	default:
		return fmt.Errorf("deriv.account_type must be \"demo\" or \"real\", got %q", d.AccountType)
	}
	if strings.TrimSpace(d.Symbol) == "" {
		return fmt.Errorf("deriv.symbol is required")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxStakeFraction <= 0 || r.MaxStakeFraction > 1 {
		return fmt.Errorf("risk.max_stake_fraction must be in (0,1], got %v", r.MaxStakeFraction)
	}
	if r.DailyLossFraction <= 0 || r.DailyLossFraction > 1 {
		return fmt.Errorf("risk.daily_loss_fraction must be in (0,1], got %v", r.DailyLossFraction)
	}
	if r.DrawdownFraction <= 0 || r.DrawdownFraction > 1 {
		return fmt.Errorf("risk.drawdown_fraction must be in (0,1], got %v", r.DrawdownFraction)
	}
	if r.BalanceStopUpper <= r.BalanceStopLower {
		return fmt.Errorf("risk.balance_stop_upper (%v) must exceed balance_stop_lower (%v)",
			r.BalanceStopUpper, r.BalanceStopLower)
	}
	if r.LossStreakThreshold < 1 {
		return fmt.Errorf("risk.loss_streak_threshold must be >= 1, got %d", r.LossStreakThreshold)
	}
	if r.MinStake <= 0 {
		return fmt.Errorf("risk.min_stake must be positive, got %v", r.MinStake)
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	switch s.Name {
	case "oddeven", "digitdiff":
	default:
		return fmt.Errorf("strategy.name must be \"oddeven\" or \"digitdiff\", got %q", s.Name)
	}
	if s.LookbackWindow < 5 {
		return fmt.Errorf("strategy.lookback_window must be >= 5, got %d", s.LookbackWindow)
	}
	if s.MaxWindow < s.LookbackWindow {
		return fmt.Errorf("strategy.max_window (%d) must be >= lookback_window (%d)",
			s.MaxWindow, s.LookbackWindow)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("strategy.min_confidence must be in [0,1], got %v", s.MinConfidence)
	}
	if s.Barrier < 0 || s.Barrier > 9 {
		return fmt.Errorf("strategy.barrier must be a digit 0-9, got %d", s.Barrier)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.MinSamples < 10 {
		return fmt.Errorf("backtest.min_samples must be >= 10, got %d", b.MinSamples)
	}
	switch b.ConfidenceLevel {
	case 0.90, 0.95, 0.99:
	default:
		return fmt.Errorf("backtest.confidence_level must be 0.90, 0.95 or 0.99, got %v", b.ConfidenceLevel)
	}
	if b.PayoutRatio <= 1 {
		return fmt.Errorf("backtest.payout_ratio must exceed 1, got %v", b.PayoutRatio)
	}
	if b.StartingBalance <= 0 {
		return fmt.Errorf("backtest.starting_balance must be positive, got %v", b.StartingBalance)
	}
	return nil
}
