package config

import "strings"

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultLoopPauseSec      = 5
	defaultHealthIntervalSec = 30
	defaultStatusIntervalSec = 60

	defaultDerivEndpoint   = "wss://ws.derivws.com/websockets/v3"
	defaultDerivAccount    = "demo"
	defaultDerivSymbol     = "R_50"
	defaultDerivCurrency   = "USD"
	defaultRequestTimeout  = 10
	defaultConnectAttempts = 5
	defaultReconnAttempts  = 5
	defaultPingInterval    = 30
	defaultSettleTimeout   = 30

	defaultMaxStakeFraction = 0.02
	defaultLowBalanceCap    = 0.20
	defaultDailyLossFrac    = 0.10
	defaultDrawdownFrac     = 0.15
	defaultLossStreak       = 3
	defaultCooldownMinutes  = 10
	defaultBalanceFloor     = 5.0
	defaultBalanceStopLower = 5.0
	defaultBalanceStopUpper = 10000.0
	defaultMinStake         = 0.35

	defaultStrategyName      = "oddeven"
	defaultLookbackWindow    = 20
	defaultMaxWindow         = 1000
	defaultMinConfidence     = 0.55
	defaultBiasThreshold     = 0.15
	defaultVolThreshold      = 0.02
	defaultTradeCooldownSec  = 30
	defaultDigitDiffBarrier  = 3
	defaultBacktestSamples   = 1000
	defaultConfidenceLevel   = 0.95
	defaultMinEdgeThreshold  = 0.01
	defaultBacktestPayout    = 1.9
	defaultBacktestBalance   = 10.0
	defaultJournalPath       = "data/parity-trades.db"
	defaultBacktestReportPath = "data/reports/equity.html"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Deriv.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		intFieldDefault("app.loop_pause_seconds", &a.LoopPauseSeconds, defaultLoopPauseSec),
		intFieldDefault("app.health_interval_seconds", &a.HealthIntervalSeconds, defaultHealthIntervalSec),
		intFieldDefault("app.status_interval_seconds", &a.StatusIntervalSeconds, defaultStatusIntervalSec),
	)
}

func (d *DerivConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("deriv.endpoint", &d.Endpoint, defaultDerivEndpoint),
		stringFieldDefault("deriv.account_type", &d.AccountType, defaultDerivAccount),
		stringFieldDefault("deriv.symbol", &d.Symbol, defaultDerivSymbol),
		stringFieldDefault("deriv.currency", &d.Currency, defaultDerivCurrency),
		intFieldDefault("deriv.request_timeout_seconds", &d.RequestTimeoutSeconds, defaultRequestTimeout),
		intFieldDefault("deriv.connect_attempts", &d.ConnectAttempts, defaultConnectAttempts),
		intFieldDefault("deriv.reconnect_attempts", &d.ReconnectAttempts, defaultReconnAttempts),
		intFieldDefault("deriv.ping_interval_seconds", &d.PingIntervalSeconds, defaultPingInterval),
		intFieldDefault("deriv.settle_timeout_seconds", &d.SettleTimeoutSeconds, defaultSettleTimeout),
	)
	d.AccountType = strings.ToLower(strings.TrimSpace(d.AccountType))
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_stake_fraction", &r.MaxStakeFraction, defaultMaxStakeFraction),
		floatFieldDefault("risk.low_balance_cap", &r.LowBalanceCap, defaultLowBalanceCap),
		floatFieldDefault("risk.daily_loss_fraction", &r.DailyLossFraction, defaultDailyLossFrac),
		floatFieldDefault("risk.drawdown_fraction", &r.DrawdownFraction, defaultDrawdownFrac),
		intFieldDefault("risk.loss_streak_threshold", &r.LossStreakThreshold, defaultLossStreak),
		intFieldDefault("risk.cooldown_minutes", &r.CooldownMinutes, defaultCooldownMinutes),
		floatFieldDefault("risk.balance_floor", &r.BalanceFloor, defaultBalanceFloor),
		floatFieldDefault("risk.balance_stop_lower", &r.BalanceStopLower, defaultBalanceStopLower),
		floatFieldDefault("risk.balance_stop_upper", &r.BalanceStopUpper, defaultBalanceStopUpper),
		floatFieldDefault("risk.min_stake", &r.MinStake, defaultMinStake),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.name", &s.Name, defaultStrategyName),
		intFieldDefault("strategy.lookback_window", &s.LookbackWindow, defaultLookbackWindow),
		intFieldDefault("strategy.max_window", &s.MaxWindow, defaultMaxWindow),
		floatFieldDefault("strategy.min_confidence", &s.MinConfidence, defaultMinConfidence),
		floatFieldDefault("strategy.frequency_bias_threshold", &s.FrequencyBiasThreshold, defaultBiasThreshold),
		floatFieldDefault("strategy.volatility_threshold", &s.VolatilityThreshold, defaultVolThreshold),
		intFieldDefault("strategy.trade_cooldown_seconds", &s.TradeCooldownSeconds, defaultTradeCooldownSec),
		intFieldDefault("strategy.barrier", &s.Barrier, defaultDigitDiffBarrier),
	)
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("backtest.min_samples", &b.MinSamples, defaultBacktestSamples),
		floatFieldDefault("backtest.confidence_level", &b.ConfidenceLevel, defaultConfidenceLevel),
		floatFieldDefault("backtest.min_edge_threshold", &b.MinEdgeThreshold, defaultMinEdgeThreshold),
		floatFieldDefault("backtest.payout_ratio", &b.PayoutRatio, defaultBacktestPayout),
		floatFieldDefault("backtest.starting_balance", &b.StartingBalance, defaultBacktestBalance),
		stringFieldDefault("backtest.report_path", &b.ReportPath, defaultBacktestReportPath),
	)
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
