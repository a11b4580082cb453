package config

import (
	"strings"
	"time"
)

// Config is the whole application configuration, loaded once at startup and
// threaded explicitly into every component that needs a slice of it.
type Config struct {
	App      AppConfig      `toml:"app"`
	Deriv    DerivConfig    `toml:"deriv"`
	Risk     RiskConfig     `toml:"risk"`
	Strategy StrategyConfig `toml:"strategy"`
	Backtest BacktestConfig `toml:"backtest"`
	Journal  JournalConfig  `toml:"journal"`
}

type AppConfig struct {
	Env                   string `toml:"env"`
	LogLevel              string `toml:"log_level"`
	HTTPAddr              string `toml:"http_addr"`
	LogPath               string `toml:"log_path"`
	LoopPauseSeconds      int    `toml:"loop_pause_seconds"`
	HealthIntervalSeconds int    `toml:"health_interval_seconds"`
	StatusIntervalSeconds int    `toml:"status_interval_seconds"`
}

func (a AppConfig) LoopPause() time.Duration {
	return time.Duration(a.LoopPauseSeconds) * time.Second
}

func (a AppConfig) HealthInterval() time.Duration {
	return time.Duration(a.HealthIntervalSeconds) * time.Second
}

func (a AppConfig) StatusInterval() time.Duration {
	return time.Duration(a.StatusIntervalSeconds) * time.Second
}

// DerivConfig describes the broker session: endpoint identity, credentials
// and the account class the session is required to run against.
type DerivConfig struct {
	Endpoint              string `toml:"endpoint"`
	AppID                 string `toml:"app_id"`
	Token                 string `toml:"token"`
	AccountType           string `toml:"account_type"` // "demo" | "real"
	Symbol                string `toml:"symbol"`
	Currency              string `toml:"currency"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	ConnectAttempts       int    `toml:"connect_attempts"`
	ReconnectAttempts     int    `toml:"reconnect_attempts"`
	PingIntervalSeconds   int    `toml:"ping_interval_seconds"`
	SettleTimeoutSeconds  int    `toml:"settle_timeout_seconds"`
}

func (d DerivConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSeconds) * time.Second
}

func (d DerivConfig) PingInterval() time.Duration {
	return time.Duration(d.PingIntervalSeconds) * time.Second
}

func (d DerivConfig) SettleTimeout() time.Duration {
	return time.Duration(d.SettleTimeoutSeconds) * time.Second
}

func (d DerivConfig) WantsVirtual() bool {
	return strings.ToLower(strings.TrimSpace(d.AccountType)) != "real"
}

// RiskConfig mirrors risk.Limits; immutable for a session.
type RiskConfig struct {
	MaxStakeFraction    float64 `toml:"max_stake_fraction"`
	LowBalanceCap       float64 `toml:"low_balance_cap"`
	DailyLossFraction   float64 `toml:"daily_loss_fraction"`
	DrawdownFraction    float64 `toml:"drawdown_fraction"`
	LossStreakThreshold int     `toml:"loss_streak_threshold"`
	CooldownMinutes     int     `toml:"cooldown_minutes"`
	BalanceFloor        float64 `toml:"balance_floor"`
	BalanceStopLower    float64 `toml:"balance_stop_lower"`
	BalanceStopUpper    float64 `toml:"balance_stop_upper"`
	MinStake            float64 `toml:"min_stake"`
}

func (r RiskConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

type StrategyConfig struct {
	Name                   string  `toml:"name"` // "oddeven" | "digitdiff"
	LookbackWindow         int     `toml:"lookback_window"`
	MaxWindow              int     `toml:"max_window"`
	MinConfidence          float64 `toml:"min_confidence"`
	FrequencyBiasThreshold float64 `toml:"frequency_bias_threshold"`
	VolatilityThreshold    float64 `toml:"volatility_threshold"`
	TradeCooldownSeconds   int     `toml:"trade_cooldown_seconds"`
	Barrier                int     `toml:"barrier"` // digit-differs barrier digit
}

func (s StrategyConfig) TradeCooldown() time.Duration {
	return time.Duration(s.TradeCooldownSeconds) * time.Second
}

type BacktestConfig struct {
	MinSamples       int     `toml:"min_samples"`
	ConfidenceLevel  float64 `toml:"confidence_level"`
	MinEdgeThreshold float64 `toml:"min_edge_threshold"`
	PayoutRatio      float64 `toml:"payout_ratio"`
	StartingBalance  float64 `toml:"starting_balance"`
	ReportPath       string  `toml:"report_path"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet tracks config paths the file set explicitly, so applyDefaults does
// not clobber intentional zero values.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	if k == nil {
		return
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if k == nil {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
