package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
deriv:
  app_id: "1089"
  token: test-token
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "wss://ws.derivws.com/websockets/v3", cfg.Deriv.Endpoint)
	assert.Equal(t, "demo", cfg.Deriv.AccountType)
	assert.True(t, cfg.Deriv.WantsVirtual())
	assert.Equal(t, "R_50", cfg.Deriv.Symbol)
	assert.Equal(t, 5, cfg.Deriv.ConnectAttempts)

	assert.Equal(t, 0.02, cfg.Risk.MaxStakeFraction)
	assert.Equal(t, 3, cfg.Risk.LossStreakThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Risk.Cooldown())
	assert.Equal(t, 0.35, cfg.Risk.MinStake)

	assert.Equal(t, "oddeven", cfg.Strategy.Name)
	assert.Equal(t, 20, cfg.Strategy.LookbackWindow)
	assert.Equal(t, 1000, cfg.Strategy.MaxWindow)
	assert.Equal(t, 30*time.Second, cfg.Strategy.TradeCooldown())

	assert.Equal(t, 1000, cfg.Backtest.MinSamples)
	assert.Equal(t, 0.95, cfg.Backtest.ConfidenceLevel)

	assert.Equal(t, 5*time.Second, cfg.App.LoopPause())
	assert.Equal(t, 30*time.Second, cfg.App.HealthInterval())
	assert.Equal(t, time.Minute, cfg.App.StatusInterval())
}

func TestLoadExplicitValuesSurvive(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
deriv:
  app_id: "1089"
  token: test-token
  account_type: real
  symbol: 1HZ10V
risk:
  loss_streak_threshold: 5
strategy:
  name: digitdiff
  barrier: 7
`))
	require.NoError(t, err)
	assert.Equal(t, "real", cfg.Deriv.AccountType)
	assert.False(t, cfg.Deriv.WantsVirtual())
	assert.Equal(t, "1HZ10V", cfg.Deriv.Symbol)
	assert.Equal(t, 5, cfg.Risk.LossStreakThreshold)
	assert.Equal(t, "digitdiff", cfg.Strategy.Name)
	assert.Equal(t, 7, cfg.Strategy.Barrier)
	// Untouched sections still get defaults.
	assert.Equal(t, 0.10, cfg.Risk.DailyLossFraction)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DERIV_API_TOKEN", "env-token")
	t.Setenv("ACCOUNT_TYPE", "demo")
	cfg, err := Load(writeConfig(t, `
deriv:
  app_id: "1089"
  token: file-token
  account_type: real
`))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Deriv.Token)
	assert.Equal(t, "demo", cfg.Deriv.AccountType)
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing token",
			body: "deriv:\n  app_id: \"1089\"\n",
			want: "deriv.token",
		},
		{
			name: "bad account type",
			body: minimalConfig + "  account_type: staging\n",
			want: "account_type",
		},
		{
			name: "stake fraction out of range",
			body: minimalConfig + "risk:\n  max_stake_fraction: 1.5\n",
			want: "max_stake_fraction",
		},
		{
			name: "inverted balance stops",
			body: minimalConfig + "risk:\n  balance_stop_lower: 100\n  balance_stop_upper: 50\n",
			want: "balance_stop_upper",
		},
		{
			name: "unknown strategy",
			body: minimalConfig + "strategy:\n  name: momentum\n",
			want: "strategy.name",
		},
		{
			name: "bad confidence level",
			body: minimalConfig + "backtest:\n  confidence_level: 0.8\n",
			want: "confidence_level",
		},
		{
			name: "barrier out of range",
			body: minimalConfig + "strategy:\n  barrier: 12\n",
			want: "barrier",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DERIV_API_TOKEN", "")
			t.Setenv("ACCOUNT_TYPE", "")
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
