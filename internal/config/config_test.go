package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbot/internal/economy"
)

func TestLoadBotFromEnvDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("PORT", "")
	t.Setenv("COINBOT_API_ADDR", "")

	cfg, err := LoadBotFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.DiscordToken)
	assert.Empty(t, cfg.APIAddr)
	assert.Equal(t, 300*time.Second, cfg.Economy.AccrualEvery)
	assert.Equal(t, 0.05, cfg.Economy.AccrualRate)
	assert.Equal(t, 24*time.Hour, cfg.Economy.DailyCooldown)
	assert.Equal(t, 30*time.Minute, cfg.Economy.WorkCooldown)
	assert.Zero(t, cfg.Economy.TradeTTL)

	opts := cfg.Economy.EngineOptions()
	assert.Equal(t, economy.DefaultRichThresholdMicros, opts.RichThresholdMicros)
	assert.Equal(t, economy.DefaultDailyRewardMicros, opts.DailyRewardMicros)
}

func TestLoadBotFromEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("PORT", "9000")
	t.Setenv("COINBOT_ACCRUAL_EVERY", "10s")
	t.Setenv("COINBOT_TRADE_TTL", "1h")
	t.Setenv("COINBOT_ACCRUAL_RATE", "not-a-number")
	t.Setenv("COINBOT_DEBUG", "true")

	cfg, err := LoadBotFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.APIAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 10*time.Second, cfg.Economy.AccrualEvery)
	assert.Equal(t, time.Hour, cfg.Economy.TradeTTL)
	assert.Equal(t, economy.DefaultAccrualRate, cfg.Economy.AccrualRate)
}

func TestLoadBotFromEnvRequiresASurface(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("PORT", "")
	t.Setenv("COINBOT_API_ADDR", "")
	_, err := LoadBotFromEnv()
	require.Error(t, err)
}

func TestLoadBotFromEnvRejectsRate(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("COINBOT_ACCRUAL_RATE", "1.5")
	_, err := LoadBotFromEnv()
	require.Error(t, err)
}
