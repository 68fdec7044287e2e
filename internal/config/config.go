package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"coinbot/internal/economy"
)

type EconomyConfig struct {
	AccrualEvery       time.Duration
	AccrualRate        float64
	DailyCooldown      time.Duration
	WorkCooldown       time.Duration
	TradeTTL           time.Duration
	DailyRewardCoins   float64
	RichThresholdCoins float64
	Seed               int64
}

type BotConfig struct {
	DiscordToken   string
	GuildID        string
	RichRoleID     string
	APIAddr        string
	APIToken       string
	APIRatePerSec  float64
	APIRateBurst   int
	DatabaseURL    string
	JournalBuffer  int
	Debug          bool
	Economy        EconomyConfig
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadBotFromEnv() (BotConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("COINBOT_API_ADDR", "")
	}

	cfg := BotConfig{
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		GuildID:        strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID")),
		RichRoleID:     strings.TrimSpace(os.Getenv("COINBOT_RICH_ROLE_ID")),
		APIAddr:        addr,
		APIToken:       strings.TrimSpace(os.Getenv("COINBOT_API_TOKEN")),
		APIRatePerSec:  envFloatDefault("COINBOT_API_RATE", 5),
		APIRateBurst:   envIntDefault("COINBOT_API_BURST", 10),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JournalBuffer:  envIntDefault("COINBOT_JOURNAL_BUFFER", 1024),
		Debug:          envBoolDefault("COINBOT_DEBUG", false),
		Economy: EconomyConfig{
			AccrualEvery:       envDurationDefault("COINBOT_ACCRUAL_EVERY", economy.DefaultAccrualEvery),
			AccrualRate:        envFloatDefault("COINBOT_ACCRUAL_RATE", economy.DefaultAccrualRate),
			DailyCooldown:      envDurationDefault("COINBOT_DAILY_COOLDOWN", economy.DefaultDailyCooldown),
			WorkCooldown:       envDurationDefault("COINBOT_WORK_COOLDOWN", economy.DefaultWorkCooldown),
			TradeTTL:           envDurationDefault("COINBOT_TRADE_TTL", 0),
			DailyRewardCoins:   envFloatDefault("COINBOT_DAILY_REWARD", 100),
			RichThresholdCoins: envFloatDefault("COINBOT_RICH_THRESHOLD", 30_000),
			Seed:               envInt64Default("COINBOT_SEED", 0),
		},
	}
	if cfg.DiscordToken == "" && cfg.APIAddr == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN or COINBOT_API_ADDR is required")
	}
	if cfg.Economy.AccrualRate < 0 || cfg.Economy.AccrualRate > 1 {
		return cfg, fmt.Errorf("COINBOT_ACCRUAL_RATE must be within [0, 1]")
	}
	if cfg.APIRatePerSec <= 0 || cfg.APIRateBurst <= 0 {
		return cfg, fmt.Errorf("COINBOT_API_RATE and COINBOT_API_BURST must be > 0")
	}
	return cfg, nil
}

// EngineOptions maps the economy settings onto engine options. Platform
// hooks (clock, journal, sink, logger) are left for the caller.
func (c EconomyConfig) EngineOptions() economy.Options {
	return economy.Options{
		Seed:                c.Seed,
		DailyRewardMicros:   economy.CoinsToMicros(c.DailyRewardCoins),
		RichThresholdMicros: economy.CoinsToMicros(c.RichThresholdCoins),
		DailyCooldown:       c.DailyCooldown,
		WorkCooldown:        c.WorkCooldown,
		TradeTTL:            c.TradeTTL,
	}
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("COIN_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
