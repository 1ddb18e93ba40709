package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	AuthMock   = "mock"
	AuthTwitch = "twitch"
)

type APIConfig struct {
	Addr       string `env:"SST_API_ADDR" envDefault:":8080"`
	DataDir    string `env:"SST_DATA_DIR"`
	Store      string `env:"SST_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"SST_SQLITE_PATH"`
	// DatabaseURL is only read when Store is postgres.
	DatabaseURL string `env:"DATABASE_URL"`

	AuthProvider        string `env:"SST_AUTH_PROVIDER" envDefault:"mock"`
	TwitchClientID      string `env:"TWITCH_CLIENT_ID"`
	TwitchInitialPoints int64  `env:"SST_TWITCH_INITIAL_POINTS" envDefault:"100"`
	MockLogin           string `env:"SST_MOCK_LOGIN" envDefault:"streamer_fan"`
	MockPoints          int64  `env:"SST_MOCK_POINTS" envDefault:"100"`

	MarketTickEvery time.Duration `env:"SST_MARKET_TICK_EVERY" envDefault:"5s"`
	AutosaveEvery   time.Duration `env:"SST_AUTOSAVE_EVERY" envDefault:"10s"`
	Seed            int64         `env:"SST_SEED" envDefault:"0"`

	LogLevel  string `env:"SST_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"SST_LOG_PRETTY" envDefault:"false"`
}

type CLIConfig struct {
	APIBaseURL string `env:"SST_API_BASE_URL" envDefault:"http://localhost:8080"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".streamerstock")
	}
	if strings.TrimSpace(cfg.SQLitePath) == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "game.db")
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	switch cfg.Store {
	case StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required when SST_STORE=postgres")
		}
	default:
		return cfg, fmt.Errorf("unknown SST_STORE %q", cfg.Store)
	}
	switch cfg.AuthProvider {
	case AuthMock:
	case AuthTwitch:
		if strings.TrimSpace(cfg.TwitchClientID) == "" {
			return cfg, fmt.Errorf("TWITCH_CLIENT_ID is required when SST_AUTH_PROVIDER=twitch")
		}
	default:
		return cfg, fmt.Errorf("unknown SST_AUTH_PROVIDER %q", cfg.AuthProvider)
	}
	if cfg.MarketTickEvery <= 0 || cfg.AutosaveEvery <= 0 {
		return cfg, fmt.Errorf("tick intervals must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	cfg := CLIConfig{APIBaseURL: "http://localhost:8080"}
	_ = env.Parse(&cfg)
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}
