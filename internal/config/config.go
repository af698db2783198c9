// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr string `env:"NTM_ADDR" envDefault:":8080"`

	StoreDriver string `env:"NTM_STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"NTM_DATABASE_URL"`
	SQLitePath  string `env:"NTM_SQLITE_PATH" envDefault:"data/game.db"`

	AssetDir      string `env:"NTM_ASSET_DIR" envDefault:"assets"`
	StartingItem  string `env:"NTM_STARTING_ITEM" envDefault:"Pistol"`
	StartingAsset string `env:"NTM_STARTING_ITEM_ASSET" envDefault:"pistol.png"`

	LogFile  string `env:"LOG_FILE"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	InitialZombies int `env:"NTM_WAVE_INITIAL" envDefault:"15"`
	ZombieStep     int `env:"NTM_WAVE_STEP" envDefault:"5"`
	ZombieCap      int `env:"NTM_WAVE_CAP" envDefault:"45"`
	SharedHealth   int `env:"NTM_SHARED_HEALTH" envDefault:"3"`

	PasswordCost    int           `env:"NTM_PASSWORD_COST" envDefault:"10"`
	EndedSessionTTL time.Duration `env:"NTM_ENDED_SESSION_TTL" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"NTM_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("NTM_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.InitialZombies < 1 || c.ZombieStep < 0 || c.ZombieCap < c.InitialZombies {
		return fmt.Errorf("invalid wave sizes: initial=%d step=%d cap=%d", c.InitialZombies, c.ZombieStep, c.ZombieCap)
	}
	if c.SharedHealth < 1 {
		return fmt.Errorf("shared health must be positive, got %d", c.SharedHealth)
	}
	if strings.TrimSpace(c.StartingItem) == "" {
		return fmt.Errorf("starting item is required")
	}
	return nil
}

func (c Config) WaveRules() engine.WaveRules {
	return engine.WaveRules{
		InitialCount: c.InitialZombies,
		Step:         c.ZombieStep,
		Cap:          c.ZombieCap,
		SharedHealth: c.SharedHealth,
	}
}
