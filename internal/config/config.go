// Package config loads chronicle settings from defaults, an optional YAML
// file and CHRONICLE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dakeena/living-chronicle/internal/engine"
)

// Config contains all chronicle settings.
type Config struct {
	// Seed drives genesis. A restored world keeps its persisted seed.
	Seed int64 `yaml:"seed" env:"CHRONICLE_SEED"`

	// DBPath is the SQLite file holding the world.
	DBPath string `yaml:"db_path" env:"CHRONICLE_DB"`

	Genesis GenesisConfig `yaml:"genesis"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Run     RunConfig     `yaml:"run"`
}

// GenesisConfig sizes a new world.
type GenesisConfig struct {
	Factions           int `yaml:"factions" env:"CHRONICLE_FACTIONS"`
	CitizensPerFaction int `yaml:"citizens_per_faction" env:"CHRONICLE_CITIZENS_PER_FACTION"`
	Unaffiliated       int `yaml:"unaffiliated" env:"CHRONICLE_UNAFFILIATED"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"CHRONICLE_LOG_LEVEL"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port     int    `yaml:"port" env:"CHRONICLE_API_PORT"`
	AdminKey string `yaml:"admin_key" env:"CHRONICLE_ADMIN_KEY"`
	RelayKey string `yaml:"relay_key" env:"CHRONICLE_RELAY_KEY"`

	// CORSOrigins are allowed in addition to the localhost dev servers.
	CORSOrigins []string `yaml:"cors_origins" env:"CHRONICLE_CORS_ORIGINS" envSeparator:","`
}

// RunConfig configures the auto-run loop.
type RunConfig struct {
	Interval time.Duration `yaml:"interval" env:"CHRONICLE_RUN_INTERVAL"`
	Speed    float64       `yaml:"speed" env:"CHRONICLE_RUN_SPEED"`
}

// Default returns the standard configuration.
func Default() *Config {
	g := engine.DefaultGenesis()
	return &Config{
		Seed:   42,
		DBPath: "chronicle.db",
		Genesis: GenesisConfig{
			Factions:           g.Factions,
			CitizensPerFaction: g.CitizensPerFaction,
			Unaffiliated:       g.Unaffiliated,
		},
		Log: LogConfig{Level: "info"},
		API: APIConfig{Port: 8080},
		Run: RunConfig{Interval: time.Second, Speed: 1.0},
	}
}

// Load builds a config from defaults, the YAML file at path when path is
// non-empty, and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must be set"))
	}
	if c.Genesis.Factions < 0 || c.Genesis.CitizensPerFaction < 0 || c.Genesis.Unaffiliated < 0 {
		errs = append(errs, fmt.Errorf("genesis counts must be non-negative, got %+v", c.Genesis))
	}
	if c.Genesis.Factions*c.Genesis.CitizensPerFaction+c.Genesis.Unaffiliated == 0 {
		errs = append(errs, errors.New("genesis must create at least one citizen"))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api port out of range: %d", c.API.Port))
	}
	if c.Run.Interval <= 0 {
		errs = append(errs, fmt.Errorf("run interval must be positive, got %v", c.Run.Interval))
	}
	if c.Run.Speed <= 0 {
		errs = append(errs, fmt.Errorf("run speed must be positive, got %v", c.Run.Speed))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	return errors.Join(errs...)
}

// GenesisParams converts the genesis section for the kernel.
func (c *Config) GenesisParams() engine.GenesisConfig {
	return engine.GenesisConfig{
		Factions:           c.Genesis.Factions,
		CitizensPerFaction: c.Genesis.CitizensPerFaction,
		Unaffiliated:       c.Genesis.Unaffiliated,
	}
}
