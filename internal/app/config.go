package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is read from LITTLESB_* environment variables. 1438 is the port the
// original client generation shipped with.
type Config struct {
	Addr            string `env:"LITTLESB_ADDR" envDefault:":1438"`
	LogFile         string `env:"LITTLESB_LOG_FILE" envDefault:"little-sb.log"`
	TickRate        int    `env:"LITTLESB_TICK_RATE" envDefault:"60"`
	CatchupMaxTicks int    `env:"LITTLESB_CATCHUP_MAX_TICKS" envDefault:"4"`
	Seed            int64  `env:"LITTLESB_SEED"`
	Debug           bool   `env:"LITTLESB_DEBUG"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.TickRate <= 0 {
		return Config{}, fmt.Errorf("LITTLESB_TICK_RATE must be positive, got %d", cfg.TickRate)
	}
	return cfg, nil
}
