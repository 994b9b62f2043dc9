// Package config loads process settings from the environment and run
// settings from HCL run files.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// #region env
// Env holds the process-level settings.
type Env struct {
	DB            string `env:"LUMIN_DB"             envDefault:"lumin_folds.db"`
	LogLevel      string `env:"LUMIN_LOG_LEVEL"      envDefault:"info"`
	LogFormat     string `env:"LUMIN_LOG_FORMAT"     envDefault:"text"`
	Workers       int    `env:"LUMIN_WORKERS"        envDefault:"1"`
	PredictorAddr string `env:"LUMIN_PREDICTOR_ADDR"`
}

// LoadEnv reads Env from the environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// #endregion env
