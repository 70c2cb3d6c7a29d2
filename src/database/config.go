package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`  // Expected to hold values like "debug", "info", "warn", "error"
	LogFormat      string `envconfig:"LOG_FORMAT" default:"text"` // Expected to hold values like "json" or "text"
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseURL    string `envconfig:"DATABASE_URL" default:"orders.db"`
	GormLogLevel   int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
	MaxOpenConns   int    `envconfig:"DB_MAX_OPEN_CONNS" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
