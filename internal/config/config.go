// Package config содержит логику чтения конфигурации сервиса отчётов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса отчётов Poster.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	PosterBaseURL    string `env:"POSTER_API_BASE_URL"`
	PosterToken      string `env:"POSTER_API_TOKEN"`
	PosterAuthStyle  string `env:"POSTER_AUTH_STYLE"`
	PosterTimeoutSec int    `env:"POSTER_TIMEOUT" envDefault:"20"`
	// PosterRetryMax — число повторов обязательных запросов к Poster API
	// на транспортном уровне. 0 означает один запрос без повторов.
	PosterRetryMax int `env:"POSTER_RETRY_MAX" envDefault:"0"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBaseURL := cfg.PosterBaseURL
	envToken := cfg.PosterToken
	envAuthStyle := cfg.PosterAuthStyle

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PosterBaseURL, "b", "", "Poster API base URL")
	flag.StringVar(&cfg.PosterToken, "t", "", "Poster API token")
	flag.StringVar(&cfg.PosterAuthStyle, "s", "", "Poster auth style: query_token, query_access_token or bearer")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBaseURL != "" {
		cfg.PosterBaseURL = envBaseURL
	}
	if envToken != "" {
		cfg.PosterToken = envToken
	}
	if envAuthStyle != "" {
		cfg.PosterAuthStyle = envAuthStyle
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PosterTimeoutSec <= 0 {
		cfg.PosterTimeoutSec = 20
	}
	if cfg.PosterRetryMax < 0 {
		cfg.PosterRetryMax = 0
	}

	return cfg, nil
}
