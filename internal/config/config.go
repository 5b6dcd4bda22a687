// Package config содержит логику чтения конфигурации сервиса salonhub.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса salonhub.
type Config struct {
	RunAddress              string   `env:"RUN_ADDRESS"`
	DatabaseURI             string   `env:"DATABASE_URI"`
	MessagingGatewayAddress string   `env:"MESSAGING_GATEWAY_ADDRESS"`
	MessagingAPIKey         string   `env:"MESSAGING_API_KEY"`
	AuthSecret              string   `env:"AUTH_SECRET"`
	AdminLogin              string   `env:"ADMIN_LOGIN" envDefault:"admin"`
	AdminPasswordHash       string   `env:"ADMIN_PASSWORD_HASH"`
	Timezone                string   `env:"TIMEZONE" envDefault:"UTC"`
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.MessagingGatewayAddress
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MessagingGatewayAddress, "m", "", "messaging gateway address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing admin tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.MessagingGatewayAddress = envGatewayAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
