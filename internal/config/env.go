package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ServerEnv holds process settings for `chore serve`.
type ServerEnv struct {
	Addr            string `env:"CHORELINE_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath        string `env:"CHORELINE_BASE_PATH" envDefault:"/v0"`
	JWTSecret       string `env:"CHORELINE_JWT_SECRET"`
	AllowUserHeader bool   `env:"CHORELINE_ALLOW_USER_HEADER" envDefault:"true"`
	DevLogin        bool   `env:"CHORELINE_DEV_LOGIN" envDefault:"false"`
	LogLevel        string `env:"CHORELINE_LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"CHORELINE_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServerEnv parses ServerEnv from the process environment.
func LoadServerEnv() (ServerEnv, error) {
	var se ServerEnv
	if err := ParseEnv(&se); err != nil {
		return ServerEnv{}, err
	}
	return se, nil
}
