// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Application
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `env:"GOOGLE_REDIRECT_URI"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	StateTokenTTL      time.Duration `env:"STATE_TOKEN_TTL" envDefault:"10m"`
	StateSweepInterval time.Duration `env:"STATE_SWEEP_INTERVAL" envDefault:"5m"`

	// Session
	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// Token encryption（base64エンコードされた32バイト鍵）
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	// Rate Limit（req/min）
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"30"`
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"GOOGLE_CLIENT_ID", cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URI", cfg.GoogleRedirectURI},
		{"JWT_SECRET", cfg.JWTSecret},
		{"TOKEN_ENCRYPTION_KEY", cfg.TokenEncryptionKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %v", cfg.ProviderTimeout)
	}
	if cfg.StateTokenTTL <= 0 {
		return nil, fmt.Errorf("STATE_TOKEN_TTL must be positive, got %v", cfg.StateTokenTTL)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %v", cfg.SessionTTL)
	}

	return cfg, nil
}

// Summary は秘匿情報を含まない設定の要約を返す。起動ログ用。
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"environment":         c.Environment,
		"server_port":         c.ServerPort,
		"google_redirect_uri": c.GoogleRedirectURI,
		"provider_timeout":    c.ProviderTimeout.String(),
		"state_token_ttl":     c.StateTokenTTL.String(),
		"session_ttl":         c.SessionTTL.String(),
	}
}
