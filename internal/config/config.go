package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Credential
	TokenSigningKey string

	// Membership（外部会員システム）
	MembershipURL            string
	MembershipConsumerKey    string
	MembershipConsumerSecret string
	MembershipTimeout        time.Duration
	MembershipPageSize       int

	// Cookie vault
	ReplayDomain string

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Cleanup
	SessionRetentionDays int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// TOKEN_SIGNING_KEYの欠落は起動時の致命的エラーであり、リクエスト単位では扱わない。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TokenSigningKey = os.Getenv("TOKEN_SIGNING_KEY")
	if cfg.TokenSigningKey == "" {
		missing = append(missing, "TOKEN_SIGNING_KEY")
	}

	cfg.MembershipURL = os.Getenv("MEMBERSHIP_URL")
	if cfg.MembershipURL == "" {
		missing = append(missing, "MEMBERSHIP_URL")
	}

	cfg.MembershipConsumerKey = os.Getenv("MEMBERSHIP_CONSUMER_KEY")
	if cfg.MembershipConsumerKey == "" {
		missing = append(missing, "MEMBERSHIP_CONSUMER_KEY")
	}

	cfg.MembershipConsumerSecret = os.Getenv("MEMBERSHIP_CONSUMER_SECRET")
	if cfg.MembershipConsumerSecret == "" {
		missing = append(missing, "MEMBERSHIP_CONSUMER_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MembershipTimeout = getEnvDuration("MEMBERSHIP_TIMEOUT", 15*time.Second)
	cfg.MembershipPageSize = getEnvInt("MEMBERSHIP_PAGE_SIZE", 100)
	cfg.ReplayDomain = getEnvString("REPLAY_DOMAIN", "gale.udemy.com")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
