package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Queue struct {
	Concurrency    int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	EnqueueTimeout time.Duration
}

type Tokens struct {
	RefreshLookahead time.Duration
	SweepSchedule    string
	SweepRatePerSec  int
}

type Config struct {
	FacebookAppID         string
	FacebookAppSecret     string
	InstagramClientID     string
	InstagramClientSecret string
	TwitterClientID       string
	TwitterClientSecret   string
	TiktokClientKey       string
	TiktokClientSecret    string
	GoogleClientID        string
	GoogleClientSecret    string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	Queue                 Queue
	Tokens                Tokens
	SecretKey             string
	CookieName            string
	LogLevel              string
	LogFormat             string
}

func LoadConfig() *Config {
	return &Config{
		FacebookAppID:         getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:     getEnv("FACEBOOK_APP_SECRET", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "127.0.0.1:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Queue: Queue{
			Concurrency:    getEnvInt("QUEUE_CONCURRENCY", 10),
			MaxAttempts:    getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("QUEUE_RETRY_BASE_DELAY", 2*time.Second),
			EnqueueTimeout: getEnvDuration("QUEUE_ENQUEUE_TIMEOUT", 5*time.Second),
		},
		Tokens: Tokens{
			RefreshLookahead: getEnvDuration("TOKEN_REFRESH_LOOKAHEAD", 24*time.Hour),
			SweepSchedule:    getEnv("TOKEN_SWEEP_SCHEDULE", "@daily"),
			SweepRatePerSec:  getEnvInt("TOKEN_SWEEP_RATE_PER_SEC", 2),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
