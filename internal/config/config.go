package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the server reads at startup. Values come from
// the environment (optionally seeded from a .env file) and fall back to the
// defaults the product shipped with.
type Config struct {
	ListenAddr string
	BaseURL    string

	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string

	JWTSecret string
	TokenTTL  time.Duration

	// SessionCheckInterval bounds how often an in-flight token re-validates
	// its device session against the store.
	SessionCheckInterval time.Duration

	OTPTTL         time.Duration
	ResetTokenTTL  time.Duration
	ResendCooldown time.Duration

	LoginMaxAttempts int
	LoginLockout     time.Duration

	SMTPAddr     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		BaseURL:              getEnv("BASE_URL", "http://localhost:8080"),
		MongoURI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:        getEnv("MONGO_DATABASE", "helioshop"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		TokenTTL:             getDuration("TOKEN_TTL", 7*24*time.Hour),
		SessionCheckInterval: getDuration("SESSION_CHECK_INTERVAL", 15*time.Second),
		OTPTTL:               getDuration("OTP_TTL", 10*time.Minute),
		ResetTokenTTL:        getDuration("RESET_TOKEN_TTL", time.Hour),
		ResendCooldown:       getDuration("RESEND_COOLDOWN", 60*time.Second),
		LoginMaxAttempts:     getInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockout:         getDuration("LOGIN_LOCKOUT", 15*time.Minute),
		SMTPAddr:             os.Getenv("SMTP_ADDR"),
		SMTPUser:             os.Getenv("SMTP_USER"),
		SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:             getEnv("SMTP_FROM", os.Getenv("SMTP_USER")),
		SMTPTimeout:          getDuration("SMTP_TIMEOUT", 10*time.Second),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.LoginMaxAttempts < 1 {
		return nil, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.SessionCheckInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CHECK_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
