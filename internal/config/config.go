package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Live session tuning
	LiveMaxParticipants    int
	LiveSessionMaxDuration time.Duration
	LiveParticipantGrace   time.Duration
	LiveInactivityTimeout  time.Duration
	LiveHeartbeatInterval  time.Duration
	LiveSweepInterval      time.Duration

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		LiveMaxParticipants:    getEnvAsIntOrDefault("LIVE_MAX_PARTICIPANTS", 4),
		LiveSessionMaxDuration: getEnvAsDurationOrDefault("LIVE_SESSION_MAX_DURATION", 4*time.Hour),
		LiveParticipantGrace:   getEnvAsDurationOrDefault("LIVE_PARTICIPANT_GRACE", 30*time.Second),
		LiveInactivityTimeout:  getEnvAsDurationOrDefault("LIVE_INACTIVITY_TIMEOUT", 10*time.Minute),
		LiveHeartbeatInterval:  getEnvAsDurationOrDefault("LIVE_HEARTBEAT_INTERVAL", 30*time.Second),
		LiveSweepInterval:      getEnvAsDurationOrDefault("LIVE_SWEEP_INTERVAL", 5*time.Minute),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
