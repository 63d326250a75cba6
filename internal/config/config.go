// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Data     DataConfig
}

type ServerConfig struct {
	Env      string `validate:"oneof=development staging production test"`
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Port     int    `validate:"min=1,max=65535"`
}

// DatabaseConfig describes PostgreSQL. An empty URL means consultations are kept in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int `validate:"min=1,max=500"`
	ConnectAttempts int `validate:"min=1,max=100"`
	MigrateOnStart  bool
}

// RedisConfig describes the lock backend. An empty Addr means in-process locks.
type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int           `validate:"min=0,max=15"`
	LockTTL  time.Duration `validate:"min=1s"`
}

type DataConfig struct {
	KnowledgeBasePath   string
	RecommendationsPath string
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			Port:     getEnvAsInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			ConnectAttempts: getEnvAsInt("DB_CONNECT_ATTEMPTS", 10),
			MigrateOnStart:  getEnvAsBool("MIGRATE_ON_START", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("LOCK_TTL", 10*time.Second),
		},
		Data: DataConfig{
			KnowledgeBasePath:   getEnv("KNOWLEDGE_BASE_PATH", "knowledge_base/decision_graph.json"),
			RecommendationsPath: getEnv("RECOMMENDATIONS_PATH", ""),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
