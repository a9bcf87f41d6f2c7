package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Completion service (AI screening)
	AI AIConfig

	// Analysis pipeline
	Pipeline PipelineConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// AIConfig holds completion service configuration
type AIConfig struct {
	Provider string // openai, anthropic
	Model    string
	APIKey   string
	BaseURL  string

	Timeout         time.Duration
	Retries         int
	RetryDelay      time.Duration
	RetryMultiplier float64
	Temperature     float64
	MaxTokens       int

	RequestsPerMinute int
	CacheTTL          time.Duration

	// 보고용 예산 (강제하지 않음)
	DailyBudget   float64
	MonthlyBudget float64
}

// PipelineConfig holds orchestrator-level settings
type PipelineConfig struct {
	StrategyConfigPath string
	StaleRunAfter      time.Duration
	Schedule           string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	provider := getEnv("AI_PROVIDER", "openai")

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		AI: AIConfig{
			Provider:          provider,
			Model:             getEnv("AI_MODEL", defaultModel(provider)),
			APIKey:            getEnv("AI_API_KEY", ""),
			BaseURL:           getEnv("AI_BASE_URL", defaultBaseURL(provider)),
			Timeout:           getEnvAsDuration("AI_API_TIMEOUT", "30s"),
			Retries:           getEnvAsInt("AI_API_RETRIES", 3),
			RetryDelay:        getEnvAsDuration("AI_API_RETRY_DELAY", "2s"),
			RetryMultiplier:   getEnvAsFloat("AI_API_RETRY_MULTIPLIER", 2.0),
			Temperature:       getEnvAsFloat("AI_TEMPERATURE", 0.5),
			MaxTokens:         getEnvAsInt("AI_MAX_TOKENS", 2000),
			RequestsPerMinute: getEnvAsInt("AI_REQUESTS_PER_MINUTE", 20),
			CacheTTL:          getEnvAsDuration("AI_CACHE_TTL", "6h"),
			DailyBudget:       getEnvAsFloat("DAILY_API_BUDGET", 10.0),
			MonthlyBudget:     getEnvAsFloat("MONTHLY_API_BUDGET", 200.0),
		},

		Pipeline: PipelineConfig{
			StrategyConfigPath: getEnv("STRATEGY_CONFIG", ""),
			StaleRunAfter:      getEnvAsDuration("STALE_RUN_AFTER", "2h"),
			Schedule:           getEnv("ANALYSIS_SCHEDULE", "0 30 18 * * 1-5"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("AI_PROVIDER must be one of: openai, anthropic")
	}

	if c.AI.Retries < 1 {
		return fmt.Errorf("AI_API_RETRIES must be >= 1")
	}
	if c.AI.RetryMultiplier < 1 {
		return fmt.Errorf("AI_API_RETRY_MULTIPLIER must be >= 1")
	}

	return nil
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "claude-3-opus-20240229"
	}
	return "gpt-4"
}

func defaultBaseURL(provider string) string {
	if provider == "anthropic" {
		return "https://api.anthropic.com"
	}
	return "https://api.openai.com/v1"
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
