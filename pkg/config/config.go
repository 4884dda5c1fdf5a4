package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Engine   EngineConfig
	History  HistoryConfig
	Cache    CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig tunes the parallel evaluator and the conflict resolver.
type EngineConfig struct {
	Workers             int
	QueueSize           int
	BatchSize           int
	TaskTimeout         time.Duration
	ConfidenceThreshold float64
}

// HistoryConfig selects and configures the resolution ledger backend.
type HistoryConfig struct {
	Backend string
	Dir     string
	File    string
}

// CacheConfig governs evaluation-result caching.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

const (
	HistoryBackendFile     = "file"
	HistoryBackendPostgres = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Engine = EngineConfig{
		Workers:             v.GetInt("ENGINE_WORKERS"),
		QueueSize:           v.GetInt("ENGINE_QUEUE_SIZE"),
		BatchSize:           v.GetInt("ENGINE_BATCH_SIZE"),
		TaskTimeout:         parseDuration(v.GetString("ENGINE_TASK_TIMEOUT"), time.Second),
		ConfidenceThreshold: v.GetFloat64("ENGINE_CONFIDENCE_THRESHOLD"),
	}

	cfg.History = HistoryConfig{
		Backend: v.GetString("HISTORY_BACKEND"),
		Dir:     v.GetString("HISTORY_DIR"),
		File:    v.GetString("HISTORY_FILE"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_EVALUATION_CACHE"),
		TTL:     parseDuration(v.GetString("EVALUATION_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "flexsched")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENGINE_WORKERS", 4)
	v.SetDefault("ENGINE_QUEUE_SIZE", 64)
	v.SetDefault("ENGINE_BATCH_SIZE", 5)
	v.SetDefault("ENGINE_TASK_TIMEOUT", "1s")
	v.SetDefault("ENGINE_CONFIDENCE_THRESHOLD", 0.7)

	v.SetDefault("HISTORY_BACKEND", HistoryBackendFile)
	v.SetDefault("HISTORY_DIR", "./data")
	v.SetDefault("HISTORY_FILE", "resolution_history.json")

	v.SetDefault("ENABLE_EVALUATION_CACHE", false)
	v.SetDefault("EVALUATION_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
