// Package config loads application configuration from the environment.
// A .env file is honored in development via godotenv autoload.
package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// AppConfig is the root configuration for the service.
type AppConfig struct {
	AppHost  string
	AppPort  string
	Database DatabaseConfig
	Storage  StorageConfig
	OCR      ProviderConfig
	LLM      ProviderConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// StorageConfig holds object store settings.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ProviderConfig holds settings for an external model provider.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// PipelineConfig tunes the background processing pool and analysis.
type PipelineConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Tolerance is the borderline band for range classification.
	Tolerance float64
	// MinRangeRatio is the marker range-coverage threshold below which a
	// quality warning is logged.
	MinRangeRatio float64
}

// Load reads configuration from the environment, applying defaults suited
// to local development.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "0.0.0.0"),
		AppPort: getEnv("APP_PORT", "8080"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", "postgres"),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", "healthdoc"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "health-documents"),
			Region:    getEnv("MINIO_REGION", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		OCR: ProviderConfig{
			BaseURL: getEnv("OCR_BASE_URL", "https://api.mistral.ai"),
			APIKey:  getEnv("OCR_API_KEY", ""),
			Model:   getEnv("OCR_MODEL", "mistral-ocr-latest"),
			Timeout: getEnvDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		LLM: ProviderConfig{
			BaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
			Timeout: getEnvDuration("LLM_TIMEOUT", time.Minute),
		},
		Pipeline: PipelineConfig{
			Workers:       getEnvInt("PIPELINE_WORKERS", 2),
			QueueSize:     getEnvInt("PIPELINE_QUEUE_SIZE", 64),
			JobTimeout:    getEnvDuration("PIPELINE_JOB_TIMEOUT", 10*time.Minute),
			Tolerance:     getEnvFloat("PIPELINE_TOLERANCE", 0.10),
			MinRangeRatio: getEnvFloat("PIPELINE_MIN_RANGE_RATIO", 0.5),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
