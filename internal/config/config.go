// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	ModelDir string // Directory holding predictor artifacts (*.model)
	Port     int
	DevMode  bool
	LogLevel string
	LogPretty bool

	Fairness  FairnessConfig
	Health    HealthConfig
	Swap      SwapConfig
	Insurance InsuranceConfig

	PaymentPerPackage float64

	JWTSecret     string
	JWTExpireDays int

	RedisAddr string // empty = in-memory cache backend

	Weather  WeatherConfig
	Push     PushConfig
	Export   ExportConfig
	Schedule ScheduleConfig
}

// FairnessConfig holds the optimizer's capacity and equity bands
type FairnessConfig struct {
	MaxPackagesPerDriver int
	MinPackagesPerDriver int
	VarianceThreshold    float64 // equity tolerance in difficulty units
	TimeoutSeconds       int     // solver wall-clock budget
}

// HealthConfig holds risk thresholds and the monitor interval
type HealthConfig struct {
	RiskThresholdRed    int
	RiskThresholdYellow int
	MonitorIntervalSecs int
}

// SwapConfig holds marketplace guard rails
type SwapConfig struct {
	MaxPerDay                  int
	CooldownMinutes            int
	NotificationTimeoutMinutes int
}

// InsuranceConfig holds z-score thresholds and the payout unit
type InsuranceConfig struct {
	ZScoreModerateThreshold float64
	ZScoreSevereThreshold   float64
	BasePenalty             float64
}

// WeatherConfig holds the weather oracle settings
type WeatherConfig struct {
	APIKey string
	APIURL string
	City   string
}

// PushConfig holds the push dispatcher settings
type PushConfig struct {
	Endpoint string
	APIKey   string
}

// ExportConfig holds the nightly learning export destination.
// Bucket empty = export disabled.
type ExportConfig struct {
	S3Bucket    string
	S3Endpoint  string // custom endpoint for S3-compatible stores (R2, minio)
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// ScheduleConfig holds cron expressions for the scheduled jobs.
// The health monitor runs on an interval (HealthConfig), not a cron spec.
type ScheduleConfig struct {
	DailyAssignment string
	ForecastRefresh string
	LearningExport  string
	NightlyCleanup  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DISPATCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	modelDir := getEnv("DISPATCH_MODEL_DIR", "./models")
	absModelDir, err := filepath.Abs(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model directory path: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		ModelDir:  absModelDir,
		Port:      getEnvAsInt("PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		Fairness: FairnessConfig{
			MaxPackagesPerDriver: getEnvAsInt("FAIRNESS_MAX_PACKAGES_PER_DRIVER", 11),
			MinPackagesPerDriver: getEnvAsInt("FAIRNESS_MIN_PACKAGES_PER_DRIVER", 10),
			VarianceThreshold:    getEnvAsFloat("FAIRNESS_VARIANCE_THRESHOLD", 10.0),
			TimeoutSeconds:       getEnvAsInt("FAIRNESS_TIMEOUT_SECONDS", 300),
		},
		Health: HealthConfig{
			RiskThresholdRed:    getEnvAsInt("HEALTH_RISK_THRESHOLD_RED", 75),
			RiskThresholdYellow: getEnvAsInt("HEALTH_RISK_THRESHOLD_YELLOW", 41),
			MonitorIntervalSecs: getEnvAsInt("HEALTH_MONITOR_INTERVAL_SECONDS", 60),
		},
		Swap: SwapConfig{
			MaxPerDay:                  getEnvAsInt("SWAP_MAX_PER_DAY", 2),
			CooldownMinutes:            getEnvAsInt("SWAP_COOLDOWN_MINUTES", 60),
			NotificationTimeoutMinutes: getEnvAsInt("SWAP_NOTIFICATION_TIMEOUT_MINUTES", 10),
		},
		Insurance: InsuranceConfig{
			ZScoreModerateThreshold: getEnvAsFloat("INSURANCE_Z_SCORE_MODERATE_THRESHOLD", 2.0),
			ZScoreSevereThreshold:   getEnvAsFloat("INSURANCE_Z_SCORE_SEVERE_THRESHOLD", 3.0),
			BasePenalty:             getEnvAsFloat("INSURANCE_BASE_PENALTY", 100.0),
		},

		PaymentPerPackage: getEnvAsFloat("PAYMENT_PER_PACKAGE", 5.0),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpireDays: getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRE_DAYS", 7),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		Weather: WeatherConfig{
			APIKey: getEnv("WEATHER_API_KEY", ""),
			APIURL: getEnv("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5"),
			City:   getEnv("WEATHER_CITY", "Mumbai"),
		},
		Push: PushConfig{
			Endpoint: getEnv("PUSH_ENDPOINT", ""),
			APIKey:   getEnv("PUSH_API_KEY", ""),
		},
		Export: ExportConfig{
			S3Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
			S3Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
			S3Region:    getEnv("EXPORT_S3_REGION", "auto"),
			S3AccessKey: getEnv("EXPORT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("EXPORT_S3_SECRET_KEY", ""),
		},
		Schedule: ScheduleConfig{
			DailyAssignment: getEnv("SCHEDULE_DAILY_ASSIGNMENT", "0 0 6 * * *"),
			ForecastRefresh: getEnv("SCHEDULE_FORECAST_REFRESH", "0 0 0 * * *"),
			LearningExport:  getEnv("SCHEDULE_LEARNING_EXPORT", "0 0 23 * * *"),
			NightlyCleanup:  getEnv("SCHEDULE_NIGHTLY_CLEANUP", "0 0 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Fairness.MinPackagesPerDriver > c.Fairness.MaxPackagesPerDriver {
		return fmt.Errorf("FAIRNESS_MIN_PACKAGES_PER_DRIVER (%d) exceeds FAIRNESS_MAX_PACKAGES_PER_DRIVER (%d)",
			c.Fairness.MinPackagesPerDriver, c.Fairness.MaxPackagesPerDriver)
	}
	if c.Fairness.MaxPackagesPerDriver < 1 {
		return fmt.Errorf("FAIRNESS_MAX_PACKAGES_PER_DRIVER must be at least 1")
	}
	if c.Fairness.TimeoutSeconds < 1 {
		return fmt.Errorf("FAIRNESS_TIMEOUT_SECONDS must be at least 1")
	}
	if c.Health.RiskThresholdYellow >= c.Health.RiskThresholdRed {
		return fmt.Errorf("HEALTH_RISK_THRESHOLD_YELLOW (%d) must be below HEALTH_RISK_THRESHOLD_RED (%d)",
			c.Health.RiskThresholdYellow, c.Health.RiskThresholdRed)
	}
	if c.Health.MonitorIntervalSecs < 1 {
		return fmt.Errorf("HEALTH_MONITOR_INTERVAL_SECONDS must be at least 1")
	}
	if c.Insurance.ZScoreModerateThreshold > c.Insurance.ZScoreSevereThreshold {
		return fmt.Errorf("INSURANCE_Z_SCORE_MODERATE_THRESHOLD must not exceed the severe threshold")
	}
	if !c.DevMode && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside dev mode")
	}
	return nil
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
