// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Spotify    SpotifyConfig    `json:"spotify"`
	Storage    StorageConfig    `json:"storage"`
	Queue      QueueConfig      `json:"queue"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Snapshot   SnapshotConfig   `json:"snapshot"`
	Email      EmailConfig      `json:"email"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type SpotifyConfig struct {
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	Timeout      time.Duration `json:"timeout"`
}

type StorageConfig struct {
	SupabaseURL    string        `json:"supabase_url"`
	ServiceKey     string        `json:"service_key"`
	SnapshotBucket string        `json:"snapshot_bucket"`
	Timeout        time.Duration `json:"timeout"`
}

type QueueConfig struct {
	RedisURL     string        `json:"redis_url"`
	RedisDB      int           `json:"redis_db"`
	PollInterval time.Duration `json:"poll_interval"`
}

type SchedulerConfig struct {
	SnapshotInterval  time.Duration `json:"snapshot_interval"`
	MaxUsersPerSubset int           `json:"max_users_per_subset"`
	SubsetWindow      time.Duration `json:"subset_window"`
	ExecutionWindow   time.Duration `json:"execution_window"`
	DigestInterval    time.Duration `json:"digest_interval"`
}

type SnapshotConfig struct {
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

type EmailConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	FromEmail      string        `json:"from_email"`
	FromName       string        `json:"from_name"`
	UnsubscribeURL string        `json:"unsubscribe_url"`
	Timeout        time.Duration `json:"timeout"`
}

type JWTConfig struct {
	SecretKey string `json:"secret_key"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "trackkeeper"),
			User:            getEnvString("DB_USER", "trackkeeper"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Spotify: SpotifyConfig{
			ClientID:     getEnvString("SPOTIFY_CLIENT_ID", ""),
			ClientSecret: getEnvString("SPOTIFY_CLIENT_SECRET", ""),
			Timeout:      getEnvDuration("SPOTIFY_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			SupabaseURL:    getEnvString("STORAGE_SUPABASE_URL", ""),
			ServiceKey:     getEnvString("STORAGE_SERVICE_KEY", ""),
			SnapshotBucket: getEnvString("STORAGE_SNAPSHOT_BUCKET", "user-snapshots"),
			Timeout:        getEnvDuration("STORAGE_TIMEOUT", 60*time.Second),
		},
		Queue: QueueConfig{
			RedisURL:     getEnvString("QUEUE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:      getEnvInt("QUEUE_REDIS_DB", 0),
			PollInterval: getEnvDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			SnapshotInterval:  getEnvDuration("SCHEDULER_SNAPSHOT_INTERVAL", 24*time.Hour),
			MaxUsersPerSubset: getEnvInt("SCHEDULER_MAX_USERS_PER_SUBSET", 100),
			SubsetWindow:      getEnvDuration("SCHEDULER_SUBSET_WINDOW", 5*time.Minute),
			ExecutionWindow:   getEnvDuration("SCHEDULER_EXECUTION_WINDOW", 1*time.Hour),
			DigestInterval:    getEnvDuration("SCHEDULER_DIGEST_INTERVAL", 7*24*time.Hour),
		},
		Snapshot: SnapshotConfig{
			RetryAttempts: getEnvInt("SNAPSHOT_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvDuration("SNAPSHOT_RETRY_DELAY", 60*time.Second),
		},
		Email: EmailConfig{
			Host:           getEnvString("EMAIL_HOST", "smtp.gmail.com"),
			Port:           getEnvInt("EMAIL_PORT", 587),
			Username:       getEnvString("EMAIL_USERNAME", ""),
			Password:       getEnvString("EMAIL_PASSWORD", ""),
			FromEmail:      getEnvString("EMAIL_FROM_EMAIL", "noreply@trackkeeper.app"),
			FromName:       getEnvString("EMAIL_FROM_NAME", "TrackKeeper"),
			UnsubscribeURL: getEnvString("EMAIL_UNSUBSCRIBE_URL", "https://trackkeeper.app/unsubscribe"),
			Timeout:        getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		},
		JWT: JWTConfig{
			SecretKey: getEnvString("JWT_SECRET_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "file"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/trackkeeper/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate Spotify application credentials
	if cfg.Spotify.ClientID == "" {
		errors = append(errors, "SPOTIFY_CLIENT_ID is required")
	}
	if cfg.Spotify.ClientSecret == "" {
		errors = append(errors, "SPOTIFY_CLIENT_SECRET is required")
	}

	// Validate storage configuration
	if cfg.Storage.SupabaseURL == "" {
		errors = append(errors, "STORAGE_SUPABASE_URL is required")
	}
	if cfg.Storage.ServiceKey == "" {
		errors = append(errors, "STORAGE_SERVICE_KEY is required")
	}
	if cfg.Storage.SnapshotBucket == "" {
		errors = append(errors, "STORAGE_SNAPSHOT_BUCKET is required")
	}

	// Validate queue configuration
	if cfg.Queue.RedisURL == "" {
		errors = append(errors, "QUEUE_REDIS_URL is required")
	}

	// Validate scheduler configuration
	if cfg.Scheduler.SnapshotInterval <= 0 {
		errors = append(errors, "SCHEDULER_SNAPSHOT_INTERVAL must be positive")
	}
	if cfg.Scheduler.MaxUsersPerSubset <= 0 {
		errors = append(errors, "SCHEDULER_MAX_USERS_PER_SUBSET must be positive")
	}
	if cfg.Scheduler.SubsetWindow <= 0 {
		errors = append(errors, "SCHEDULER_SUBSET_WINDOW must be positive")
	}
	if cfg.Scheduler.ExecutionWindow < cfg.Scheduler.SubsetWindow {
		errors = append(errors, "SCHEDULER_EXECUTION_WINDOW must be at least one subset window")
	}
	if cfg.Scheduler.DigestInterval <= 0 {
		errors = append(errors, "SCHEDULER_DIGEST_INTERVAL must be positive")
	}

	// Validate snapshot retry configuration
	if cfg.Snapshot.RetryAttempts <= 0 {
		errors = append(errors, "SNAPSHOT_RETRY_ATTEMPTS must be positive")
	}
	if cfg.Snapshot.RetryDelay <= 0 {
		errors = append(errors, "SNAPSHOT_RETRY_DELAY must be positive")
	}

	// Validate email configuration if enabled
	if cfg.Email.Host != "" {
		if cfg.Email.Username == "" {
			errors = append(errors, "EMAIL_USERNAME is required for email configuration")
		}
		if cfg.Email.Password == "" {
			errors = append(errors, "EMAIL_PASSWORD is required for email configuration")
		}
		if cfg.Email.FromEmail == "" {
			errors = append(errors, "EMAIL_FROM_EMAIL is required for email configuration")
		}
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate metrics configuration
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			errors = append(errors, "METRICS_PORT must be between 1 and 65535")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errors = append(errors, "METRICS_PATH must start with /")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
