package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Settings sources.
const (
	SettingsFromMongo  = "mongo"
	SettingsFromSheets = "sheets"
	SettingsNone       = "none"
)

// Config represents the full application configuration surface.
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Store         StoreConfig
	MongoDB       MongoDBConfig
	Redis         RedisConfig
	Settings      SettingsConfig
	Sheets        SheetsConfig
	WhatsApp      WhatsAppConfig
	Notifications NotificationConfig
	Scheduler     SchedulerConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig enables the settings cache and job locks when Address is set.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// SettingsConfig controls where pipeline settings are read from.
type SettingsConfig struct {
	Source   string
	CacheTTL time.Duration
}

// SheetsConfig contains configuration required to read settings from Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	SettingsRange   string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
}

// Enabled reports whether notifications can be delivered over WhatsApp.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != ""
}

// NotificationConfig sizes the out-of-band notification queue.
type NotificationConfig struct {
	QueueSize int
	Workers   int
}

// SchedulerConfig holds cron specs for periodic jobs.
type SchedulerConfig struct {
	PaymentRunSchedule   string
	CollectionReportCron string
	Timezone             string
	LockTTL              time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	queueSize, err := getenvInt("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	workers, err := getenvInt("NOTIFY_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getenvDuration("SETTINGS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getenvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: getenvWithDefault("STORE_DRIVER", StoreMongo),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "milkchain"),
		},
		Redis: RedisConfig{
			Address:  os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Settings: SettingsConfig{
			Source:   getenvWithDefault("SETTINGS_SOURCE", SettingsFromMongo),
			CacheTTL: cacheTTL,
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_SETTINGS_ID"),
			SettingsRange:   getenvWithDefault("GOOGLE_SHEET_SETTINGS_RANGE", "Settings!A:B"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
		},
		Notifications: NotificationConfig{
			QueueSize: queueSize,
			Workers:   workers,
		},
		Scheduler: SchedulerConfig{
			PaymentRunSchedule:   getenvWithDefault("PAYMENT_RUN_CRON", "0 6 1 * *"),
			CollectionReportCron: getenvWithDefault("COLLECTION_REPORT_CRON", "0 20 * * 5"),
			Timezone:             getenvWithDefault("TIMEZONE", "Asia/Jakarta"),
			LockTTL:              lockTTL,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case StoreMongo:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Settings.Source {
	case SettingsFromMongo:
		if c.Store.Driver != StoreMongo {
			return errors.New("SETTINGS_SOURCE=mongo requires STORE_DRIVER=mongo")
		}
	case SettingsFromSheets:
		if c.Sheets.CredentialsPath == "" {
			return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided")
		}
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("GOOGLE_SHEET_SETTINGS_ID must be provided")
		}
	case SettingsNone:
	default:
		return fmt.Errorf("unsupported SETTINGS_SOURCE %q", c.Settings.Source)
	}

	if c.WhatsApp.Enabled() {
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Notifications.QueueSize <= 0 {
		return errors.New("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.Notifications.Workers <= 0 {
		return errors.New("NOTIFY_WORKERS must be positive")
	}

	if c.Scheduler.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Scheduler.Timezone, err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
