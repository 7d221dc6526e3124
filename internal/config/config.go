package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

var (
	reloadMu    sync.Mutex
	reloadHooks []func(*Config)
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Exam     ExamConfig     `mapstructure:"exam"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port               string `mapstructure:"port"`
	SessionSecret      string `mapstructure:"session_secret"`
	RateLimitPerMinute uint   `mapstructure:"rate_limit_per_minute"`
	SecureCookies      bool   `mapstructure:"secure_cookies"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port)
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ExamConfig holds the charting session defaults.
type ExamConfig struct {
	SeedWisdomTeeth     bool    `mapstructure:"seed_wisdom_teeth"`
	RetryCeiling        int     `mapstructure:"retry_ceiling"`
	DuplicateWindowMS   int     `mapstructure:"duplicate_window_ms"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	AdvisoryTTLMS       int     `mapstructure:"advisory_ttl_ms"`
	SessionIdleMinutes  int     `mapstructure:"session_idle_minutes"`
	VocabularyFile      string  `mapstructure:"vocabulary_file"`
}

func (e ExamConfig) DuplicateWindow() time.Duration {
	return time.Duration(e.DuplicateWindowMS) * time.Millisecond
}

func (e ExamConfig) AdvisoryTTL() time.Duration {
	return time.Duration(e.AdvisoryTTLMS) * time.Millisecond
}

func (e ExamConfig) SessionIdle() time.Duration {
	return time.Duration(e.SessionIdleMinutes) * time.Minute
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "")
	v.SetDefault("server.rate_limit_per_minute", 30)
	v.SetDefault("server.secure_cookies", false)

	// Database defaults
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "perio-db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Exam defaults
	v.SetDefault("exam.seed_wisdom_teeth", true)
	v.SetDefault("exam.retry_ceiling", 100)
	v.SetDefault("exam.duplicate_window_ms", 400)
	v.SetDefault("exam.confidence_threshold", 0.7)
	v.SetDefault("exam.advisory_ttl_ms", 3000)
	v.SetDefault("exam.session_idle_minutes", 60)
	v.SetDefault("exam.vocabulary_file", "")
}

// Load reads configuration from projectRoot/config/config.yaml and PERIO_* env vars, without
// touching Conf.
func Load(projectRoot string) (*viper.Viper, *Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("PERIO") // e.g., PERIO_EXAM_DUPLICATE_WINDOW_MS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return v, &conf, nil
}

// OnReload registers fn to run with the new configuration after a hot reload.
func OnReload(fn func(*Config)) {
	reloadMu.Lock()
	reloadHooks = append(reloadHooks, fn)
	reloadMu.Unlock()
}

func notifyReload(c *Config) {
	reloadMu.Lock()
	hooks := append([]func(*Config){}, reloadHooks...)
	reloadMu.Unlock()
	for _, fn := range hooks {
		fn(c)
	}
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v, conf, err := Load(projectRoot)
	if err != nil {
		return err
	}
	Conf = conf

	// Set up a watch for configuration changes for hot-reloading
	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				log.Error("Error reloading configuration", zap.Error(err))
				return
			}
			Conf = &next
			notifyReload(&next)
		})
	}

	log.Info("Configuration loaded successfully", zap.String("file", v.ConfigFileUsed()))
	return nil
}
