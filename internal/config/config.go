package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Database Database `mapstructure:"database"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Server   Server   `mapstructure:"server"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	ConfigFile  string `mapstructure:"config_file"`
	SeedFile    string `mapstructure:"seed_file"`
	PersonaFile string `mapstructure:"persona_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Timeout           string  `mapstructure:"timeout"`
	MaxTokens         int32   `mapstructure:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// Database holds relational store configuration
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
	MaxOpenConns     int    `mapstructure:"max_open_conns"`
	MaxIdleConns     int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  string `mapstructure:"conn_max_lifetime"`
}

// Feeds holds source fetching configuration
type Feeds struct {
	UserAgent         string `mapstructure:"user_agent"`
	Timeout           string `mapstructure:"timeout"`
	MaxItemsPerSource int    `mapstructure:"max_items_per_source"`
	MaxContentChars   int    `mapstructure:"max_content_chars"`
	DefaultSelector   string `mapstructure:"default_selector"`
}

// Pipeline holds orchestration configuration
type Pipeline struct {
	RelevanceThreshold   int    `mapstructure:"relevance_threshold"`
	ViewpointBatchLimit  int    `mapstructure:"viewpoint_batch_limit"`
	RoundtableBatchLimit int    `mapstructure:"roundtable_batch_limit"`
	TranscriptExcerpts   int    `mapstructure:"transcript_excerpts"`
	IngestionInterval    string `mapstructure:"ingestion_interval"`
	ViewpointInterval    string `mapstructure:"viewpoint_interval"`
}

// Server holds trigger API configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminAPIKey  string        `mapstructure:"admin_api_key"`
}

// Logging holds logging configuration
type Logging struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".healthwire")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 4096)
	viper.SetDefault("ai.gemini.temperature", 0.3)
	viper.SetDefault("ai.gemini.requests_per_minute", 30)

	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("feeds.user_agent", "Healthwire/1.0 (+https://healthwire.dev/bot)")
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_items_per_source", 10)
	viper.SetDefault("feeds.max_content_chars", 2000)
	viper.SetDefault("feeds.default_selector", "article, .post, .news-item, .article-item, .entry, .card")

	viper.SetDefault("pipeline.relevance_threshold", 6)
	viper.SetDefault("pipeline.viewpoint_batch_limit", 10)
	viper.SetDefault("pipeline.roundtable_batch_limit", 3)
	viper.SetDefault("pipeline.transcript_excerpts", 2)
	viper.SetDefault("pipeline.ingestion_interval", "1h")
	viper.SetDefault("pipeline.viewpoint_interval", "2h")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.connection_string", []string{
		"DATABASE_URL",
		"HEALTHWIRE_DATABASE_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"HEALTHWIRE_DEBUG",
	})

	bindEnvKeys("server.admin_api_key", []string{
		"ADMIN_API_KEY",
		"HEALTHWIRE_ADMIN_API_KEY",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.SeedFile != "" {
		config.App.SeedFile = expandPath(config.App.SeedFile)
	}
	if config.App.PersonaFile != "" {
		config.App.PersonaFile = expandPath(config.App.PersonaFile)
	}
	if config.Logging.FilePath != "" {
		config.Logging.FilePath = expandPath(config.Logging.FilePath)
	}

	durations := map[string]string{
		"ai.gemini.timeout":           config.AI.Gemini.Timeout,
		"database.conn_max_lifetime":  config.Database.ConnMaxLifetime,
		"feeds.timeout":               config.Feeds.Timeout,
		"pipeline.ingestion_interval": config.Pipeline.IngestionInterval,
		"pipeline.viewpoint_interval": config.Pipeline.ViewpointInterval,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks value ranges. Credentials are checked by the
// components that need them so that commands like `migrate` run without an AI key.
func validateConfig(config *Config) error {
	var errors []string

	if t := config.Pipeline.RelevanceThreshold; t < 1 || t > 10 {
		errors = append(errors, fmt.Sprintf("pipeline.relevance_threshold must be between 1 and 10, got %d", t))
	}
	if config.Feeds.MaxItemsPerSource < 1 {
		errors = append(errors, "feeds.max_items_per_source must be positive")
	}
	if config.Feeds.MaxContentChars < 1 {
		errors = append(errors, "feeds.max_content_chars must be positive")
	}
	if config.AI.Gemini.Temperature < 0 || config.AI.Gemini.Temperature > 2 {
		errors = append(errors, "ai.gemini.temperature must be between 0 and 2")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration parses a validated duration string, returning fallback when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Convenience getters for commonly used configuration values
func GetAI() AI             { return Get().AI }
func GetDatabase() Database { return Get().Database }
func GetFeeds() Feeds       { return Get().Feeds }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetServer() Server     { return Get().Server }
func GetLogging() Logging   { return Get().Logging }
func IsDebugMode() bool     { return Get().App.Debug }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
