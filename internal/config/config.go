package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/meeting-summary-bot/internal/models"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout of the config file
type fileConfig struct {
	Matrix struct {
		Homeserver  string `yaml:"homeserver"`
		UserID      string `yaml:"user_id"`
		AccessToken string `yaml:"access_token"`
		AutoJoin    *bool  `yaml:"auto_join"`
	} `yaml:"matrix"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
	MeetbotID           string   `yaml:"meetbot_id"`
	IgnoredParticipants []string `yaml:"ignored_participants"`
	MeetingsDirectory   string   `yaml:"meetings_directory"`
	LogLevel            string   `yaml:"log_level"`
	Environment         string   `yaml:"environment"`
	MetricsListen       string   `yaml:"metrics_listen"`
}

// Load loads configuration from an optional YAML file and environment variables.
// Sources are applied in this order (later sources override earlier):
// 1. Default values
// 2. Config file at path (skipped when path is empty)
// 3. .env file and environment variables
func Load(path string) (*models.BotConfig, error) {
	return load(path, validate)
}

// LoadOffline loads configuration like Load but does not require the Matrix
// account settings. It serves tools that summarize a meeting log without
// connecting to a homeserver.
func LoadOffline(path string) (*models.BotConfig, error) {
	return load(path, validateOffline)
}

func load(path string, validate func(*models.BotConfig) error) (*models.BotConfig, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	config := defaults()

	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(config)

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func defaults() *models.BotConfig {
	return &models.BotConfig{
		AutoJoin: true,
		Gemini: models.GeminiConfig{
			Model: models.ModelFlash,
		},
		IgnoredParticipants: []string{},
		LogLevel:            "info",
		Environment:         "production",
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *models.BotConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg fileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setIfNotEmpty(&cfg.Homeserver, fileCfg.Matrix.Homeserver)
	setIfNotEmpty(&cfg.UserID, fileCfg.Matrix.UserID)
	setIfNotEmpty(&cfg.AccessToken, fileCfg.Matrix.AccessToken)
	if fileCfg.Matrix.AutoJoin != nil {
		cfg.AutoJoin = *fileCfg.Matrix.AutoJoin
	}

	setIfNotEmpty(&cfg.Gemini.APIKey, fileCfg.Gemini.APIKey)
	if fileCfg.Gemini.Model != "" {
		cfg.Gemini.Model = models.ModelType(fileCfg.Gemini.Model)
	}

	setIfNotEmpty(&cfg.MeetbotID, fileCfg.MeetbotID)
	if fileCfg.IgnoredParticipants != nil {
		cfg.IgnoredParticipants = fileCfg.IgnoredParticipants
	}
	setIfNotEmpty(&cfg.MeetingsDirectory, fileCfg.MeetingsDirectory)

	setIfNotEmpty(&cfg.LogLevel, fileCfg.LogLevel)
	setIfNotEmpty(&cfg.Environment, fileCfg.Environment)
	setIfNotEmpty(&cfg.MetricsListen, fileCfg.MetricsListen)

	return nil
}

// loadFromEnv overlays environment variables onto the configuration
func loadFromEnv(cfg *models.BotConfig) {
	// Matrix settings
	cfg.Homeserver = getEnv("MATRIX_HOMESERVER", cfg.Homeserver)
	cfg.UserID = getEnv("MATRIX_USER_ID", cfg.UserID)
	cfg.AccessToken = getEnv("MATRIX_ACCESS_TOKEN", cfg.AccessToken)
	cfg.AutoJoin = getEnvBool("MATRIX_AUTO_JOIN", cfg.AutoJoin)

	// Gemini API settings
	cfg.Gemini.APIKey = getEnv("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Model = models.ModelType(getEnv("GEMINI_MODEL", cfg.Gemini.Model.String()))

	// Meeting settings
	cfg.MeetbotID = getEnv("MEETBOT_ID", cfg.MeetbotID)
	cfg.IgnoredParticipants = getEnvList("IGNORED_PARTICIPANTS", cfg.IgnoredParticipants)
	cfg.MeetingsDirectory = getEnv("MEETINGS_DIRECTORY", cfg.MeetingsDirectory)

	// App settings
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.MetricsListen = getEnv("METRICS_LISTEN", cfg.MetricsListen)
}

// validate checks if all required configuration values are set
func validate(cfg *models.BotConfig) error {
	if cfg.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if cfg.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if cfg.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if cfg.MeetbotID == "" {
		return fmt.Errorf("meetbot_id is required")
	}
	return validateOffline(cfg)
}

func validateOffline(cfg *models.BotConfig) error {
	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if cfg.Gemini.Model == "" {
		return fmt.Errorf("gemini.model must not be empty")
	}

	// Matrix IDs still feed the ignore list when set
	if cfg.UserID != "" && !isMatrixUserID(cfg.UserID) {
		return fmt.Errorf("matrix.user_id must look like @user:server, got %q", cfg.UserID)
	}
	if cfg.MeetbotID != "" && !isMatrixUserID(cfg.MeetbotID) {
		return fmt.Errorf("meetbot_id must look like @user:server, got %q", cfg.MeetbotID)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error; got %s", cfg.LogLevel)
	}

	return nil
}

func isMatrixUserID(s string) bool {
	return strings.HasPrefix(s, "@") && strings.Index(s, ":") > 1
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as bool or returns default value
func getEnvBool(key string, defaultValue bool) bool {
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

// getEnvList retrieves a comma-separated environment variable or returns default value
func getEnvList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}

	return values
}
