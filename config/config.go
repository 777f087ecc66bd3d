// Package config loads application settings and character definitions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/provider"
	"github.com/becomeliminal/nim-companion/storage"
)

// AppConfig is loaded once at startup and handed to each subsystem.
type AppConfig struct {
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Server    ServerConfig   `yaml:"server"`
	Model     ModelConfig    `yaml:"model"`
	Memory    MemoryConfig   `yaml:"memory"`
	Storage   StorageConfig  `yaml:"storage"`
	Character CharacterFiles `yaml:"character"`
	CheckIn   CheckInConfig  `yaml:"checkin"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

type ModelConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	UseMock           bool    `yaml:"use_mock"`
	MockDelaySeconds  float64 `yaml:"mock_delay_seconds"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	MaxRetries        int     `yaml:"max_retries"`
	ExtractionTokens  int     `yaml:"extraction_max_tokens"`
	ExtractionHistory int     `yaml:"extraction_history"`
}

type MemoryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Path         string  `yaml:"path"`
	MinRelevance float64 `yaml:"min_relevance"`
	SearchLimit  int     `yaml:"search_limit"`

	// EmbedderProvider is "mock", "onnx", "openai", "ollama" or "openai-compat".
	EmbedderProvider  string `yaml:"embedder_provider"`
	EmbedderModel     string `yaml:"embedder_model"`
	EmbedderAPIKey    string `yaml:"embedder_api_key"`
	EmbedderBaseURL   string `yaml:"embedder_base_url"`
	EmbedderCacheSize int64  `yaml:"embedder_cache_size"`

	// ONNX model files, used when EmbedderProvider is "onnx".
	ONNXLibraryPath   string `yaml:"onnx_library_path"`
	ONNXModelPath     string `yaml:"onnx_model_path"`
	ONNXTokenizerPath string `yaml:"onnx_tokenizer_path"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Dir         string `yaml:"dir"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
}

type CharacterFiles struct {
	// File is the global character definition.
	File string `yaml:"file"`
	// Dir holds optional per-user overrides at <dir>/<user>/character.yaml.
	Dir string `yaml:"dir"`
}

type CheckInConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Model: ModelConfig{
			Provider:          provider.OpenAI,
			MockDelaySeconds:  1.0,
			MaxTokens:         250,
			TimeoutSeconds:    60,
			MaxRetries:        2,
			ExtractionTokens:  1024,
			ExtractionHistory: 10,
		},
		Memory: MemoryConfig{
			Enabled:           true,
			Path:              "data/memory",
			MinRelevance:      memory.DefaultConfig().MinRelevance,
			SearchLimit:       memory.DefaultConfig().SearchLimit,
			EmbedderProvider:  "mock",
			EmbedderCacheSize: 10000,
		},
		Storage: StorageConfig{
			Driver: storage.DriverFile,
			Dir:    "data/users",
		},
		Character: CharacterFiles{
			File: "config/character.yaml",
		},
		CheckIn: CheckInConfig{
			Enabled:         true,
			IntervalMinutes: 10,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// APP_CONFIG_FILE, then environment variables.
func Load() (*AppConfig, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("GRPC_PORT", &c.Server.GRPCPort)

	applyString("AI_PROVIDER", &c.Model.Provider)
	prefix := strings.ToUpper(strings.TrimSpace(c.Model.Provider))
	if prefix == "ANTHROPIC" || prefix == "CLAUDE" {
		applyString("CLAUDE_API_KEY", &c.Model.APIKey)
		applyString("ANTHROPIC_API_KEY", &c.Model.APIKey)
	}
	if prefix != "" {
		applyString(prefix+"_API_KEY", &c.Model.APIKey)
		applyString(prefix+"_MODEL", &c.Model.Model)
		applyString(prefix+"_BASE_URL", &c.Model.BaseURL)
	}
	applyBool("USE_MOCK_AI", &c.Model.UseMock)
	applyFloat64("MOCK_RESPONSE_DELAY", &c.Model.MockDelaySeconds)
	applyInt("MAX_TOKENS", &c.Model.MaxTokens)
	applyInt("MODEL_TIMEOUT_SECONDS", &c.Model.TimeoutSeconds)
	applyInt("MODEL_MAX_RETRIES", &c.Model.MaxRetries)
	applyInt("EXTRACTION_MAX_TOKENS", &c.Model.ExtractionTokens)
	applyInt("EXTRACTION_HISTORY", &c.Model.ExtractionHistory)

	applyBool("MEMORY_ENABLED", &c.Memory.Enabled)
	applyString("MEMORY_PATH", &c.Memory.Path)
	applyFloat64("MEMORY_MIN_RELEVANCE", &c.Memory.MinRelevance)
	applyInt("MEMORY_SEARCH_LIMIT", &c.Memory.SearchLimit)
	applyString("EMBEDDER_PROVIDER", &c.Memory.EmbedderProvider)
	applyString("EMBEDDER_MODEL", &c.Memory.EmbedderModel)
	applyString("EMBEDDER_API_KEY", &c.Memory.EmbedderAPIKey)
	applyString("EMBEDDER_BASE_URL", &c.Memory.EmbedderBaseURL)
	applyInt64("EMBEDDER_CACHE_SIZE", &c.Memory.EmbedderCacheSize)
	applyString("ONNX_LIBRARY_PATH", &c.Memory.ONNXLibraryPath)
	applyString("ONNX_MODEL_PATH", &c.Memory.ONNXModelPath)
	applyString("ONNX_TOKENIZER_PATH", &c.Memory.ONNXTokenizerPath)

	applyString("STORAGE_DRIVER", &c.Storage.Driver)
	applyString("STORAGE_DIR", &c.Storage.Dir)
	applyString("REDIS_URL", &c.Storage.RedisURL)
	applyString("DATABASE_URL", &c.Storage.DatabaseURL)

	applyString("CHARACTER_FILE", &c.Character.File)
	applyString("CHARACTER_DIR", &c.Character.Dir)

	applyBool("CHECKIN_ENABLED", &c.CheckIn.Enabled)
	applyInt("CHECKIN_INTERVAL_MINUTES", &c.CheckIn.IntervalMinutes)
}

func (c *AppConfig) normalize() {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Memory.EmbedderProvider = strings.ToLower(strings.TrimSpace(c.Memory.EmbedderProvider))

	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = 250
	}
	if c.Model.TimeoutSeconds <= 0 {
		c.Model.TimeoutSeconds = 60
	}
	if c.Memory.SearchLimit <= 0 {
		c.Memory.SearchLimit = memory.DefaultConfig().SearchLimit
	}
	if c.CheckIn.IntervalMinutes <= 0 {
		c.CheckIn.IntervalMinutes = 10
	}
	// Embeddings for "openai" reuse the chat key when none is set.
	if c.Memory.EmbedderProvider == "openai" && c.Memory.EmbedderAPIKey == "" && c.Model.Provider == provider.OpenAI {
		c.Memory.EmbedderAPIKey = c.Model.APIKey
	}
}

func (c *AppConfig) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Server.Port)
	}
	if c.Memory.MinRelevance < 0 || c.Memory.MinRelevance > 1 {
		return fmt.Errorf("MEMORY_MIN_RELEVANCE must be within [0, 1], got %v", c.Memory.MinRelevance)
	}
	switch c.Storage.Driver {
	case storage.DriverFile, storage.DriverMemory:
	case storage.DriverRedis:
		if strings.TrimSpace(c.Storage.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required for the redis storage driver")
		}
	case storage.DriverPostgres:
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownDriver, c.Storage.Driver)
	}
	return nil
}

// ProviderConfig returns the settings for provider.New.
func (c *AppConfig) ProviderConfig() provider.Config {
	return provider.Config{
		Provider:   c.Model.Provider,
		Model:      c.Model.Model,
		APIKey:     c.Model.APIKey,
		BaseURL:    c.Model.BaseURL,
		UseMock:    c.Model.UseMock,
		MockDelay:  time.Duration(c.Model.MockDelaySeconds * float64(time.Second)),
		MaxRetries: c.Model.MaxRetries,
		Timeout:    c.ModelTimeout(),
	}
}

// StorageConfig returns the settings for storage.Open.
func (c *AppConfig) StorageConfig() storage.Config {
	return storage.Config{
		Driver:      c.Storage.Driver,
		Dir:         c.Storage.Dir,
		RedisURL:    c.Storage.RedisURL,
		DatabaseURL: c.Storage.DatabaseURL,
	}
}

// MemoryConfig returns the settings for memory.NewIndex.
func (c *AppConfig) MemoryConfig() *memory.Config {
	return &memory.Config{
		Enabled:      c.Memory.Enabled,
		MinRelevance: c.Memory.MinRelevance,
		SearchLimit:  c.Memory.SearchLimit,
	}
}

// ModelTimeout bounds every model call.
func (c *AppConfig) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// CheckInInterval is the idle time before a proactive message.
func (c *AppConfig) CheckInInterval() time.Duration {
	return time.Duration(c.CheckIn.IntervalMinutes) * time.Minute
}

// Addr is the HTTP listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
