// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Server   ServerConfig   `mapstructure:"server"`
}

type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

type OpenAIConfig struct {
	APIKey           string `mapstructure:"api_key"`
	EmbeddingModel   string `mapstructure:"embedding_model"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	MaxRetryAttempts uint   `mapstructure:"max_retry_attempts"`
}

// EngineConfig holds the product-tunable parameters of the organization and
// search engine. Thresholds and weights are deliberately configuration, not
// constants; only their ordering properties are fixed.
type EngineConfig struct {
	SemanticWeight         float64 `mapstructure:"semantic_weight" validate:"gt=0,lte=1,gtfield=LexicalWeight"`
	LexicalWeight          float64 `mapstructure:"lexical_weight" validate:"gt=0,lte=1"`
	FolderThreshold        float64 `mapstructure:"folder_threshold" validate:"gte=0,lte=1"`
	ParentAttachThreshold  float64 `mapstructure:"parent_attach_threshold" validate:"gte=0,lte=1,ltefield=FolderThreshold"`
	TagThreshold           float64 `mapstructure:"tag_threshold" validate:"gte=0,lte=1,ltefield=FolderThreshold"`
	TagTopK                int     `mapstructure:"tag_top_k" validate:"gte=1"`
	HeuristicConfidenceCap float64 `mapstructure:"heuristic_confidence_cap" validate:"gte=0,lte=1"`
	CentroidTTLSeconds     int     `mapstructure:"centroid_ttl_seconds" validate:"gt=0"`
}

type ServerConfig struct {
	Address       string `mapstructure:"address"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// ProviderTimeout returns the configured provider timeout as a duration.
func (c OpenAIConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CentroidTTL returns the configured centroid memoization TTL as a duration.
func (c EngineConfig) CentroidTTL() time.Duration {
	return time.Duration(c.CentroidTTLSeconds) * time.Second
}

// Load reads the configuration file, applies defaults and environment
// overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/quill")
	}

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "quill")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.timeout_seconds", 10)
	v.SetDefault("openai.max_retry_attempts", 3)
	v.SetDefault("engine.semantic_weight", 0.7)
	v.SetDefault("engine.lexical_weight", 0.3)
	v.SetDefault("engine.folder_threshold", 0.75)
	v.SetDefault("engine.parent_attach_threshold", 0.6)
	v.SetDefault("engine.tag_threshold", 0.65)
	v.SetDefault("engine.tag_top_k", 5)
	v.SetDefault("engine.heuristic_confidence_cap", 0.4)
	v.SetDefault("engine.centroid_ttl_seconds", 300)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origin", "http://localhost:3000")

	// Bind credentials to environment variables only (not from config file)
	if err := v.BindEnv("openai.api_key", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind OPENAI_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("openai.embedding_model", "OPENAI_EMBEDDING_MODEL"); err != nil {
		return nil, fmt.Errorf("failed to bind OPENAI_EMBEDDING_MODEL environment variable: %w", err)
	}
	if err := v.BindEnv("database.username", "QUILL_DB_USERNAME"); err != nil {
		return nil, fmt.Errorf("failed to bind QUILL_DB_USERNAME environment variable: %w", err)
	}
	if err := v.BindEnv("database.password", "QUILL_DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind QUILL_DB_PASSWORD environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
