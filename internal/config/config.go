// Package config loads server configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `yaml:"databaseURL"`

	AnthropicAPIKey  string `yaml:"anthropicAPIKey"`
	AnthropicBaseURL string `yaml:"anthropicBaseURL"`
	GenerationModel  string `yaml:"generationModel"`
	MaxTokens        int    `yaml:"maxTokens"`
	FilePacingMS     int    `yaml:"filePacingMS"`

	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	SnapshotTTLMinutes int    `yaml:"snapshotTTLMinutes"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL string `yaml:"amqpURL"`
}

// Load reads config from path (defaults to config.yaml). A missing default
// file is not an error so the server can run from environment variables
// alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	usingDefault := path == ""
	if usingDefault {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !(usingDefault && os.IsNotExist(err)) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse MAX_TOKENS: %w", err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("FILE_PACING_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse FILE_PACING_MS: %w", err)
		}
		cfg.FilePacingMS = n
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SNAPSHOT_TTL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SNAPSHOT_TTL_MINUTES: %w", err)
		}
		cfg.SnapshotTTLMinutes = n
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.MaxTokens < 0 {
		return errors.New("config: maxTokens must not be negative")
	}
	if cfg.FilePacingMS < 0 {
		return errors.New("config: filePacingMS must not be negative")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minio endpoint requires minioAccessKey, minioSecretKey and minioBucket")
	}
	return nil
}
