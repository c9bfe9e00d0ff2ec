// Package config loads blockgraph settings from the environment, with an
// optional .env file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/flowgraph/blockgraph/pkg/serialization"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for blockgraph
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Serialization SerializationConfig
	Log           LogConfig
	// CapabilitiesFile is a YAML capability table. Empty selects the built-in one.
	CapabilitiesFile string
}

type ServerConfig struct {
	Addr           string
	RequestTimeout time.Duration
	BodyLimit      int
}

type StoreConfig struct {
	Driver         string
	DatabaseURL    string
	SQLitePath     string
	TableName      string
	MaxConnections int
}

type SerializationConfig struct {
	Codec       string
	Compression string
	// EncryptionKey is hex encoded.
	EncryptionKey string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables. Named env files
// must exist; without any, a .env in the working directory is used if present.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		// Try to load .env file (ignore error if it doesn't exist)
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnvWithDefault("ADDR", ":8080"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			BodyLimit:      getEnvAsInt("BODY_LIMIT", 8<<20),
		},
		Store: StoreConfig{
			Driver:         getEnvWithDefault("STORE_DRIVER", DriverMemory),
			DatabaseURL:    getEnvWithDefault("DATABASE_URL", ""),
			SQLitePath:     getEnvWithDefault("SQLITE_PATH", "blockgraph.db"),
			TableName:      getEnvWithDefault("STORE_TABLE", "workflow_drafts"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
		},
		Serialization: SerializationConfig{
			Codec:         getEnvWithDefault("CODEC", "msgpack"),
			Compression:   getEnvWithDefault("COMPRESSION", "zstd"),
			EncryptionKey: getEnvWithDefault("ENCRYPTION_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnvWithDefault("LOG_LEVEL", "info"),
			Format: getEnvWithDefault("LOG_FORMAT", "text"),
		},
		CapabilitiesFile: getEnvWithDefault("CAPABILITIES_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if _, err := c.Serializer(); err != nil {
		return err
	}

	return nil
}

// Serializer builds the draft serializer the settings describe.
func (c *Config) Serializer() (*serialization.Serializer, error) {
	codec, err := serialization.CodecByName(c.Serialization.Codec)
	if err != nil {
		return nil, err
	}
	compression, err := serialization.ParseCompression(c.Serialization.Compression)
	if err != nil {
		return nil, err
	}

	var key []byte
	if c.Serialization.EncryptionKey != "" {
		key, err = hex.DecodeString(c.Serialization.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be hex: %w", err)
		}
	}

	return serialization.NewSerializer(serialization.SerializationConfig{
		Codec:       codec,
		Compression: compression,
		EncryptKey:  key,
	})
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
