package config

import (
	"fmt"
	"time"

	"vtuber/internal/memory"
	"vtuber/internal/privacy"
)

// Memory backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// MemoryConfig configures conversation memory persistence.
type MemoryConfig struct {
	Backend     string           `yaml:"backend"` // file, redis
	StoragePath string           `yaml:"storage_path"`
	Filename    string           `yaml:"filename"`
	MaxEntries  int              `yaml:"max_entries"`
	Autosave    string           `yaml:"autosave"` // interval; empty or 0 disables
	Encryption  EncryptionConfig `yaml:"encryption"`
	Redis       RedisConfig      `yaml:"redis"`
}

// EncryptionConfig configures at-rest encryption of snapshots. Key takes
// precedence over KeyFile.
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key,omitempty"`
	KeyFile string `yaml:"key_file"`
}

// RedisConfig configures the redis snapshot backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	TTL      string `yaml:"ttl"` // empty or 0 means no expiry
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Backend:     BackendFile,
		StoragePath: "data/memory",
		Filename:    memory.DefaultFilename,
		MaxEntries:  memory.DefaultMaxEntries,
		Autosave:    "2m",
		Encryption: EncryptionConfig{
			KeyFile: privacy.DefaultKeyFile,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "vtuber:memories",
		},
	}
}

func (c MemoryConfig) validate() error {
	switch c.Backend {
	case BackendFile:
		if c.StoragePath == "" {
			return fmt.Errorf("memory.storage_path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("memory.redis.addr is required for the redis backend")
		}
		if c.Redis.TTL != "" {
			if _, err := time.ParseDuration(c.Redis.TTL); err != nil {
				return fmt.Errorf("memory.redis.ttl: %w", err)
			}
		}
	default:
		return fmt.Errorf("memory.backend must be %q or %q, got %q", BackendFile, BackendRedis, c.Backend)
	}
	if c.Autosave != "" {
		if _, err := time.ParseDuration(c.Autosave); err != nil {
			return fmt.Errorf("memory.autosave: %w", err)
		}
	}
	if c.MaxEntries < 1 {
		return fmt.Errorf("memory.max_entries must be >= 1, got %d", c.MaxEntries)
	}
	if c.Encryption.Enabled && c.Encryption.Key == "" && c.Encryption.KeyFile == "" {
		return fmt.Errorf("memory.encryption needs a key or key_file when enabled")
	}
	return nil
}

// StoreConfig converts the memory section.
func (c *Config) StoreConfig() memory.Config {
	return memory.Config{
		MaxEntries: c.Memory.MaxEntries,
		Filename:   c.Memory.Filename,
	}
}

// GetRedisTTL returns the snapshot expiry; zero means none.
func (c *Config) GetRedisTTL() time.Duration {
	return durationOr(c.Memory.Redis.TTL, 0)
}

// GetAutosaveInterval returns how often chat persists memory; zero disables.
func (c *Config) GetAutosaveInterval() time.Duration {
	return durationOr(c.Memory.Autosave, 0)
}
