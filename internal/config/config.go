// Package config loads service configuration from an optional YAML
// file with environment overrides. The GitHub App private key is
// parsed here once and injected into the credential resolver; nothing
// below cmd/ reads the environment.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/staticsnack/server/internal/store"
)

// StorageBackend enumerates supported persistence layers.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendRedis  StorageBackend = "redis"
)

// Config aggregates runtime configuration.
type Config struct {
	Addr    string        `yaml:"addr"`
	GitHub  GitHubConfig  `yaml:"github"`
	Storage StorageConfig `yaml:"storage"`
}

// GitHubConfig holds GitHub App credentials.
type GitHubConfig struct {
	AppID          int64  `yaml:"app_id"`
	PrivateKeyFile string `yaml:"private_key_file"`

	// PrivateKey is parsed during Load; never serialized.
	PrivateKey *rsa.PrivateKey `yaml:"-"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	Redis   RedisConfig    `yaml:"redis"`
}

// RedisConfig mirrors store.RedisConfig in YAML form.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

// StoreConfig converts to the store package's connection settings.
func (r RedisConfig) StoreConfig() store.RedisConfig {
	return store.RedisConfig{Addr: r.Addr, Username: r.Username, Password: r.Password, Database: r.Database}
}

// Load builds a Config from defaults, an optional YAML file and
// SNACK_* environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:    ":8080",
		Storage: StorageConfig{Backend: StorageBackendMemory},
	}

	if path != "" {
		data, err := os.ReadFile(os.ExpandEnv(path))
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.Backend != StorageBackendMemory && cfg.Storage.Backend != StorageBackendRedis {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var keyPEM []byte
	if v := os.Getenv("SNACK_GITHUB_PRIVATE_KEY"); v != "" {
		keyPEM = []byte(v)
	} else if cfg.GitHub.PrivateKeyFile != "" {
		data, err := os.ReadFile(os.ExpandEnv(cfg.GitHub.PrivateKeyFile))
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		keyPEM = data
	}
	if len(keyPEM) > 0 {
		key, err := ParsePrivateKey(keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		cfg.GitHub.PrivateKey = key
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SNACK_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SNACK_GITHUB_APP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.GitHub.AppID = id
		}
	}
	if v := os.Getenv("SNACK_GITHUB_PRIVATE_KEY_FILE"); v != "" {
		cfg.GitHub.PrivateKeyFile = v
	}
	if v := os.Getenv("SNACK_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = StorageBackend(v)
	}
	if v := os.Getenv("SNACK_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("SNACK_REDIS_USERNAME"); v != "" {
		cfg.Storage.Redis.Username = v
	}
	if v := os.Getenv("SNACK_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("SNACK_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Redis.Database = db
		}
	}
}

// ParsePrivateKey decodes a PEM-encoded RSA private key in either
// PKCS#1 (GitHub's download format) or PKCS#8 form.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", parsed)
	}
	return key, nil
}
