package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Listen          string `yaml:"listen"`
	DatabasePath    string `yaml:"database_path"`
	LogLevel        string `yaml:"log_level"`
	AdminSecretHash string `yaml:"admin_secret_hash"`

	// LocalKeystore decrypts OTPs with AES keys from the aes_key table
	// instead of asking remote key storage services.
	LocalKeystore bool     `yaml:"local_keystore"`
	KSMURLs       []string `yaml:"ksm_urls"`

	SyncPool    []string `yaml:"sync_pool"`
	SyncPoolKey string   `yaml:"sync_pool_key"`
	// DefaultSyncLevel is a pointer so an explicit zero survives parsing;
	// nil means unset.
	DefaultSyncLevel *int `yaml:"default_sync_level"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	VerifyRateLimit       int `yaml:"verify_rate_limit"`
}

func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	err = yaml.Unmarshal(raw, config)
	if err != nil {
		return nil, err
	}
	if config.Listen == "" {
		config.Listen = ":8000"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "ykval.db"
	}
	if config.DefaultSyncLevel != nil && (*config.DefaultSyncLevel < 0 || *config.DefaultSyncLevel > 100) {
		return nil, fmt.Errorf("default_sync_level must be between 0 and 100, got %d", *config.DefaultSyncLevel)
	}
	if config.RequestTimeoutSeconds == 0 {
		config.RequestTimeoutSeconds = 10
	}
	if config.VerifyRateLimit == 0 {
		config.VerifyRateLimit = 30
	}
	if config.SyncPoolKey != "" {
		_, err := base64.StdEncoding.DecodeString(config.SyncPoolKey)
		if err != nil {
			return nil, fmt.Errorf("sync_pool_key is not valid base64: %w", err)
		}
	}
	return config, nil
}

// defaultSyncLevel returns the configured default sync level, or 60 when the
// configuration leaves it unset. Zero is a valid setting.
func (c *Config) defaultSyncLevel() int {
	if c.DefaultSyncLevel == nil {
		return 60
	}
	return *c.DefaultSyncLevel
}

// syncPoolKeyBytes returns the decoded shared key for the sync pool, or nil
// when sync messages are unsigned.
func (c *Config) syncPoolKeyBytes() []byte {
	if c.SyncPoolKey == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SyncPoolKey)
	if err != nil {
		return nil
	}
	return key
}
