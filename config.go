package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/automuse/api/templates"
)

const defaultConfigFile = "composer.toml"

// Config is the server configuration: an optional TOML file with env
// overrides applied on top.
type Config struct {
	ListenAddr        string `toml:"listen_addr"`
	StoreDir          string `toml:"store_dir"`
	IndexPath         string `toml:"index_path"`
	StrictFingerprint bool   `toml:"strict_fingerprint"`
	BaseURL           string `toml:"base_url"`
	BotToken          string `toml:"bot_token"`
	WebhookSecret     string `toml:"webhook_secret"`
	RedisURL          string `toml:"redis_url"`
}

// LoadConfig reads COMPOSER_CONFIG (or ./composer.toml when present) and
// applies environment overrides.
func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: ":8080",
		StoreDir:   templates.DefaultStoreDir(),
		IndexPath:  templates.DefaultIndexPath(),
	}

	path := strings.TrimSpace(os.Getenv("COMPOSER_CONFIG"))
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return Config{}, errors.New("listen_addr is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"LISTEN_ADDR", &cfg.ListenAddr},
		{"TEMPLATE_STORE_DIR", &cfg.StoreDir},
		{"TEMPLATE_INDEX_PATH", &cfg.IndexPath},
		{"BASE_URL", &cfg.BaseURL},
		{"BOT_TOKEN", &cfg.BotToken},
		{"TELEGRAM_WEBHOOK_SECRET", &cfg.WebhookSecret},
		{"REDIS_URL", &cfg.RedisURL},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.env)); value != "" {
			*o.target = value
		}
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_FINGERPRINT"))) {
	case "1", "true", "yes":
		cfg.StrictFingerprint = true
	case "0", "false", "no":
		cfg.StrictFingerprint = false
	}
}
