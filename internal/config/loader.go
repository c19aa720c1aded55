package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".keeper"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file, honoring KEEPER_CONFIG and
// KEEPER_HOME overrides.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("KEEPER_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("KEEPER_HOME")); h != "" {
		return expandHome(h)
	}
	return os.UserHomeDir()
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load reads the config file, overlays KEEPER_* environment variables and
// expands ~ in all path settings. A missing file is not an error; defaults
// apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Process env from a local .env first so it participates in the
	// envconfig overlay below.
	_ = godotenv.Load()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envconfig.Process("KEEPER_TELEGRAM", &cfg.Telegram)
	envconfig.Process("KEEPER_AGENT", &cfg.Agent)
	envconfig.Process("KEEPER_KB", &cfg.KB)
	envconfig.Process("KEEPER_RETRIEVAL", &cfg.Retrieval)
	envconfig.Process("KEEPER_STORAGE", &cfg.Storage)

	for _, p := range []*string{
		&cfg.Agent.WorkDir,
		&cfg.KB.Root,
		&cfg.KB.RecentDir,
		&cfg.Storage.DBPath,
	} {
		if expanded, err := expandHome(*p); err == nil {
			*p = expanded
		}
	}
	if cfg.KB.RecentDir == "" && cfg.KB.Root != "" {
		cfg.KB.RecentDir = filepath.Join(cfg.KB.Root, "recent")
	}
	return cfg, nil
}

// ValidateForServe rejects configs that cannot run the bot.
func (c *Config) ValidateForServe() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is not configured (telegram.token or KEEPER_TELEGRAM_TOKEN)")
	}
	if strings.TrimSpace(c.Agent.Binary) == "" {
		return fmt.Errorf("agent binary is not configured (agent.binary or KEEPER_AGENT_BINARY)")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("no channel profiles configured; every chat would be dropped")
	}
	return nil
}

// Save writes the config back to its file with secure permissions.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
