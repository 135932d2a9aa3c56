package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.phoenixchat/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// data:
//   dir: /home/me/.phoenixchat/data
// ai:
//   api_key: ...
//   model: gemini-1.5-flash
// history:
//   limit: 5
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - ai.api_key falls back to the GEMINI_API_KEY environment variable.

type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	AI      AIConfig      `yaml:"ai"`
	History HistoryConfig `yaml:"history"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DataConfig struct {
	Dir *string `yaml:"dir"`
}

type AIConfig struct {
	APIKey *string `yaml:"api_key"`
	Model  *string `yaml:"model"`
}

type HistoryConfig struct {
	Limit *int `yaml:"limit"`
}

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8090
	DefaultModel        = "gemini-1.5-flash"
	DefaultHistoryLimit = 5
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".phoenixchat")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.phoenixchat/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	if strings.TrimSpace(cfg.Host()) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}
	if port := cfg.Port(); port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}
	if limit := cfg.HistoryLimit(); limit < 1 {
		return nil, "", fmt.Errorf("invalid history.limit %d in %s", limit, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server:  ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		AI:      AIConfig{Model: ptr(DefaultModel)},
		History: HistoryConfig{Limit: ptr(DefaultHistoryLimit)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DataDir returns the directory holding the chat database and the legacy
// history buffer. Defaults to <config dir>/data.
func (c *AppConfig) DataDir() string {
	if c != nil && c.Data.Dir != nil && strings.TrimSpace(*c.Data.Dir) != "" {
		return *c.Data.Dir
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "data"
	}
	return filepath.Join(configDir, "data")
}

func (c *AppConfig) APIKey() string {
	if c != nil && c.AI.APIKey != nil && strings.TrimSpace(*c.AI.APIKey) != "" {
		return *c.AI.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

func (c *AppConfig) Model() string {
	if c == nil || c.AI.Model == nil || strings.TrimSpace(*c.AI.Model) == "" {
		return DefaultModel
	}
	return *c.AI.Model
}

func (c *AppConfig) HistoryLimit() int {
	if c == nil || c.History.Limit == nil {
		return DefaultHistoryLimit
	}
	return *c.History.Limit
}

func ptr[T any](v T) *T { return &v }
