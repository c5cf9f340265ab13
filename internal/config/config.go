// Package config loads broker configuration from an optional YAML file,
// applies environment-variable overrides, then CLI-flag overrides on top
// of that — mirroring the layered load/override/defaults style used
// elsewhere in this codebase's config package, adapted to a single-binary
// broker with platform, server and logging sections.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the broker's full runtime configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PlatformConfig struct {
	Type           string `yaml:"type"`
	UseProxy       bool   `yaml:"use_proxy"`
	ProxyAddress   string `yaml:"proxy_address"`
	MPMPort        int    `yaml:"mpm_port"`
	Serial         string `yaml:"serial"`
	IgnoreUpdates  bool   `yaml:"ignore_updates"`
	Background     bool   `yaml:"background"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide configuration, loading it from path on
// first call. Subsequent calls return the same instance regardless of
// path.
func Get(path string) *Config {
	once.Do(func() {
		cfg, err := Load(path)
		if err != nil {
			cfg = Default()
		}
		instance = cfg
	})
	return instance
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			Type:    "fake",
			MPMPort: 8080,
			Serial:  "no-e-stop",
		},
		Server: ServerConfig{Port: 3000},
	}
}

// Load starts from Default, overlays path (if it exists), then applies
// environment overrides. A missing file is not an error: defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env; ignored if absent

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Platform.Type = getEnv("EPHYS_LINK_TYPE", cfg.Platform.Type)
	cfg.Platform.UseProxy = getEnvBool("EPHYS_LINK_USE_PROXY", cfg.Platform.UseProxy)
	cfg.Platform.ProxyAddress = getEnv("EPHYS_LINK_PROXY_ADDRESS", cfg.Platform.ProxyAddress)
	cfg.Platform.MPMPort = getEnvInt("EPHYS_LINK_MPM_PORT", cfg.Platform.MPMPort)
	cfg.Platform.Serial = getEnv("EPHYS_LINK_SERIAL", cfg.Platform.Serial)
	cfg.Platform.IgnoreUpdates = getEnvBool("EPHYS_LINK_IGNORE_UPDATES", cfg.Platform.IgnoreUpdates)
	cfg.Platform.Background = getEnvBool("EPHYS_LINK_BACKGROUND", cfg.Platform.Background)
	cfg.Server.Port = getEnvInt("EPHYS_LINK_PORT", cfg.Server.Port)
	cfg.Logging.Debug = getEnvBool("EPHYS_LINK_DEBUG", cfg.Logging.Debug)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
