// Package config loads the serve configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Redis holds the shared state store connection settings.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Auth holds the credential verification settings.
type Auth struct {
	// Secret is the HMAC key used to verify bearer tokens. REND_AUTH_SECRET
	// overrides it so the key can stay out of config files.
	Secret string `yaml:"secret"`
}

// Config is the full serve configuration.
type Config struct {
	Listen        string   `yaml:"listen"`
	MetricsListen string   `yaml:"metrics_listen"`
	Redis         Redis    `yaml:"redis"`
	Auth          Auth     `yaml:"auth"`
	ConnectionTTL Duration `yaml:"connection_ttl"`
	SessionTTL    Duration `yaml:"session_ttl"`
	LogJSON       bool     `yaml:"log_json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:        ":8080",
		MetricsListen: ":9090",
		Redis: Redis{
			Addr:   "localhost:6379",
			Prefix: "rendezvous:",
		},
		ConnectionTTL: Duration(5 * time.Minute),
		SessionTTL:    Duration(time.Hour),
	}
}

// Load reads the configuration file at path, falling back to defaults when
// path is empty, and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if addr := os.Getenv("REND_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REND_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if secret := os.Getenv("REND_AUTH_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}

	if cfg.Auth.Secret == "" {
		return Config{}, fmt.Errorf("auth secret is required (auth.secret or REND_AUTH_SECRET)")
	}
	return cfg, nil
}
