package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the calcserv configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Calc      CalcConfig      `yaml:"calc"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds network listener settings.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	HealthPort int    `yaml:"health_port"`
	// IdleTimeout closes a session that sends nothing for this long.
	// Zero disables the deadline.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CalcConfig holds metering and evaluator limits.
type CalcConfig struct {
	// Cost is the balance debited per successful calc request.
	Cost int64 `yaml:"cost"`
	// DefaultBalance is granted to newly registered accounts.
	DefaultBalance int64 `yaml:"default_balance"`
	// MaxExprLen bounds the accepted expression length in bytes.
	MaxExprLen int `yaml:"max_expr_len"`
	// MaxDepth bounds parenthesis/unary-minus nesting.
	MaxDepth int `yaml:"max_depth"`
}

// BootstrapConfig describes the admin account ensured at startup.
// Registration is admin-only, so a first admin has to exist before anyone
// can create accounts over the wire.
type BootstrapConfig struct {
	AdminLogin    string `yaml:"admin_login"`
	AdminPassword string `yaml:"admin_password"`
	AdminBalance  int64  `yaml:"admin_balance"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads and parses a YAML config file. Keys absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5511,
			HealthPort:  5512,
			IdleTimeout: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Path: "./data/calcserv.db",
		},
		Calc: CalcConfig{
			Cost:           1,
			DefaultBalance: 10,
			MaxExprLen:     256,
			MaxDepth:       32,
		},
		Bootstrap: BootstrapConfig{
			AdminLogin:   "admin",
			AdminBalance: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
