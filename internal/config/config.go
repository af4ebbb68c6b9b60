// Package config loads the YAML application config with an optional .env
// overlay for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cafeteria-system/internal/domain"
)

type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	RabbitMQ RabbitMQConfig  `yaml:"rabbitmq"`
	Orders   OrdersConfig    `yaml:"orders"`
	Staff    StaffConfig     `yaml:"staff"`
	Outlets  []domain.Outlet `yaml:"outlets"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type OrdersConfig struct {
	TokenPrefix     string  `yaml:"token_prefix"`
	TaxRate         float64 `yaml:"tax_rate"`
	AllocAttempts   int     `yaml:"alloc_attempts"`
	AllocBackoffMS  int     `yaml:"alloc_backoff_ms"`
	BaseWaitMinutes int     `yaml:"base_wait_minutes"`
}

func (o OrdersConfig) AllocBackoff() time.Duration {
	return time.Duration(o.AllocBackoffMS) * time.Millisecond
}

type StaffConfig struct {
	RefreshIntervalSec  int    `yaml:"refresh_interval_seconds"`
	PartitionTimeoutSec int    `yaml:"partition_timeout_seconds"`
	ScatterConcurrency  int    `yaml:"scatter_concurrency"`
	StalePolicy         string `yaml:"stale_policy"` // surface | drop | retry
}

func (s StaffConfig) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalSec) * time.Second
}

func (s StaffConfig) PartitionTimeout() time.Duration {
	return time.Duration(s.PartitionTimeoutSec) * time.Second
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres",
			Database: "cafeteria", SSLMode: "disable", MaxConns: 10,
		},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", VHost: "/"},
		Orders: OrdersConfig{
			TokenPrefix: "DH", TaxRate: 0.05,
			AllocAttempts: 5, AllocBackoffMS: 25,
			BaseWaitMinutes: 15,
		},
		Staff: StaffConfig{
			RefreshIntervalSec:  20,
			PartitionTimeoutSec: 3,
			ScatterConcurrency:  8,
			StalePolicy:         "surface",
		},
	}
}

// Load reads the YAML file at path over the built-in defaults, then lets
// environment variables (optionally from .env) override credentials.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.RabbitMQ.Host == "" || c.RabbitMQ.User == "" {
		return fmt.Errorf("rabbitmq config incomplete")
	}
	if c.Orders.TaxRate < 0 || c.Orders.TaxRate >= 1 {
		return fmt.Errorf("orders.tax_rate out of range: %v", c.Orders.TaxRate)
	}
	switch c.Staff.StalePolicy {
	case "surface", "drop", "retry":
	default:
		return fmt.Errorf("staff.stale_policy must be surface, drop or retry, got %q", c.Staff.StalePolicy)
	}
	return nil
}

// Outlet looks up an outlet from the configured directory.
func (c *Config) Outlet(id string) (domain.Outlet, bool) {
	for _, o := range c.Outlets {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Outlet{}, false
}
