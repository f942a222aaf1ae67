package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Cloudflare    CloudflareConfig    `yaml:"cloudflare"`
	Registry      RegistryConfig      `yaml:"registry"`
	Reconciler    ReconcilerConfig    `yaml:"reconciler"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Type     string `yaml:"type"` // sqlite/postgres
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `yaml:"level"`       // debug/info/warn/error
	Environment string `yaml:"environment"` // development/production
}

// AuthConfig represents session token configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

// CloudflareConfig represents Cloudflare API configuration. Zone IDs and
// API tokens are per donated domain and live in the database; only the
// request bounds and the record template are global.
type CloudflareConfig struct {
	Timeout      string `yaml:"timeout"`
	RecordType   string `yaml:"record_type"`   // CNAME or A
	RecordTarget string `yaml:"record_target"` // where claimed subdomains point
	Proxied      bool   `yaml:"proxied"`
}

// RegistryConfig represents donated-domain registry configuration
type RegistryConfig struct {
	DefaultMaxSubdomains int `yaml:"default_max_subdomains"`
}

// ReconcilerConfig represents the orphan-record sweep configuration
type ReconcilerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CheckInterval string `yaml:"check_interval"` // Cron expression
}

// NotificationsConfig represents notification configuration
type NotificationsConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// EmailConfig represents email notification configuration
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	From     string   `yaml:"from"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	Proxy    string `yaml:"proxy"` // optional SOCKS5 address
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Cloudflare.Timeout == "" {
		c.Cloudflare.Timeout = "30s"
	}
	if c.Cloudflare.RecordType == "" {
		c.Cloudflare.RecordType = "CNAME"
	}
	if c.Registry.DefaultMaxSubdomains <= 0 {
		c.Registry.DefaultMaxSubdomains = 50
	}
	if c.Reconciler.CheckInterval == "" {
		c.Reconciler.CheckInterval = "@every 10m"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "168h"
	}
}

// CloudflareTimeout parses the configured Cloudflare request timeout
func (c *Config) CloudflareTimeout() time.Duration {
	d, err := time.ParseDuration(c.Cloudflare.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TokenTTL parses the configured session token lifetime
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if c.Cloudflare.RecordType == "CNAME" && c.Cloudflare.RecordTarget == "" {
		return fmt.Errorf("cloudflare.record_target must be set for CNAME records")
	}
	return nil
}
