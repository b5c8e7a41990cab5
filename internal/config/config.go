package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Identity  IdentityConfig  `yaml:"identity"`
	Engine    EngineConfig    `yaml:"engine"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Usage     UsageConfig     `yaml:"usage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"pool_size"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ConnectBackoff time.Duration `yaml:"connect_backoff"`
}

type IdentityConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	BaseURL       string        `yaml:"base_url"`
	ServiceToken  string        `yaml:"service_token"`
	HeaderTimeout time.Duration `yaml:"header_timeout"`
}

type CatalogConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type UsageConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

type SecretsConfig struct {
	// CredentialKey is the base64-encoded 32-byte key provider credentials
	// are encrypted under at rest.
	CredentialKey string `yaml:"credential_key"`
}

// DecodeCredentialKey returns the raw credential key bytes.
func (s SecretsConfig) DecodeCredentialKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	return key, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "gateway",
			User:            "gateway",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Addr:           "localhost:6379",
			PoolSize:       50,
			DialTimeout:    5 * time.Second,
			ConnectBackoff: 30 * time.Second,
		},
		Identity: IdentityConfig{
			BaseURL: "http://identity:8081",
			Timeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			BaseURL:       "http://inference-engine:8090",
			HeaderTimeout: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			FetchTimeout: 10 * time.Second,
		},
		Usage: UsageConfig{
			QueueSize:    1024,
			DrainTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
	}
}
