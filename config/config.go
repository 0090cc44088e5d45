package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Booking   BookingConfig   `yaml:"booking"`
	Worker    WorkerConfig    `yaml:"worker"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type HTTPConfig struct {
	Address         string `yaml:"address"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// ApplySchema runs the embedded DDL on startup.
	ApplySchema bool `yaml:"apply_schema"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes    int `yaml:"hold_ttl_minutes"`
	FlightsCacheTTL   int `yaml:"flights_cache_ttl_seconds"`
	MaxCommitAttempts int `yaml:"max_commit_attempts"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) FlightsTTL() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	OutboxPollSeconds      int `yaml:"outbox_poll_seconds"`
	OutboxBatchSize        int `yaml:"outbox_batch_size"`
	ExpirationBatchSize    int `yaml:"expiration_batch_size"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer auth on booking routes when non-empty.
	JWTSecret string `yaml:"jwt_secret"`
	// Username and Password gate POST /api/auth/login; login stays off without a password.
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownSeconds <= 0 {
		c.HTTP.ShutdownSeconds = 5
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 20
	}
	if c.Database.MinConns <= 0 {
		c.Database.MinConns = 2
	}
	if c.Booking.HoldTTLMinutes <= 0 {
		c.Booking.HoldTTLMinutes = 15
	}
	if c.Booking.FlightsCacheTTL <= 0 {
		c.Booking.FlightsCacheTTL = 60
	}
	if c.Booking.MaxCommitAttempts <= 0 {
		c.Booking.MaxCommitAttempts = 5
	}
	if c.Worker.ExpirationSweepMinutes <= 0 {
		c.Worker.ExpirationSweepMinutes = 1
	}
	if c.Worker.OutboxPollSeconds <= 0 {
		c.Worker.OutboxPollSeconds = 2
	}
	if c.Worker.OutboxBatchSize <= 0 {
		c.Worker.OutboxBatchSize = 100
	}
	if c.Worker.ExpirationBatchSize <= 0 {
		c.Worker.ExpirationBatchSize = 100
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "admin"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 60
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "airbooking-core"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
