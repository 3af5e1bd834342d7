package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Sensors  []SensorConfig `mapstructure:"sensors"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	RecordSamples  bool   `mapstructure:"record_samples"`
}

// Auth Configuration. Tokens are issued elsewhere; this service only
// verifies them.
type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type ModbusConfig struct {
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig configures the latest-reading cache.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	PoolSize  int           `mapstructure:"pool_size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Channel   string        `mapstructure:"channel"`
	TTL       time.Duration `mapstructure:"ttl"`
	History   int64         `mapstructure:"history"`
}

// MQTTConfig configures telemetry publishing.
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Retained    bool          `mapstructure:"retained"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SensorConfig is a sensor attached at startup.
type SensorConfig struct {
	Name         string        `mapstructure:"name"`
	Profile      string        `mapstructure:"profile"`
	Driver       string        `mapstructure:"driver"`
	Address      string        `mapstructure:"address"`
	UnitID       uint8         `mapstructure:"unit_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	// Environment Variables mit Prefix OMS_, z.B. OMS_SERVER_HTTP_PORT
	v.SetEnvPrefix("OMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openmachinesensors")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.record_samples", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("modbus.default_timeout", "1s")
	v.SetDefault("modbus.default_poll_interval", "100ms")

	v.SetDefault("profiles.search_paths", []string{"./profiles"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "oms")
	v.SetDefault("redis.channel", "oms:readings")
	v.SetDefault("redis.ttl", "1m")
	v.SetDefault("redis.history", 100)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "openmachinesensors")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "oms")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", "5s")
}

// LoadEnv loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the sensor list for missing fields and duplicate names.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, s := range c.Sensors {
		if s.Name == "" || s.Profile == "" {
			return fmt.Errorf("sensor %d: name and profile are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensor %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.PollInterval < 0 {
			return fmt.Errorf("sensor %s: negative poll interval", s.Name)
		}
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d out of range", c.MQTT.QoS)
	}
	return nil
}

// PollInterval returns the sensor's interval or the modbus default.
func (c *Config) PollInterval(s SensorConfig) time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return c.Modbus.DefaultPollInterval
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return devJWTSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
