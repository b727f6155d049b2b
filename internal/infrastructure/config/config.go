package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for MachineID Core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Seed     SeedConfig     `yaml:"seed"`
}

// DatabaseConfig holds the SQLite settings. BusyTimeout is in
// seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig holds the HTTP listener settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig points at the certificate pair for HTTPS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig is expressed in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig controls cross-origin browser access to the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT broker connection settings for the
// decision event publisher. Disabled by default; the gate runs
// without a broker.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for decision
// metrics. Disabled by default.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig groups the admin token and rate limit settings.
type SecurityConfig struct {
	AdminToken AdminTokenConfig `yaml:"admin_token"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// AdminTokenConfig contains settings for the bearer tokens guarding
// the admin surface. TTL is in minutes.
type AdminTokenConfig struct {
	Secret string `yaml:"secret"`
	TTL    int    `yaml:"ttl"`
}

// RateLimitConfig contains per-organisation rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// SeedConfig controls first-boot seeding of a default organisation.
type SeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	OrgName string `yaml:"org_name"`
	OrgPlan string `yaml:"org_plan"`
}

// Load builds the runtime configuration: built-in defaults, then the
// YAML file at path, then MACHINEID_* environment variables, each
// layer overriding the one before. The result is validated before it
// is returned; a config the gate cannot run with fails here rather
// than at first use.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/machineid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "machineid-core",
			},
			QoS:         1,
			TopicPrefix: "machineid",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			AdminToken: AdminTokenConfig{
				TTL: 15,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 600,
				Burst:             60,
			},
		},
		Seed: SeedConfig{
			Enabled: true,
			OrgName: "default",
			OrgPlan: "free",
		},
	}
}

// applyEnvOverrides layers MACHINEID_* environment variables over
// whatever the file provided. The set is deliberately small: hosts
// that differ per deployment and secrets that should never be
// committed to a config file.
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"MACHINEID_DATABASE_PATH":  &cfg.Database.Path,
		"MACHINEID_API_HOST":       &cfg.API.Host,
		"MACHINEID_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"MACHINEID_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"MACHINEID_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"MACHINEID_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"MACHINEID_ADMIN_SECRET":   &cfg.Security.AdminToken.Secret,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// Validate collects every configuration problem into one error so an
// operator can fix them in a single pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// The admin surface creates organisations and rotates their keys,
	// so a missing or guessable secret is a startup error, not a
	// warning.
	const minAdminSecretLength = 32
	if c.Security.AdminToken.Secret == "" {
		errs = append(errs, "security.admin_token.secret is required (set MACHINEID_ADMIN_SECRET environment variable)")
	} else if len(c.Security.AdminToken.Secret) < minAdminSecretLength {
		errs = append(errs, "security.admin_token.secret must be at least 32 characters")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when rate limiting is enabled")
	}

	if c.Seed.Enabled {
		switch c.Seed.OrgPlan {
		case "free", "starter", "pro", "enterprise":
		default:
			errs = append(errs, "seed.org_plan must be one of: free, starter, pro, enterprise")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetAdminTokenTTL returns the admin token lifetime as a Duration.
func (c *Config) GetAdminTokenTTL() time.Duration {
	return time.Duration(c.Security.AdminToken.TTL) * time.Minute
}
