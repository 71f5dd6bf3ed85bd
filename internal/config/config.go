package config

import (
	"time"

	"github.com/radio-control/rigd/internal/adapter"
)

// Config is the complete service configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Timing  TimingConfig  `yaml:"timing"`
	Beacon  BeaconConfig  `yaml:"beacon"`
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DeviceConfig describes the transceiver and how rigctl reaches it.
type DeviceConfig struct {
	Binary          string        `yaml:"binary"`
	Model           int           `yaml:"model"`
	Path            string        `yaml:"path"`
	Baud            int           `yaml:"baud"`
	ResponseTimeout time.Duration `yaml:"responseTimeout"`
	// ProcessTimeout bounds one rigctl run end to end.
	ProcessTimeout time.Duration `yaml:"processTimeout"`
}

// Endpoint returns the immutable device endpoint.
func (d DeviceConfig) Endpoint() adapter.Endpoint {
	return adapter.Endpoint{
		Model:           d.Model,
		Device:          d.Path,
		Baud:            d.Baud,
		ResponseTimeout: d.ResponseTimeout,
	}
}

// BeaconConfig configures the emergency beacon.
type BeaconConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Payload   string        `yaml:"payload"`
	AutoStart bool          `yaml:"autoStart"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// Auth modes.
const (
	AuthNone   = "none"
	AuthStatic = "static"
	AuthHS256  = "hs256"
	AuthRS256  = "rs256"
)

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Mode string `yaml:"mode"`
	// Token is the shared secret for static mode.
	Token string `yaml:"token"`
	// Secret is the HMAC key for hs256 mode.
	Secret string `yaml:"secret"`
	// PublicKeyFile is a PEM encoded RSA public key for rs256 mode.
	PublicKeyFile string `yaml:"publicKeyFile"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is stdout, stderr or file.
	Output     string `yaml:"output"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// AuditConfig configures the JSONL audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// MQTTConfig configures the beacon and event announcer.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"clientId"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topicPrefix"`
	QoS            int           `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// MetricsConfig configures the InfluxDB invocation metrics writer.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batchSize"`
	FlushInterval int    `yaml:"flushIntervalMs"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			Binary:          "rigctl",
			Model:           1022,
			Path:            "/dev/ttyUSB0",
			Baud:            38400,
			ResponseTimeout: 1000 * time.Millisecond,
			ProcessTimeout:  5 * time.Second,
		},
		Timing: TimingBaseline(),
		Beacon: BeaconConfig{
			Interval: 10 * time.Second,
			Payload:  "EMERGENCY BEACON: NEED ASSISTANCE",
		},
		Server: ServerConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Auth: AuthConfig{Mode: AuthNone},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			File:       "rigd.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			Path:       "audit.jsonl",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 90,
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "rigd",
			TopicPrefix:    "rigd",
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			URL:           "http://localhost:8086",
			Bucket:        "rigd",
			BatchSize:     100,
			FlushInterval: 1000,
		},
	}
}
