// Package config handles configuration loading from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FTPTargetSlots is the number of FTP target slots the monitor manages.
const FTPTargetSlots = 2

// DefaultFTPPort is used when a target omits or misconfigures its port.
const DefaultFTPPort = 21

// Config holds all configuration for the transmission monitor.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logs     LogsConfig     `mapstructure:"logs"`
	FTP      FTPConfig      `mapstructure:"ftp"`
	Resend   ResendConfig   `mapstructure:"resend"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// LogsConfig holds transmission log ingestion configuration.
type LogsConfig struct {
	Directory      string `mapstructure:"directory"`
	SegmentPattern string `mapstructure:"segment_pattern"`
}

// FTPTarget identifies one probe endpoint. An empty host means the slot
// is unconfigured and excluded from probing.
type FTPTarget struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port dial address for the target.
func (t FTPTarget) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// FTPConfig holds connectivity monitor configuration.
type FTPConfig struct {
	Targets      []FTPTarget `mapstructure:"targets"`
	PingInterval int         `mapstructure:"ping_interval"` // seconds
	ProbeTimeout int         `mapstructure:"probe_timeout"` // seconds
}

// ResendConfig holds outbound resend configuration. FailureKeywords is the
// versioned keyword list used by the response classifier; any of these found
// in a response forces a FAILED outcome.
type ResendConfig struct {
	Server          string   `mapstructure:"server"`
	Endpoint        string   `mapstructure:"endpoint"`
	Timeout         int      `mapstructure:"timeout"` // seconds
	RateLimit       int      `mapstructure:"rate_limit"`
	FailureKeywords []string `mapstructure:"failure_keywords"`
	PreviewLimit    int      `mapstructure:"preview_limit"` // bytes of response text retained
}

// TargetURL builds the resend URL from the configured server and endpoint.
// An absolute endpoint wins over the server value.
func (r ResendConfig) TargetURL() (string, error) {
	server := strings.TrimSpace(r.Server)
	endpoint := strings.TrimSpace(r.Endpoint)

	if endpoint != "" {
		lowered := strings.ToLower(endpoint)
		if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
			return endpoint, nil
		}
	}

	if server == "" {
		return "", fmt.Errorf("resend server is not configured")
	}

	server = strings.TrimRight(server, "/")
	if endpoint == "" {
		return server, nil
	}

	return server + "/" + strings.TrimLeft(endpoint, "/"), nil
}

// RabbitMQConfig holds RabbitMQ connection configuration. An empty URL
// disables event publishing.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/transmission-monitor/")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; use defaults and env vars
	}

	// Environment variable settings
	v.SetEnvPrefix("TRANSMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.FTP.Targets = SanitizeTargets(cfg.FTP.Targets)
	if cfg.FTP.PingInterval <= 0 {
		cfg.FTP.PingInterval = 60
	}
	if cfg.FTP.ProbeTimeout <= 0 {
		cfg.FTP.ProbeTimeout = 5
	}

	return &cfg, nil
}

// SanitizeTargets normalizes the FTP target list to exactly FTPTargetSlots
// entries with trimmed hosts and valid ports.
func SanitizeTargets(targets []FTPTarget) []FTPTarget {
	normalized := make([]FTPTarget, FTPTargetSlots)

	for i := 0; i < FTPTargetSlots; i++ {
		var t FTPTarget
		if i < len(targets) {
			t = targets[i]
		}

		t.Host = strings.TrimSpace(t.Host)
		if t.Port < 1 || t.Port > 65535 {
			t.Port = DefaultFTPPort
		}

		normalized[i] = t
	}

	return normalized
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8002)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)

	// Log ingestion defaults
	v.SetDefault("logs.directory", "logs")
	v.SetDefault("logs.segment_pattern", "Transmission.log*")

	// Connectivity monitor defaults
	v.SetDefault("ftp.ping_interval", 60)
	v.SetDefault("ftp.probe_timeout", 5)

	// Resend defaults
	v.SetDefault("resend.server", "")
	v.SetDefault("resend.endpoint", "")
	v.SetDefault("resend.timeout", 15)
	v.SetDefault("resend.rate_limit", 5)
	v.SetDefault("resend.preview_limit", 1000)
	v.SetDefault("resend.failure_keywords", []string{
		"fail", "failed", "failure", "error", "rejected",
		"gagal", "unsuccess", "not ok", "not success",
	})

	// RabbitMQ defaults (empty URL disables publishing)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "transmission.events")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
