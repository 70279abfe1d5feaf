// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads bmsbridge settings from a YAML/JSON/TOML file and
// BMS_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Connection types
const (
	ConnectionSerial    = "Serial"
	ConnectionIP        = "IP"
	ConnectionWebSocket = "WebSocket"
)

// DefaultSearchPaths are tried in order when no config path is given
var DefaultSearchPaths = []string{"/data/options.json", "./config.yaml"}

// MQTTConfig holds the broker settings. Keys are flat for compatibility with
// existing add-on option files.
type MQTTConfig struct {
	Host      string `mapstructure:"mqtt_host" yaml:"mqtt_host"`
	Port      int    `mapstructure:"mqtt_port" yaml:"mqtt_port"`
	User      string `mapstructure:"mqtt_user" yaml:"mqtt_user"`
	Password  string `mapstructure:"mqtt_password" yaml:"mqtt_password"`
	BaseTopic string `mapstructure:"mqtt_base_topic" yaml:"mqtt_base_topic"`
}

// Enabled reports whether a broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Host != ""
}

// LumberjackConfig configures rotating log file output
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig selects log level, encoding and optional file output
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// HTTPConfig configures the status API
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable" yaml:"enable"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// MetricsConfig configures Prometheus exposition
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// RedisConfig configures the Redis sink
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	// Encoding of record snapshots: cbor or json
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// Config is the complete bmsbridge configuration
type Config struct {
	ConnectionType string `mapstructure:"connection_type" yaml:"connection_type"`

	BMSSerial      string `mapstructure:"bms_serial" yaml:"bms_serial"`
	BMSBaud        int    `mapstructure:"bms_baud" yaml:"bms_baud"`
	BMSIP          string `mapstructure:"bms_ip" yaml:"bms_ip"`
	BMSPort        int    `mapstructure:"bms_port" yaml:"bms_port"`
	BMSURL         string `mapstructure:"bms_url" yaml:"bms_url"`
	BMSUsername    string `mapstructure:"bms_username" yaml:"bms_username"`
	BMSNoSSLVerify bool   `mapstructure:"bms_no_ssl_verify" yaml:"bms_no_ssl_verify"`
	BMSAddress     string `mapstructure:"bms_address" yaml:"bms_address"`
	BMSVersion     string `mapstructure:"bms_version" yaml:"bms_version"`

	ScanInterval   int `mapstructure:"scan_interval" yaml:"scan_interval"`
	ReconnectDelay int `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	DebugOutput    int `mapstructure:"debug_output" yaml:"debug_output"`

	MQTT MQTTConfig `mapstructure:",squash" yaml:",inline"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`

	// Source is the file the configuration was read from, if any
	Source string `mapstructure:"-" yaml:"-"`
}

// ScanPeriod returns the poll cycle length
func (c *Config) ScanPeriod() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

// ReconnectPeriod returns the delay between reconnect attempts
func (c *Config) ReconnectPeriod() time.Duration {
	return time.Duration(c.ReconnectDelay) * time.Second
}

// Load reads configuration from path, or from the first existing
// DefaultSearchPaths entry when path is empty. A top-level "options" key
// is unwrapped so add-on config.yaml files load the same as options.json.
// Missing files are not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BMS_CONFIG")
	}
	if path == "" {
		for _, p := range DefaultSearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	// Environment overrides: BMS_ prefix, dots replaced with underscores
	v.SetEnvPrefix("BMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		settings, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source = path
	cfg.ConnectionType = normalizeConnectionType(cfg.ConnectionType)
	return &cfg, nil
}

// readFile reads one config file into a settings map
func readFile(path string) (map[string]any, error) {
	f := viper.New()
	f.SetConfigFile(path)
	if err := f.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	settings := f.AllSettings()
	if opts, ok := settings["options"].(map[string]any); ok {
		return opts, nil
	}
	return settings, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connection_type", ConnectionSerial)
	v.SetDefault("bms_serial", "/dev/ttyUSB0")
	v.SetDefault("bms_baud", 9600)
	v.SetDefault("bms_ip", "")
	v.SetDefault("bms_port", 5000)
	v.SetDefault("bms_url", "")
	v.SetDefault("bms_username", "")
	v.SetDefault("bms_no_ssl_verify", false)
	v.SetDefault("bms_address", "01")
	v.SetDefault("bms_version", "25")

	v.SetDefault("scan_interval", 5)
	v.SetDefault("reconnect_delay", 5)
	v.SetDefault("debug_output", 0)

	v.SetDefault("mqtt_host", "")
	v.SetDefault("mqtt_port", 1883)
	v.SetDefault("mqtt_user", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("mqtt_base_topic", "bmspace")

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.enable", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "bms")
	v.SetDefault("redis.encoding", "cbor")
}

func normalizeConnectionType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "serial":
		return ConnectionSerial
	case "ip", "tcp", "socket":
		return ConnectionIP
	case "websocket", "ws":
		return ConnectionWebSocket
	default:
		return t
	}
}

var twoHex = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)

// Validate checks that the selected connection has its address and that the
// timing and header values are usable
func (c *Config) Validate() error {
	var errs []error

	switch c.ConnectionType {
	case ConnectionSerial:
		if c.BMSSerial == "" {
			errs = append(errs, errors.New("bms_serial is required for Serial connections"))
		}
		if c.BMSBaud <= 0 {
			errs = append(errs, fmt.Errorf("bms_baud must be positive, got %d", c.BMSBaud))
		}
	case ConnectionIP:
		if c.BMSIP == "" {
			errs = append(errs, errors.New("bms_ip is required for IP connections"))
		}
		if c.BMSPort < 1 || c.BMSPort > 65535 {
			errs = append(errs, fmt.Errorf("bms_port must be 1-65535, got %d", c.BMSPort))
		}
	case ConnectionWebSocket:
		if c.BMSURL == "" {
			errs = append(errs, errors.New("bms_url is required for WebSocket connections"))
		}
	default:
		errs = append(errs, fmt.Errorf("connection_type must be Serial, IP or WebSocket, got %q", c.ConnectionType))
	}

	if !twoHex.MatchString(c.BMSAddress) {
		errs = append(errs, fmt.Errorf("bms_address must be two hex digits, got %q", c.BMSAddress))
	}
	if !twoHex.MatchString(c.BMSVersion) {
		errs = append(errs, fmt.Errorf("bms_version must be two hex digits, got %q", c.BMSVersion))
	}
	if c.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("scan_interval must be positive, got %d", c.ScanInterval))
	}
	if c.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("reconnect_delay must not be negative, got %d", c.ReconnectDelay))
	}
	if c.DebugOutput < 0 || c.DebugOutput > 3 {
		errs = append(errs, fmt.Errorf("debug_output must be 0-3, got %d", c.DebugOutput))
	}
	if c.MQTT.Enabled() && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errs = append(errs, fmt.Errorf("mqtt_port must be 1-65535, got %d", c.MQTT.Port))
	}
	if c.Redis.Enabled && c.Redis.Encoding != "cbor" && c.Redis.Encoding != "json" {
		errs = append(errs, fmt.Errorf("redis.encoding must be cbor or json, got %q", c.Redis.Encoding))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for printing
func (c *Config) Redacted() *Config {
	out := *c
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	if out.Redis.Password != "" {
		out.Redis.Password = "********"
	}
	return &out
}
