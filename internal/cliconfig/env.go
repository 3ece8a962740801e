package cliconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/getmockd/respvalidator/pkg/logging"
)

// Environment variable names
const (
	EnvPort      = "OPENAPI_JSON_RESPONSE_VALIDATOR_PORT"
	EnvLogLevel  = logging.EnvLevel
	EnvLogFormat = logging.EnvFormat
	EnvBinary    = "RESPVALIDATOR_BIN"
)

// DefaultBinary is the executable launched in subprocess mode.
const DefaultBinary = "respvalidator"

// Source identifies where a setting came from.
type Source string

// Setting sources, lowest precedence first.
const (
	SourceDefault Source = "default"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Config holds the resolved settings.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string
	Binary    string

	// Sources maps a setting name to where its value came from.
	Sources map[string]Source
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Binary:    DefaultBinary,
		Sources: map[string]Source{
			"port":      SourceDefault,
			"logLevel":  SourceDefault,
			"logFormat": SourceDefault,
			"binary":    SourceDefault,
		},
	}
}

// Override applies a setting given on the command line and records it as
// coming from a flag.
func (c *Config) Override(name string, apply func(*Config)) {
	if c.Sources == nil {
		c.Sources = make(map[string]Source)
	}
	apply(c)
	c.Sources[name] = SourceFlag
}

// Load returns Defaults overridden by the environment.
func Load() *Config {
	cfg := Defaults()
	LoadEnvConfig(cfg)
	return cfg
}

// LoadEnvConfig loads configuration from environment variables.
// It only sets values that are present and well formed.
func LoadEnvConfig(cfg *Config) {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]Source)
	}

	if port, ok := PortFromEnv(); ok {
		cfg.Port = port
		cfg.Sources["port"] = SourceEnv
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
		cfg.Sources["logLevel"] = SourceEnv
	}

	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
		cfg.Sources["logFormat"] = SourceEnv
	}

	if v := os.Getenv(EnvBinary); v != "" {
		cfg.Binary = v
		cfg.Sources["binary"] = SourceEnv
	}
}

// PortFromEnv returns the port set in OPENAPI_JSON_RESPONSE_VALIDATOR_PORT.
// ok is false when the variable is unset or not a valid port.
func PortFromEnv() (int, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPort))
	if v == "" {
		return 0, false
	}
	port, err := strconv.Atoi(v)
	if err != nil || port < 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// ResolvePort returns explicit when set, else the environment port, else 0.
func ResolvePort(explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if port, ok := PortFromEnv(); ok {
		return port
	}
	return 0
}

// BinaryFromEnv returns RESPVALIDATOR_BIN, or DefaultBinary when unset.
func BinaryFromEnv() string {
	if v := os.Getenv(EnvBinary); v != "" {
		return v
	}
	return DefaultBinary
}
