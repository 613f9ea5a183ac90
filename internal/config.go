// Package internal holds the tool-wide configuration.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Target environment names understood by preset resolution.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config represents the tool configuration for one invocation.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Target TargetConfig      `yaml:"target"`
	Auth   AuthConfig        `yaml:"auth"`
	// DataPath is the directory holding one bundle subdirectory per deck.
	DataPath string `yaml:"data_path"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// TargetConfig identifies one remote API instance.
type TargetConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	// Port may be empty for protocol-default ports.
	Port string `yaml:"port"`
}

// Validate validates the target configuration.
func (c TargetConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Protocol, validation.Required, validation.In("http", "https")),
		validation.Field(&c.Host, validation.Required),
	)
}

// APIURL returns the base URL of the remote API.
func (c TargetConfig) APIURL() string {
	if c.Port == "" || c.Port == "none" {
		return fmt.Sprintf("%s://%s/api", c.Protocol, c.Host)
	}
	return fmt.Sprintf("%s://%s:%s/api", c.Protocol, c.Host, c.Port)
}

// AuthConfig holds the sign-in credentials for the target instance.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Validate validates the credentials.
func (c AuthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// NewDefaultConfig returns the configuration defaults, resolving port and
// protocol presets from the TARGET_ENV environment variable.
func NewDefaultConfig() *Config {
	cfg := &Config{
		App: ApplicationConfig{LogLevel: slog.LevelInfo},
		Target: TargetConfig{
			Protocol: "http",
			Host:     "localhost",
		},
		Auth: AuthConfig{
			Username: "test_admin",
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		DataPath: "data",
	}
	if host := os.Getenv("HOST_OVERRIDE"); host != "" {
		cfg.Target.Host = host
	}
	switch os.Getenv("TARGET_ENV") {
	case EnvDevelopment:
		cfg.Target.Port = "4000"
	case EnvTest:
		cfg.Target.Port = "5000"
	case EnvProduction:
		cfg.Target.Protocol = "https"
	}
	return cfg
}

// ResponsesMode selects how study sessions and responses participate in an
// export or import run.
type ResponsesMode int

const (
	// ResponsesNone skips responses entirely.
	ResponsesNone ResponsesMode = iota
	// ResponsesInclude processes the deck and then its responses.
	ResponsesInclude
	// ResponsesOnly processes responses against an already existing deck.
	ResponsesOnly
)

// ParseResponsesMode parses the CLI responses selector. Empty, "none", and
// "false" mean no responses.
func ParseResponsesMode(s string) (ResponsesMode, error) {
	switch strings.ToLower(s) {
	case "", "none", "false":
		return ResponsesNone, nil
	case "true":
		return ResponsesInclude, nil
	case "only":
		return ResponsesOnly, nil
	}
	return ResponsesNone, fmt.Errorf("invalid responses mode %q: valid options are none, true, and only", s)
}
