package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultServiceName             = "oauthlink"
	defaultOperationTimeout        = 30 * time.Second
	defaultClientTimeout           = 30 * time.Second
	defaultClientResponseBodyLimit = int64(1 << 20)
)

type ClientConfig struct {
	BaseURL              string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout              time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

// ActivityConfig.Enabled is nil when unset; nil reads as enabled.
type ActivityConfig struct {
	Enabled *bool `koanf:"enabled" mapstructure:"enabled"`
}

func (c ActivityConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Config struct {
	ServiceName          string         `koanf:"service_name" mapstructure:"service_name"`
	FallbackErrorMessage string         `koanf:"fallback_error_message" mapstructure:"fallback_error_message"`
	DeviceAutoComplete   *bool          `koanf:"device_auto_complete" mapstructure:"device_auto_complete"`
	OperationTimeout     time.Duration  `koanf:"operation_timeout" mapstructure:"operation_timeout"`
	Client               ClientConfig   `koanf:"client" mapstructure:"client"`
	Activity             ActivityConfig `koanf:"activity" mapstructure:"activity"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:          defaultServiceName,
		FallbackErrorMessage: DefaultErrorMessage,
		DeviceAutoComplete:   BoolPtr(true),
		OperationTimeout:     defaultOperationTimeout,
		Client: ClientConfig{
			Timeout:              defaultClientTimeout,
			MaxResponseBodyBytes: defaultClientResponseBodyLimit,
		},
		Activity: ActivityConfig{Enabled: BoolPtr(true)},
	}
}

// DeviceAutoCompleteEnabled reports whether Start pre-completes device flows.
// An unset value reads as enabled.
func (c Config) DeviceAutoCompleteEnabled() bool {
	return c.DeviceAutoComplete == nil || *c.DeviceAutoComplete
}

// clone detaches the pointer fields so decoding into the copy never writes
// through to c.
func (c Config) clone() Config {
	c.DeviceAutoComplete = cloneBool(c.DeviceAutoComplete)
	c.Activity.Enabled = cloneBool(c.Activity.Enabled)
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("core: operation_timeout must be >= 0")
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("core: client.timeout must be >= 0")
	}
	if c.Client.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: client.max_response_body_bytes must be >= 0")
	}
	if base := strings.TrimSpace(c.Client.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: client.base_url is invalid: %q", base)
		}
	}
	return nil
}
