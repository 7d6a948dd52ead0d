// Copyright 2024 The opspulse-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for the gateway. Values
// load in three layers: built-in defaults, an optional YAML file, then
// OPSPULSE_* environment variables, so every tunable is overridable without
// code changes.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so it parses from "30s"-style strings in
// both YAML and environment variables.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr        string `yaml:"addr" envconfig:"OPSPULSE_ADDR"`
	WSPath      string `yaml:"ws_path" envconfig:"OPSPULSE_WS_PATH"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"OPSPULSE_METRICS_ADDR"`
}

// GatewayConfig holds the connection-handling limits and timers.
type GatewayConfig struct {
	MaxSubscriptionsPerClient int      `yaml:"max_subscriptions_per_client" envconfig:"OPSPULSE_MAX_SUBSCRIPTIONS_PER_CLIENT"`
	AuthTimeout               Duration `yaml:"auth_timeout" envconfig:"OPSPULSE_AUTH_TIMEOUT"`
	HeartbeatInterval         Duration `yaml:"heartbeat_interval" envconfig:"OPSPULSE_HEARTBEAT_INTERVAL"`
	SendBuffer                int      `yaml:"send_buffer" envconfig:"OPSPULSE_SEND_BUFFER"`
}

// TopicsConfig holds the per-topic fan-out tunables.
type TopicsConfig struct {
	LogsCadence      Duration `yaml:"logs_cadence" envconfig:"OPSPULSE_LOGS_CADENCE"`
	MetricsCadence   Duration `yaml:"metrics_cadence" envconfig:"OPSPULSE_METRICS_CADENCE"`
	AlertsCadence    Duration `yaml:"alerts_cadence" envconfig:"OPSPULSE_ALERTS_CADENCE"`
	FlowsCadence     Duration `yaml:"flows_cadence" envconfig:"OPSPULSE_FLOWS_CADENCE"`
	AlertProbability float64  `yaml:"alert_probability" envconfig:"OPSPULSE_ALERT_PROBABILITY"`
	FlowProbability  float64  `yaml:"flow_probability" envconfig:"OPSPULSE_FLOW_PROBABILITY"`
}

// StaticToken is one development credential for the in-memory verifier.
type StaticToken struct {
	Token    string `yaml:"token"`
	UserID   string `yaml:"user_id"`
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
}

// AuthConfig selects and configures the credential verifier. A non-empty
// JWT secret selects the JWT verifier; otherwise the static token table is
// used.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret" envconfig:"OPSPULSE_JWT_SECRET"`
	StaticTokens []StaticToken `yaml:"static_tokens" ignored:"true"`
}

// Config holds the complete gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Topics  TopicsConfig  `yaml:"topics"`
	Auth    AuthConfig    `yaml:"auth"`
}

// DefaultConfig returns the built-in defaults, including a development
// token table so the gateway works out of the box without a credential
// service.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			WSPath:      "/ws",
			MetricsAddr: ":9100",
		},
		Gateway: GatewayConfig{
			MaxSubscriptionsPerClient: 10,
			AuthTimeout:               Duration(30 * time.Second),
			HeartbeatInterval:         Duration(30 * time.Second),
			SendBuffer:                64,
		},
		Topics: TopicsConfig{
			LogsCadence:      Duration(2 * time.Second),
			MetricsCadence:   Duration(2 * time.Second),
			AlertsCadence:    Duration(2 * time.Second),
			FlowsCadence:     Duration(2 * time.Second),
			AlertProbability: 0.15,
			FlowProbability:  0.20,
		},
		Auth: AuthConfig{
			StaticTokens: []StaticToken{
				{Token: "dev-admin", UserID: "1", Username: "admin", Role: "admin"},
				{Token: "dev-user", UserID: "2", Username: "user1", Role: "developer"},
			},
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file if a
// path is given, then OPSPULSE_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		log.Println("[INFO] No config file specified, using default configuration")
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		log.Printf("[INFO] Loaded configuration from %s", configPath)
	}

	if err := envconfig.Process("opspulse", cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Gateway.MaxSubscriptionsPerClient <= 0 {
		return fmt.Errorf("max_subscriptions_per_client must be positive, got %d", c.Gateway.MaxSubscriptionsPerClient)
	}
	if c.Gateway.AuthTimeout.Std() <= 0 {
		return fmt.Errorf("auth_timeout must be positive, got %s", c.Gateway.AuthTimeout.Std())
	}
	if c.Gateway.HeartbeatInterval.Std() <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.Gateway.HeartbeatInterval.Std())
	}
	if c.Auth.JWTSecret == "" && len(c.Auth.StaticTokens) == 0 {
		return fmt.Errorf("no credential verifier configured: set a jwt_secret or static_tokens")
	}
	return nil
}
