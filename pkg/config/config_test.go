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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 10, cfg.Gateway.MaxSubscriptionsPerClient)
	assert.Equal(t, 30*time.Second, cfg.Gateway.AuthTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Gateway.HeartbeatInterval.Std())
	assert.Equal(t, 2*time.Second, cfg.Topics.MetricsCadence.Std())
	assert.InDelta(t, 0.15, cfg.Topics.AlertProbability, 1e-9)
	assert.NotEmpty(t, cfg.Auth.StaticTokens)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
gateway:
  max_subscriptions_per_client: 5
  auth_timeout: 10s
topics:
  metrics_cadence: 250ms
  alert_probability: 0.5
auth:
  jwt_secret: "file-secret"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Gateway.MaxSubscriptionsPerClient)
	assert.Equal(t, 10*time.Second, cfg.Gateway.AuthTimeout.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Topics.MetricsCadence.Std())
	assert.InDelta(t, 0.5, cfg.Topics.AlertProbability, 1e-9)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	// Untouched values keep their defaults.
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 30*time.Second, cfg.Gateway.HeartbeatInterval.Std())
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPSPULSE_MAX_SUBSCRIPTIONS_PER_CLIENT", "3")
	t.Setenv("OPSPULSE_AUTH_TIMEOUT", "5s")
	t.Setenv("OPSPULSE_HEARTBEAT_INTERVAL", "1s")
	t.Setenv("OPSPULSE_METRICS_CADENCE", "100ms")
	t.Setenv("OPSPULSE_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Gateway.MaxSubscriptionsPerClient)
	assert.Equal(t, 5*time.Second, cfg.Gateway.AuthTimeout.Std())
	assert.Equal(t, time.Second, cfg.Gateway.HeartbeatInterval.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Topics.MetricsCadence.Std())
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.MaxSubscriptionsPerClient = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Gateway.AuthTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.StaticTokens = nil
	assert.Error(t, cfg.Validate())
	cfg.Auth.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())
}
