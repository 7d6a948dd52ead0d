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

package topic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogDefaults(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, []string{Alerts, Flows, Logs, Metrics}, c.Names())

	m, ok := c.Get(Metrics)
	require.True(t, ok)
	assert.Equal(t, "metric", m.EventType)
	assert.False(t, m.Sampled)
	assert.Equal(t, 2*time.Second, m.Cadence)

	a, ok := c.Get(Alerts)
	require.True(t, ok)
	assert.True(t, a.Sampled)
	assert.InDelta(t, 0.15, a.Probability, 1e-9)

	assert.False(t, c.IsValid("deploys"))
}

func TestCatalogOverrides(t *testing.T) {
	c := NewCatalog()

	c.SetCadence(Logs, 500*time.Millisecond)
	d, _ := c.Get(Logs)
	assert.Equal(t, 500*time.Millisecond, d.Cadence)

	// Zero and negative cadences are ignored.
	c.SetCadence(Logs, 0)
	d, _ = c.Get(Logs)
	assert.Equal(t, 500*time.Millisecond, d.Cadence)

	c.SetProbability(Flows, 0.5)
	d, _ = c.Get(Flows)
	assert.InDelta(t, 0.5, d.Probability, 1e-9)

	// Zero silences the topic; it is a valid operator override.
	c.SetProbability(Flows, 0)
	d, _ = c.Get(Flows)
	assert.Zero(t, d.Probability)

	// Out-of-range values keep the previous setting.
	c.SetProbability(Flows, -0.1)
	d, _ = c.Get(Flows)
	assert.Zero(t, d.Probability)
	c.SetProbability(Flows, 1.5)
	d, _ = c.Get(Flows)
	assert.Zero(t, d.Probability)

	// Snapshot topics have no probability to override.
	c.SetProbability(Metrics, 0.5)
	d, _ = c.Get(Metrics)
	assert.False(t, d.Sampled)

	// Unknown topics are a no-op, not a panic.
	c.SetCadence("deploys", time.Second)
	assert.False(t, c.IsValid("deploys"))
}

func TestCatalogFilter(t *testing.T) {
	c := NewCatalog()

	got := c.Filter([]string{"metrics", "bogus", "logs", "metrics", "nope"})
	assert.Equal(t, []string{"metrics", "logs"}, got)

	assert.Empty(t, c.Filter([]string{"x", "y"}))
	assert.Empty(t, c.Filter(nil))
}
