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

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspulse/opspulse-go/pkg/topic"
)

func TestDefaultsCoverEveryTopic(t *testing.T) {
	gens := Defaults()
	for _, name := range topic.NewCatalog().Names() {
		assert.Contains(t, gens, name)
	}
}

func TestGeneratorPayloads(t *testing.T) {
	logEvent, ok := NewLogGenerator().Generate().(*LogEvent)
	require.True(t, ok)
	assert.NotEmpty(t, logEvent.Level)
	assert.NotEmpty(t, logEvent.Service)
	assert.False(t, logEvent.Timestamp.IsZero())

	metricEvent, ok := NewMetricGenerator().Generate().(*MetricEvent)
	require.True(t, ok)
	assert.Positive(t, metricEvent.Goroutines)
	assert.NotZero(t, metricEvent.MemoryAlloc)
	assert.GreaterOrEqual(t, metricEvent.CPUPercent, 0.0)

	alertEvent, ok := NewAlertGenerator().Generate().(*AlertEvent)
	require.True(t, ok)
	assert.Contains(t, []string{"info", "warning", "critical"}, alertEvent.Severity)
	assert.NotEmpty(t, alertEvent.ID)

	flowEvent, ok := NewFlowGenerator().Generate().(*FlowEvent)
	require.True(t, ok)
	assert.NotEmpty(t, flowEvent.SrcIP)
	assert.Positive(t, flowEvent.Bytes)
}
