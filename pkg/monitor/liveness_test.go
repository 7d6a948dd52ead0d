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

package monitor

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspulse/opspulse-go/pkg/registry"
)

func TestLivenessProbesThenEvicts(t *testing.T) {
	reg := registry.New()
	l := NewLiveness(reg, time.Hour)

	silent := registry.NewConnection("silent", "", 8)
	reg.Add(silent)
	silent.TryAddSubscriptions([]string{"logs"}, 10)

	// First tick: the connection is still marked alive from accept, so
	// it survives, its flag is cleared, and a probe goes out.
	l.Tick()
	assert.Equal(t, 1, reg.Count())
	select {
	case frame := <-silent.Outbound():
		assert.JSONEq(t, `{"type":"ping"}`, string(frame))
	default:
		t.Fatal("expected a probe frame")
	}

	// Second tick with no acknowledgment: evicted, closed with the
	// liveness reason, and gone from every topic count.
	l.Tick()
	assert.Equal(t, 0, reg.Count())
	assert.False(t, silent.IsOpen())
	assert.Equal(t, registry.ReasonLivenessTimeout, silent.CloseReason())
	assert.Zero(t, reg.TopicCounts()["logs"])
}

func TestLivenessAcknowledgedConnectionSurvives(t *testing.T) {
	reg := registry.New()
	l := NewLiveness(reg, time.Hour)

	c := registry.NewConnection("chatty", "", 8)
	reg.Add(c)

	for i := 0; i < 3; i++ {
		l.Tick()
		require.Equal(t, 1, reg.Count(), "tick %d", i)
		<-c.Outbound()
		// Acknowledge the probe before the next tick.
		c.MarkAlive()
	}
	assert.True(t, c.IsOpen())
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"goroutines"`)
}

func TestCollectSystem(t *testing.T) {
	info := CollectSystem()
	assert.Positive(t, info.Goroutines)
	assert.Positive(t, info.NumCPU)
	assert.NotZero(t, info.Memory.Alloc)
}
