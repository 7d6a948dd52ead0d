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

package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspulse/opspulse-go/pkg/auth"
	"github.com/opspulse/opspulse-go/pkg/gateway"
	"github.com/opspulse/opspulse-go/pkg/telemetry"
	"github.com/opspulse/opspulse-go/pkg/topic"
)

func newFixture(t *testing.T) (*httptest.Server, *gateway.Gateway) {
	t.Helper()
	verifier := auth.NewMemoryVerifier()
	require.NoError(t, verifier.AddToken("valid", auth.Claims{
		UserID: "1", Username: "u1", Role: "developer",
	}))
	gw := gateway.New(gateway.Options{}, verifier, topic.NewCatalog(), telemetry.Defaults())

	mux := http.NewServeMux()
	NewAPIServer(gw).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, gw
}

func TestConnectionsEndpoint(t *testing.T) {
	ts, gw := newFixture(t)

	resp, err := ts.Client().Get(ts.URL + "/api/v1/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	var empty []gateway.ConnectionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	assert.Empty(t, empty)

	c := gw.Accept("127.0.0.1:5000")
	gw.HandleMessage(c, []byte(`{"type":"auth","data":{"token":"valid"}}`))
	gw.HandleMessage(c, []byte(`{"type":"subscribe","data":{"topic":"logs"}}`))

	resp, err = ts.Client().Get(ts.URL + "/api/v1/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	var infos []gateway.ConnectionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "u1", infos[0].Username)
	assert.Equal(t, []string{"logs"}, infos[0].Subscriptions)
	assert.True(t, infos[0].Authenticated)
}

func TestStatsEndpoint(t *testing.T) {
	ts, gw := newFixture(t)
	c := gw.Accept("127.0.0.1:5000")
	gw.HandleMessage(c, []byte(`{"type":"auth","data":{"token":"valid"}}`))
	gw.HandleMessage(c, []byte(`{"type":"subscribe","data":{"topics":["logs","metrics"]}}`))
	gw.Accept("127.0.0.1:5001")

	resp, err := ts.Client().Get(ts.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats gateway.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 1, stats.Authenticated)
	assert.Equal(t, 1, stats.TopicSubscribers["metrics"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newFixture(t)
	resp, err := ts.Client().Post(ts.URL+"/api/v1/stats", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
