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

// Package admin provides read-only REST endpoints for inspecting the
// gateway: the live connection list and aggregate counters. It consumes
// the gateway through a narrow interface and never mutates its state.
package admin

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/opspulse/opspulse-go/pkg/gateway"
)

// GatewayInspector is the read surface the API needs from the gateway.
type GatewayInspector interface {
	Connections() []gateway.ConnectionInfo
	Stats() gateway.Stats
}

// APIServer serves the admin endpoints.
type APIServer struct {
	gw GatewayInspector
}

// NewAPIServer creates an API server over the given gateway.
func NewAPIServer(gw GatewayInspector) *APIServer {
	return &APIServer{gw: gw}
}

// RegisterRoutes attaches the admin endpoints to a mux.
func (s *APIServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/connections", s.handleConnections)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
}

func (s *APIServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos := s.gw.Connections()
	if infos == nil {
		infos = []gateway.ConnectionInfo{}
	}
	writeJSON(w, infos)
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.gw.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode admin response: %v", err)
	}
}
