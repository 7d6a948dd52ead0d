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
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

var startTime = time.Now()

// SystemInfo is a point-in-time snapshot of the process. It backs the
// health endpoint and doubles as the payload source for the "metrics"
// telemetry topic.
type SystemInfo struct {
	Timestamp  time.Time  `json:"timestamp"`
	Uptime     int64      `json:"uptime_seconds"`
	Goroutines int        `json:"goroutines"`
	Memory     MemoryInfo `json:"memory"`
	NumCPU     int        `json:"num_cpu"`
	OS         string     `json:"os"`
	Arch       string     `json:"arch"`
}

// MemoryInfo contains memory usage information.
type MemoryInfo struct {
	Alloc      uint64  `json:"alloc"`
	TotalAlloc uint64  `json:"total_alloc"`
	Sys        uint64  `json:"sys"`
	NumGC      uint32  `json:"num_gc"`
	GCPauseMs  float64 `json:"gc_pause_ms"`
}

// CollectSystem gathers a fresh snapshot.
func CollectSystem() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var pause float64
	if m.NumGC > 0 {
		pause = float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6
	}
	return SystemInfo{
		Timestamp:  time.Now(),
		Uptime:     int64(time.Since(startTime).Seconds()),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryInfo{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
			GCPauseMs:  pause,
		},
		NumCPU: runtime.NumCPU(),
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
	}
}

// HealthStatus is the body served by the health endpoint.
type HealthStatus struct {
	Status string     `json:"status"`
	System SystemInfo `json:"system_info"`
}

// HealthHandler serves a JSON health report with the current system
// snapshot.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status: "healthy",
			System: CollectSystem(),
		})
	}
}
