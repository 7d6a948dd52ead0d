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

// Package telemetry produces the event payloads pushed on each fan-out
// topic. The log, alert and flow streams are synthetic demo signals; the
// metric stream reports real process statistics. Any generator can be
// swapped for a real event source without touching the scheduler.
package telemetry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/opspulse/opspulse-go/pkg/monitor"
	"github.com/opspulse/opspulse-go/pkg/topic"
)

// Generator produces one event payload per fan-out tick.
type Generator interface {
	Generate() any
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func() any

// Generate calls f.
func (f GeneratorFunc) Generate() any { return f() }

// LogEvent is the payload for the "logs" topic.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Service   string    `json:"service"`
	Message   string    `json:"message"`
}

// MetricEvent is the payload for the "metrics" topic. Memory and goroutine
// figures come from the live process; the CPU figure is synthesized.
type MetricEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryAlloc   uint64    `json:"memory_alloc"`
	MemorySys     uint64    `json:"memory_sys"`
	Goroutines    int       `json:"goroutines"`
	GCPauseMs     float64   `json:"gc_pause_ms"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// AlertEvent is the payload for the "alerts" topic.
type AlertEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// FlowEvent is the payload for the "flows" topic.
type FlowEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	Protocol  string    `json:"protocol"`
	DstPort   int       `json:"dst_port"`
	Bytes     int       `json:"bytes"`
}

var (
	logLevels   = []string{"debug", "info", "info", "info", "warn", "error"}
	logServices = []string{"api", "scheduler", "worker", "ingress", "billing"}
	logMessages = []string{
		"request completed",
		"cache miss, falling back to origin",
		"retrying upstream call",
		"connection pool saturated",
		"slow query detected",
		"config reloaded",
	}
	alertSeverities = []string{"info", "warning", "critical"}
	alertSources    = []string{"ci", "security-scan", "uptime-probe", "disk-watch"}
	alertMessages   = []string{
		"pipeline run failed",
		"certificate expires within 7 days",
		"endpoint latency above threshold",
		"disk usage above 85%",
		"dependency vulnerability detected",
	}
	flowProtocols = []string{"tcp", "tcp", "tcp", "udp", "icmp"}
)

func randomIP() string {
	return fmt.Sprintf("10.%d.%d.%d", rand.Intn(256), rand.Intn(256), 1+rand.Intn(254))
}

// NewLogGenerator returns the synthetic log line source.
func NewLogGenerator() Generator {
	return GeneratorFunc(func() any {
		return &LogEvent{
			Timestamp: time.Now(),
			Level:     logLevels[rand.Intn(len(logLevels))],
			Service:   logServices[rand.Intn(len(logServices))],
			Message:   logMessages[rand.Intn(len(logMessages))],
		}
	})
}

// NewMetricGenerator returns the process snapshot source.
func NewMetricGenerator() Generator {
	return GeneratorFunc(func() any {
		sys := monitor.CollectSystem()
		return &MetricEvent{
			Timestamp:     sys.Timestamp,
			CPUPercent:    5 + rand.Float64()*70,
			MemoryAlloc:   sys.Memory.Alloc,
			MemorySys:     sys.Memory.Sys,
			Goroutines:    sys.Goroutines,
			GCPauseMs:     sys.Memory.GCPauseMs,
			UptimeSeconds: sys.Uptime,
		}
	})
}

// NewAlertGenerator returns the synthetic alert source.
func NewAlertGenerator() Generator {
	return GeneratorFunc(func() any {
		return &AlertEvent{
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("alert-%06d", rand.Intn(1000000)),
			Severity:  alertSeverities[rand.Intn(len(alertSeverities))],
			Source:    alertSources[rand.Intn(len(alertSources))],
			Message:   alertMessages[rand.Intn(len(alertMessages))],
		}
	})
}

// NewFlowGenerator returns the synthetic network flow source.
func NewFlowGenerator() Generator {
	return GeneratorFunc(func() any {
		return &FlowEvent{
			Timestamp: time.Now(),
			SrcIP:     randomIP(),
			DstIP:     randomIP(),
			Protocol:  flowProtocols[rand.Intn(len(flowProtocols))],
			DstPort:   []int{22, 53, 80, 443, 8080, 9090}[rand.Intn(6)],
			Bytes:     64 + rand.Intn(65000),
		}
	})
}

// Defaults returns the generator for every catalog topic.
func Defaults() map[string]Generator {
	return map[string]Generator{
		topic.Logs:    NewLogGenerator(),
		topic.Metrics: NewMetricGenerator(),
		topic.Alerts:  NewAlertGenerator(),
		topic.Flows:   NewFlowGenerator(),
	}
}
