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

// package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal counts every accepted connection.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opspulse_gateway_connections_total",
		Help: "The total number of connections accepted by the gateway.",
	})

	// ConnectionsActive tracks currently open connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opspulse_gateway_connections_active",
		Help: "The number of currently open connections.",
	})

	// AuthTotal counts handshake outcomes by result (success, failed,
	// timeout).
	AuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opspulse_gateway_auth_total",
		Help: "The total number of authentication handshakes by outcome.",
	},
		[]string{"result"},
	)

	// EventsPublishedTotal counts fan-out events by topic. One event per
	// topic per tick, regardless of recipient count.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opspulse_gateway_events_published_total",
		Help: "The total number of telemetry events generated per topic.",
	},
		[]string{"topic"},
	)

	// EventsDeliveredTotal counts per-recipient deliveries by topic.
	EventsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opspulse_gateway_events_delivered_total",
		Help: "The total number of per-recipient event deliveries per topic.",
	},
		[]string{"topic"},
	)

	// SendFailuresTotal counts frames dropped for individual recipients.
	SendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opspulse_gateway_send_failures_total",
		Help: "The total number of frames dropped due to per-recipient send failures.",
	})

	// LivenessEvictionsTotal counts connections reaped by the liveness
	// monitor.
	LivenessEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opspulse_gateway_liveness_evictions_total",
		Help: "The total number of connections evicted for failing liveness probes.",
	})

	// SupervisorRestartsTotal counts restarts of supervised runners.
	SupervisorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opspulse_gateway_supervisor_restarts_total",
		Help: "The total number of times a supervised runner has been restarted.",
	},
		[]string{"runner_id"},
	)
)

// Serve starts an HTTP server to expose the Prometheus metrics.
func Serve(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logFatalf("Metrics server failed: %v", err)
	}
}

// logFatalf can be replaced by tests to prevent process exit.
var logFatalf = log.Fatalf
