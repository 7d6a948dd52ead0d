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

// Package monitor provides dead-peer detection for gateway connections and
// a basic HTTP health surface for the process itself.
package monitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/opspulse/opspulse-go/pkg/metrics"
	"github.com/opspulse/opspulse-go/pkg/protocol"
	"github.com/opspulse/opspulse-go/pkg/registry"
)

// Liveness periodically probes every connection and reaps the ones that
// stopped answering. Each tick clears a connection's alive flag and sends a
// probe; a connection whose flag is still clear from the previous tick has
// missed a full interval and is evicted. A silent peer therefore survives
// one missed probe and is gone within two intervals.
type Liveness struct {
	reg      *registry.Registry
	interval time.Duration
	probe    []byte
}

// NewLiveness creates a monitor over the registry with the given probe
// interval.
func NewLiveness(reg *registry.Registry, interval time.Duration) *Liveness {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Liveness{
		reg:      reg,
		interval: interval,
		probe:    protocol.MustEncode(protocol.TypePing, nil),
	}
}

// Run drives the probe loop until the context is canceled. It satisfies
// supervisor.Runner.
func (l *Liveness) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	log.Printf("Liveness monitor started with interval %s", l.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick performs one probe round. Exported so tests can drive the monitor
// without waiting on the real interval.
func (l *Liveness) Tick() {
	l.reg.ForEach(func(c *registry.Connection) {
		if !c.SwapAlive(false) {
			log.Printf("Connection %s failed liveness check, evicting (last seen %s)",
				c.ID(), c.LastSeen().Format(time.RFC3339))
			c.Close(registry.ReasonLivenessTimeout)
			if l.reg.Remove(c.ID()) != nil {
				metrics.ConnectionsActive.Dec()
			}
			metrics.LivenessEvictionsTotal.Inc()
			return
		}
		if err := c.Send(l.probe); err != nil && !errors.Is(err, registry.ErrConnectionClosed) {
			log.Printf("Failed to send liveness probe to %s: %v", c.ID(), err)
		}
	})
}
