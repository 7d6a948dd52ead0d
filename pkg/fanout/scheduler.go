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

// Package fanout pushes periodic telemetry events to subscribed
// connections. Each topic runs its own timer loop; a tick generates one
// payload and delivers it to every connection that is open, authenticated,
// and subscribed at send time. Eligibility is checked per recipient when
// the frame is queued, never cached, so an unsubscribe or disconnect
// mid-tick is honored.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/opspulse/opspulse-go/pkg/metrics"
	"github.com/opspulse/opspulse-go/pkg/protocol"
	"github.com/opspulse/opspulse-go/pkg/registry"
	"github.com/opspulse/opspulse-go/pkg/supervisor"
	"github.com/opspulse/opspulse-go/pkg/telemetry"
	"github.com/opspulse/opspulse-go/pkg/topic"
)

// Scheduler owns the broadcast loops for all catalog topics.
type Scheduler struct {
	reg        *registry.Registry
	catalog    *topic.Catalog
	generators map[string]telemetry.Generator

	// sample decides whether a sampled topic emits this tick; replaced
	// in tests to make the draw deterministic.
	sample func(probability float64) bool
}

// NewScheduler creates a scheduler broadcasting generator output for every
// topic in the catalog.
func NewScheduler(reg *registry.Registry, catalog *topic.Catalog, generators map[string]telemetry.Generator) *Scheduler {
	return &Scheduler{
		reg:        reg,
		catalog:    catalog,
		generators: generators,
		sample:     func(p float64) bool { return rand.Float64() < p },
	}
}

// Specs returns one supervised runner per catalog topic, each driving that
// topic's timer loop at its own cadence.
func (s *Scheduler) Specs() []supervisor.Spec {
	defs := s.catalog.Definitions()
	specs := make([]supervisor.Spec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, supervisor.Spec{
			ID:      fmt.Sprintf("fanout-%s", def.Name),
			Runner:  s.topicRunner(def),
			Restart: supervisor.RestartPermanent,
		})
	}
	return specs
}

func (s *Scheduler) topicRunner(def topic.Definition) supervisor.Runner {
	return supervisor.RunnerFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(def.Cadence)
		defer ticker.Stop()
		log.Printf("Fan-out scheduler for topic %q started with cadence %s", def.Name, def.Cadence)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.Broadcast(def)
			}
		}
	})
}

// Broadcast performs one tick for a topic: draw the sample for sampled
// topics, generate a single payload, and deliver it to every currently
// eligible connection. Returns the number of successful deliveries. A send
// failure for one recipient is logged and counted but never interrupts the
// rest of the broadcast.
func (s *Scheduler) Broadcast(def topic.Definition) int {
	if def.Sampled && !s.sample(def.Probability) {
		return 0
	}
	gen, ok := s.generators[def.Name]
	if !ok {
		return 0
	}

	frame, err := protocol.Encode(def.EventType, gen.Generate())
	if err != nil {
		log.Printf("Failed to encode %s event: %v", def.Name, err)
		return 0
	}
	metrics.EventsPublishedTotal.WithLabelValues(def.Name).Inc()

	delivered := 0
	s.reg.ForEach(func(c *registry.Connection) {
		// Fresh eligibility check at send time.
		if !c.IsOpen() || !c.IsAuthenticated() || !c.IsSubscribed(def.Name) {
			return
		}
		if err := c.Send(frame); err != nil {
			metrics.SendFailuresTotal.Inc()
			if !errors.Is(err, registry.ErrConnectionClosed) {
				log.Printf("Dropping %s event for %s: %v", def.Name, c.ID(), err)
			}
			return
		}
		delivered++
		metrics.EventsDeliveredTotal.WithLabelValues(def.Name).Inc()
	})
	return delivered
}
