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

// Package topic enumerates the gateway's fan-out channels. Topics are fixed
// at build time; clients can subscribe to them but never create them. Each
// topic carries its own emit cadence and, for sampled topics, a per-tick
// emit probability.
package topic

import (
	"log"
	"sort"
	"time"
)

// Topic names known to the gateway.
const (
	Logs    = "logs"
	Metrics = "metrics"
	Alerts  = "alerts"
	Flows   = "flows"
)

// Definition describes a single fan-out topic.
type Definition struct {
	// Name is the wire name clients subscribe with.
	Name string
	// EventType is the envelope type used for pushes on this topic
	// (singular form, e.g. "log" for the "logs" topic).
	EventType string
	// Cadence is the interval between fan-out ticks.
	Cadence time.Duration
	// Sampled marks topics that emit probabilistically rather than on
	// every tick.
	Sampled bool
	// Probability is the per-tick emit chance for sampled topics, in
	// (0, 1]. Ignored when Sampled is false.
	Probability float64
}

// Catalog is the immutable set of topic definitions for one gateway
// instance. It is built once at startup and only read afterwards, so it
// needs no locking.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog returns the default catalog: two snapshot topics that emit on
// every tick and two sampled topics that emulate bursty low-frequency
// signals.
func NewCatalog() *Catalog {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, d := range []Definition{
		{Name: Logs, EventType: "log", Cadence: 2 * time.Second},
		{Name: Metrics, EventType: "metric", Cadence: 2 * time.Second},
		{Name: Alerts, EventType: "alert", Cadence: 2 * time.Second, Sampled: true, Probability: 0.15},
		{Name: Flows, EventType: "flow", Cadence: 2 * time.Second, Sampled: true, Probability: 0.20},
	} {
		c.defs[d.Name] = d
	}
	return c
}

// SetCadence overrides the tick interval for one topic. Intended for
// configuration at startup, before any scheduler runs.
func (c *Catalog) SetCadence(name string, cadence time.Duration) {
	d, ok := c.defs[name]
	if !ok {
		log.Printf("[WARN] Ignoring cadence override for unknown topic %q", name)
		return
	}
	if cadence <= 0 {
		log.Printf("[WARN] Ignoring non-positive cadence %s for topic %s", cadence, name)
		return
	}
	d.Cadence = cadence
	c.defs[name] = d
}

// SetProbability overrides the per-tick emit probability for a sampled
// topic. Zero is valid and silences the topic entirely.
func (c *Catalog) SetProbability(name string, p float64) {
	d, ok := c.defs[name]
	if !ok || !d.Sampled {
		log.Printf("[WARN] Ignoring probability override for non-sampled topic %q", name)
		return
	}
	if p < 0 || p > 1 {
		log.Printf("[WARN] Ignoring out-of-range probability %v for topic %s", p, name)
		return
	}
	d.Probability = p
	c.defs[name] = d
}

// Get returns the definition for a topic name.
func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// IsValid reports whether name is a known topic.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.defs[name]
	return ok
}

// Names returns all topic names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all topic definitions, ordered by name.
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, 0, len(c.defs))
	for _, name := range c.Names() {
		defs = append(defs, c.defs[name])
	}
	return defs
}

// Filter returns the subset of requested names that are valid topics, with
// duplicates removed and input order preserved. Unknown names are dropped
// silently; callers apply subscription limits against the filtered set only.
func (c *Catalog) Filter(requested []string) []string {
	seen := make(map[string]struct{}, len(requested))
	valid := make([]string, 0, len(requested))
	for _, name := range requested {
		if !c.IsValid(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		valid = append(valid, name)
	}
	return valid
}
