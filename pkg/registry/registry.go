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

// Package registry holds the live set of gateway connections. The registry
// is the single source of truth for connection state: broadcast and
// liveness code read from it, and a connection removed here receives no
// further fan-out. A Registry is an ordinary value owned by its gateway
// instance, never a package-level singleton, so multiple gateways can
// coexist in one process (and in tests).
package registry

import (
	"sync"
)

// Registry is a concurrency-safe map of connection ID to Connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Add makes the connection visible to fan-out and liveness checks.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Remove deletes the connection and returns it. Removal can race between
// several triggers (peer disconnect, handshake timeout, liveness eviction);
// only the first caller gets the connection back, every later call returns
// nil and does nothing.
func (r *Registry) Remove(id string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	return c
}

// Get returns the connection for an ID, if present.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ForEach calls fn for every connection present when the iteration
// started. It snapshots the set first so fn may send, close, or remove
// connections without holding the registry lock.
func (r *Registry) ForEach(fn func(*Connection)) {
	r.mu.RLock()
	snapshot := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()
	for _, c := range snapshot {
		fn(c)
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountAuthenticated returns the number of connections past the handshake.
func (r *Registry) CountAuthenticated() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		if c.IsAuthenticated() {
			n++
		}
	}
	return n
}

// TopicCounts returns the number of subscribers per topic across all live
// connections.
func (r *Registry) TopicCounts() map[string]int {
	counts := make(map[string]int)
	r.ForEach(func(c *Connection) {
		for _, t := range c.Subscriptions() {
			counts[t]++
		}
	})
	return counts
}

// Drain closes and removes every connection with the given reason,
// returning how many were drained. Used on shutdown.
func (r *Registry) Drain(reason CloseReason) int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(reason)
	}
	return len(conns)
}
