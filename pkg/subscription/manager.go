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

// Package subscription validates and applies topic subscription changes for
// gateway connections. Subscription state lives on the connection itself,
// so every mutation is visible to the next broadcast tick with nothing to
// invalidate.
package subscription

import (
	"fmt"

	"github.com/opspulse/opspulse-go/pkg/registry"
	"github.com/opspulse/opspulse-go/pkg/topic"
)

// LimitError is returned when a subscribe request would push a connection
// past the per-connection cap. The request is rejected whole; the
// connection's set is unchanged.
type LimitError struct {
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("subscription limit exceeded: at most %d topics per connection", e.Limit)
}

// Manager applies subscribe and unsubscribe requests against the topic
// catalog and the per-connection cap.
type Manager struct {
	topics *topic.Catalog
	limit  int
}

// NewManager creates a manager enforcing the given per-connection topic cap.
func NewManager(topics *topic.Catalog, limit int) *Manager {
	if limit <= 0 {
		limit = 10
	}
	return &Manager{topics: topics, limit: limit}
}

// Limit returns the per-connection topic cap.
func (m *Manager) Limit() int { return m.limit }

// Subscribe adds the requested topics to the connection. Unknown topic
// names are dropped before the cap check, so they neither count against the
// cap nor cause an error. The cap check and the mutation are atomic: a
// request that would exceed the cap returns a LimitError and changes
// nothing. On success the connection's full current topic set is returned.
func (m *Manager) Subscribe(c *registry.Connection, requested []string) ([]string, error) {
	valid := m.topics.Filter(requested)
	ok, current := c.TryAddSubscriptions(valid, m.limit)
	if !ok {
		return current, &LimitError{Limit: m.limit}
	}
	return current, nil
}

// Unsubscribe removes the requested topics from the connection; a nil or
// empty request clears the whole set. Names not currently subscribed are
// ignored. Returns the connection's full current topic set.
func (m *Manager) Unsubscribe(c *registry.Connection, requested []string) []string {
	if len(requested) == 0 {
		c.ClearSubscriptions()
		return []string{}
	}
	return c.RemoveSubscriptions(requested)
}
