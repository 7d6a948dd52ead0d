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

package gateway

import (
	"sort"
	"time"

	"github.com/opspulse/opspulse-go/pkg/registry"
)

// ConnectionInfo is a read-only view of one live connection for the admin
// API.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	Username      string    `json:"username,omitempty"`
	Role          string    `json:"role,omitempty"`
	RemoteAddr    string    `json:"remote_addr"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSeen      time.Time `json:"last_seen"`
	Subscriptions []string  `json:"subscriptions"`
}

// Stats summarizes the gateway's live state.
type Stats struct {
	Connections      int            `json:"connections"`
	Authenticated    int            `json:"authenticated"`
	TopicSubscribers map[string]int `json:"topic_subscribers"`
}

// Connections returns a snapshot of every live connection, ordered by
// connect time.
func (g *Gateway) Connections() []ConnectionInfo {
	var infos []ConnectionInfo
	g.reg.ForEach(func(c *registry.Connection) {
		info := ConnectionInfo{
			ID:            c.ID(),
			RemoteAddr:    c.RemoteAddr(),
			Authenticated: c.IsAuthenticated(),
			ConnectedAt:   c.ConnectedAt(),
			LastSeen:      c.LastSeen(),
			Subscriptions: c.Subscriptions(),
		}
		if identity := c.Identity(); identity != nil {
			info.Username = identity.Username
			info.Role = identity.Role
		}
		infos = append(infos, info)
	})
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Stats returns current connection and subscription counts.
func (g *Gateway) Stats() Stats {
	return Stats{
		Connections:      g.reg.Count(),
		Authenticated:    g.reg.CountAuthenticated(),
		TopicSubscribers: g.reg.TopicCounts(),
	}
}
