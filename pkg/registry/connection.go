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

package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/opspulse/opspulse-go/pkg/auth"
)

var (
	// ErrConnectionClosed is returned by Send after the connection has
	// been closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is
	// full. The frame is dropped for this recipient only.
	ErrSendBufferFull = errors.New("send buffer full")
)

// CloseReason records why a connection was closed. The three
// authentication-related reasons are deliberately distinct so clients can
// tell "rejected" from "took too long" from an ordinary disconnect.
type CloseReason int

const (
	// ReasonClientGone covers ordinary disconnects initiated by the peer.
	ReasonClientGone CloseReason = iota
	// ReasonAuthFailed means the presented credential was rejected.
	ReasonAuthFailed
	// ReasonAuthTimeout means the handshake deadline elapsed without a
	// valid credential.
	ReasonAuthTimeout
	// ReasonLivenessTimeout means the peer stopped answering probes.
	ReasonLivenessTimeout
	// ReasonShutdown means the gateway is draining on shutdown.
	ReasonShutdown
)

// String returns the close reason as a short human-readable tag.
func (r CloseReason) String() string {
	switch r {
	case ReasonClientGone:
		return "client gone"
	case ReasonAuthFailed:
		return "authentication failed"
	case ReasonAuthTimeout:
		return "authentication timeout"
	case ReasonLivenessTimeout:
		return "liveness timeout"
	case ReasonShutdown:
		return "server shutdown"
	default:
		return "unknown"
	}
}

// CloseCode maps the reason to the websocket close code sent on the close
// frame. Codes in the 4000 range are application-defined.
func (r CloseReason) CloseCode() int {
	switch r {
	case ReasonAuthFailed:
		return 4001
	case ReasonAuthTimeout:
		return 4002
	case ReasonLivenessTimeout:
		return 4003
	case ReasonShutdown:
		return 1001
	default:
		return 1000
	}
}

// Connection is the gateway-side state for one live transport link. The
// transport adapter owns the reader and writer goroutines; everything else
// interacts with the connection through these methods, which are safe for
// concurrent use.
//
// Outbound frames go through a buffered queue drained by the transport's
// write pump, so a stalled peer never blocks a broadcast tick.
type Connection struct {
	id          string
	remoteAddr  string
	connectedAt time.Time

	mu            sync.RWMutex
	authenticated bool
	authExpired   bool
	identity      *auth.Claims
	subscriptions map[string]struct{}
	alive         bool
	lastSeen      time.Time
	authTimer     *time.Timer

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    CloseReason
}

// NewConnection creates a connection in the pending-authentication state
// with an outbound queue of the given capacity.
func NewConnection(id, remoteAddr string, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	now := time.Now()
	return &Connection{
		id:            id,
		remoteAddr:    remoteAddr,
		connectedAt:   now,
		subscriptions: make(map[string]struct{}),
		alive:         true,
		lastSeen:      now,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
	}
}

// ID returns the connection's opaque handle.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address recorded at accept time.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// ConnectedAt returns the accept timestamp.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Send queues a frame for delivery. It never blocks: a closed connection
// yields ErrConnectionClosed and a full queue yields ErrSendBufferFull, in
// both cases without affecting any other connection.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Outbound exposes the frame queue to the transport's write pump.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close marks the connection closed with the given reason and cancels the
// pending handshake timer, if any. Only the first call wins; later calls
// are no-ops and return false.
func (c *Connection) Close(reason CloseReason) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		if c.authTimer != nil {
			c.authTimer.Stop()
			c.authTimer = nil
		}
		c.mu.Unlock()
		close(c.done)
		closed = true
	})
	return closed
}

// IsOpen reports whether the connection has not been closed yet.
func (c *Connection) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// CloseReason returns the reason recorded by the winning Close call.
func (c *Connection) CloseReason() CloseReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// SetAuthTimer attaches the handshake deadline timer so that closing the
// connection cancels it.
func (c *Connection) SetAuthTimer(t *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authTimer = t
}

// Authenticate marks the connection authenticated with the resolved
// identity and cancels the handshake deadline. It returns false when the
// deadline already expired; the decision shares a lock with ExpireAuth,
// so exactly one of the two transitions wins.
func (c *Connection) Authenticate(claims *auth.Claims) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authExpired {
		return false
	}
	c.authenticated = true
	c.identity = claims
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	return true
}

// ExpireAuth records that the handshake deadline elapsed, unless the
// connection authenticated first. Called only by the deadline timer; a
// false return means a concurrent Authenticate won and the timeout must
// not evict.
func (c *Connection) ExpireAuth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated || c.authExpired {
		return false
	}
	c.authExpired = true
	return true
}

// IsAuthenticated reports whether the handshake has completed.
func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Identity returns the claims set by Authenticate, or nil before the
// handshake completes.
func (c *Connection) Identity() *auth.Claims {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// MarkAlive records a liveness acknowledgment (or any inbound traffic).
func (c *Connection) MarkAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
	c.lastSeen = time.Now()
}

// SwapAlive sets the alive flag and returns its previous value. The
// liveness monitor clears the flag at the start of each tick and evicts
// connections whose flag was still clear from the previous tick.
func (c *Connection) SwapAlive(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.alive
	c.alive = v
	return prev
}

// LastSeen returns the time of the most recent liveness acknowledgment.
func (c *Connection) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// TryAddSubscriptions adds topics to the subscription set if the result
// would stay within limit. The check and the mutation happen under one
// lock, so a rejected request leaves the set untouched. Topics already
// subscribed do not count twice. Returns whether the request was applied
// and the current full set either way.
func (c *Connection) TryAddSubscriptions(topics []string, limit int) (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, t := range topics {
		if _, ok := c.subscriptions[t]; !ok {
			added++
		}
	}
	if len(c.subscriptions)+added > limit {
		return false, c.subscriptionsLocked()
	}
	for _, t := range topics {
		c.subscriptions[t] = struct{}{}
	}
	return true, c.subscriptionsLocked()
}

// RemoveSubscriptions removes the named topics. Names not currently
// subscribed are ignored. Returns the current full set.
func (c *Connection) RemoveSubscriptions(topics []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subscriptions, t)
	}
	return c.subscriptionsLocked()
}

// ClearSubscriptions empties the subscription set and returns the topics
// that were removed.
func (c *Connection) ClearSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.subscriptionsLocked()
	c.subscriptions = make(map[string]struct{})
	return removed
}

// Subscriptions returns a sorted copy of the current topic set.
func (c *Connection) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptionsLocked()
}

// SubscriptionCount returns the size of the current topic set.
func (c *Connection) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// IsSubscribed reports whether the connection currently subscribes to the
// topic. Broadcast code calls this at send time rather than caching the
// answer.
func (c *Connection) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func (c *Connection) subscriptionsLocked() []string {
	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
