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

// Package gateway contains the real-time event gateway core: it accepts
// connections from the transport adapter, drives the authenticate-before-use
// handshake, dispatches steady-state protocol messages, and runs the
// liveness monitor and per-topic fan-out schedulers under a supervisor.
//
// A connection moves through a small state machine. It starts pending
// authentication: the only message it may send is "auth", and a deadline
// timer evicts it if no valid credential arrives in time. A successful
// handshake makes it eligible for subscriptions and fan-out; an invalid
// credential or an elapsed deadline closes it with its own distinct reason.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse-go/pkg/auth"
	"github.com/opspulse/opspulse-go/pkg/fanout"
	"github.com/opspulse/opspulse-go/pkg/metrics"
	"github.com/opspulse/opspulse-go/pkg/monitor"
	"github.com/opspulse/opspulse-go/pkg/protocol"
	"github.com/opspulse/opspulse-go/pkg/registry"
	"github.com/opspulse/opspulse-go/pkg/subscription"
	"github.com/opspulse/opspulse-go/pkg/supervisor"
	"github.com/opspulse/opspulse-go/pkg/telemetry"
	"github.com/opspulse/opspulse-go/pkg/topic"
)

// Options are the gateway's connection-handling tunables.
type Options struct {
	// MaxSubscriptionsPerClient caps each connection's topic set.
	MaxSubscriptionsPerClient int
	// AuthTimeout is how long a fresh connection may stay
	// unauthenticated before it is closed.
	AuthTimeout time.Duration
	// HeartbeatInterval is the liveness probe cadence.
	HeartbeatInterval time.Duration
	// SendBuffer is the per-connection outbound queue capacity.
	SendBuffer int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxSubscriptionsPerClient <= 0 {
		opts.MaxSubscriptionsPerClient = 10
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 30 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return opts
}

// Gateway wires the registry, handshake, subscription manager, liveness
// monitor and fan-out schedulers into one instance. Instances are
// self-contained; several can coexist in one process.
type Gateway struct {
	opts       Options
	verifier   auth.Verifier
	reg        *registry.Registry
	subs       *subscription.Manager
	dispatcher *protocol.Dispatcher
	scheduler  *fanout.Scheduler
	liveness   *monitor.Liveness
	sup        supervisor.Supervisor
}

// New creates a gateway using the given credential verifier, topic catalog,
// and per-topic telemetry generators.
func New(opts Options, verifier auth.Verifier, catalog *topic.Catalog, generators map[string]telemetry.Generator) *Gateway {
	o := opts.withDefaults()
	reg := registry.New()
	g := &Gateway{
		opts:       o,
		verifier:   verifier,
		reg:        reg,
		subs:       subscription.NewManager(catalog, o.MaxSubscriptionsPerClient),
		dispatcher: protocol.NewDispatcher(),
		scheduler:  fanout.NewScheduler(reg, catalog, generators),
		liveness:   monitor.NewLiveness(reg, o.HeartbeatInterval),
		sup:        supervisor.NewOneForOneSupervisor(),
	}

	g.dispatcher.Register(protocol.TypePing, g.handlePing)
	g.dispatcher.Register(protocol.TypePong, g.handlePong)
	g.dispatcher.Register(protocol.TypeSubscribe, g.handleSubscribe)
	g.dispatcher.Register(protocol.TypeUnsubscribe, g.handleUnsubscribe)
	return g
}

// Registry exposes the connection registry to read-only collaborators (the
// admin API).
func (g *Gateway) Registry() *registry.Registry { return g.reg }

// RegisterHandler installs an additional steady-state message handler,
// e.g. operator or debug commands. Call before Start.
func (g *Gateway) RegisterHandler(msgType string, h protocol.Handler) {
	g.dispatcher.Register(msgType, h)
}

// Start launches the liveness monitor and one fan-out scheduler per topic
// under the supervisor. Non-blocking; the loops stop when ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	specs := append(g.scheduler.Specs(), supervisor.Spec{
		ID:      "liveness-monitor",
		Runner:  g.liveness,
		Restart: supervisor.RestartPermanent,
	})
	return g.sup.Start(ctx, specs)
}

// Shutdown closes every connection with the shutdown reason and empties
// the registry.
func (g *Gateway) Shutdown() {
	n := g.reg.Drain(registry.ReasonShutdown)
	metrics.ConnectionsActive.Sub(float64(n))
	log.Printf("Gateway drained %d connections on shutdown", n)
}

// Accept registers a new, unauthenticated connection: it gets an ID, a
// welcome notice, the authentication challenge, and a handshake deadline.
// The transport adapter calls this once per upgraded socket.
func (g *Gateway) Accept(remoteAddr string) *registry.Connection {
	c := registry.NewConnection(uuid.NewString(), remoteAddr, g.opts.SendBuffer)
	g.reg.Add(c)
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	log.Printf("Accepted connection %s from %s", c.ID(), remoteAddr)

	g.send(c, protocol.MustEncode(protocol.TypeConnected, map[string]string{"connection_id": c.ID()}))
	g.send(c, protocol.MustEncode(protocol.TypeAuthRequired, nil))

	c.SetAuthTimer(time.AfterFunc(g.opts.AuthTimeout, func() { g.authTimeout(c) }))
	return c
}

// Disconnect finalizes a connection whose transport link is gone. Safe to
// call for connections the gateway already evicted.
func (g *Gateway) Disconnect(c *registry.Connection) {
	g.evict(c, registry.ReasonClientGone)
}

// HandleMessage processes one inbound frame from a connection. Called by
// the transport's read loop, so per-connection ordering follows arrival
// order.
func (g *Gateway) HandleMessage(c *registry.Connection, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("Malformed message from %s: %v", c.ID(), err)
		g.send(c, protocol.EncodeError(protocol.CodeMalformed, "could not decode message"))
		return
	}

	// Any well-formed inbound traffic counts as a liveness signal.
	c.MarkAlive()

	if !c.IsAuthenticated() {
		if env.Type == protocol.TypeAuth {
			g.handleAuth(c, env)
			return
		}
		// The deadline keeps running; the connection stays open.
		g.send(c, protocol.EncodeError(protocol.CodeAuthRequired, "not authenticated"))
		return
	}

	g.dispatcher.Dispatch(c, env)
}

func (g *Gateway) handleAuth(c *registry.Connection, env *protocol.Envelope) {
	var req protocol.AuthRequest
	if env.Data != nil {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			g.send(c, protocol.EncodeError(protocol.CodeMalformed, "could not decode auth payload"))
			return
		}
	}

	claims, err := g.verifier.Verify(req.Token)
	if err != nil {
		log.Printf("Authentication failed for %s: %v", c.ID(), err)
		metrics.AuthTotal.WithLabelValues("failed").Inc()
		msg := "invalid credentials"
		if errors.Is(err, auth.ErrExpiredToken) {
			msg = "credentials expired"
		}
		g.send(c, protocol.MustEncode(protocol.TypeAuthFailed, &protocol.ErrorPayload{
			Code:  protocol.CodeAuthFailed,
			Error: msg,
		}))
		// No retry on the same connection.
		g.evict(c, registry.ReasonAuthFailed)
		return
	}

	if !c.Authenticate(claims) {
		// The handshake deadline elapsed first; the timeout path owns
		// the eviction.
		return
	}
	metrics.AuthTotal.WithLabelValues("success").Inc()
	log.Printf("Connection %s authenticated as %s (%s)", c.ID(), claims.Username, claims.Role)
	g.send(c, protocol.MustEncode(protocol.TypeAuthSuccess, &protocol.AuthSuccess{
		Username: claims.Username,
		Role:     claims.Role,
	}))
}

func (g *Gateway) authTimeout(c *registry.Connection) {
	if !c.ExpireAuth() || !c.IsOpen() {
		return
	}
	log.Printf("Connection %s failed to authenticate within %s", c.ID(), g.opts.AuthTimeout)
	metrics.AuthTotal.WithLabelValues("timeout").Inc()
	g.send(c, protocol.EncodeError(protocol.CodeAuthTimeout, "authentication timeout"))
	g.evict(c, registry.ReasonAuthTimeout)
}

func (g *Gateway) handlePing(s protocol.Sender, _ *protocol.Envelope) {
	if err := s.Send(protocol.MustEncode(protocol.TypePong, nil)); err != nil {
		metrics.SendFailuresTotal.Inc()
	}
}

// handlePong acknowledges a liveness probe. HandleMessage already marked
// the connection alive; registering the type keeps it out of the
// unknown-message log.
func (g *Gateway) handlePong(protocol.Sender, *protocol.Envelope) {}

func (g *Gateway) handleSubscribe(s protocol.Sender, env *protocol.Envelope) {
	c, ok := s.(*registry.Connection)
	if !ok {
		return
	}
	req, ok := g.decodeSubscribeRequest(c, env)
	if !ok {
		return
	}

	current, err := g.subs.Subscribe(c, req.Requested())
	if err != nil {
		g.send(c, protocol.EncodeError(protocol.CodeSubscriptionLimit, err.Error()))
		return
	}
	log.Printf("Connection %s subscriptions now %v", c.ID(), current)
	g.send(c, protocol.MustEncode(protocol.TypeSubscribed, &protocol.TopicList{Topics: current}))
}

func (g *Gateway) handleUnsubscribe(s protocol.Sender, env *protocol.Envelope) {
	c, ok := s.(*registry.Connection)
	if !ok {
		return
	}
	req, ok := g.decodeSubscribeRequest(c, env)
	if !ok {
		return
	}

	current := g.subs.Unsubscribe(c, req.Requested())
	g.send(c, protocol.MustEncode(protocol.TypeUnsubscribed, &protocol.TopicList{Topics: current}))
}

func (g *Gateway) decodeSubscribeRequest(c *registry.Connection, env *protocol.Envelope) (*protocol.SubscribeRequest, bool) {
	var req protocol.SubscribeRequest
	if env.Data != nil {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			g.send(c, protocol.EncodeError(protocol.CodeMalformed, "could not decode topic list"))
			return nil, false
		}
	}
	return &req, true
}

// send queues a frame for one connection, treating failures as isolated
// per-recipient events.
func (g *Gateway) send(c *registry.Connection, frame []byte) {
	if err := c.Send(frame); err != nil {
		metrics.SendFailuresTotal.Inc()
		if !errors.Is(err, registry.ErrConnectionClosed) {
			log.Printf("Dropping frame for %s: %v", c.ID(), err)
		}
	}
}

// evict closes the connection with the given reason (the first close wins)
// and removes it from the registry. Removal cascades: a removed connection
// is out of every topic's subscriber set and receives no further fan-out.
func (g *Gateway) evict(c *registry.Connection, reason registry.CloseReason) {
	c.Close(reason)
	if removed := g.reg.Remove(c.ID()); removed != nil {
		metrics.ConnectionsActive.Dec()
		log.Printf("Connection %s removed (%s)", c.ID(), c.CloseReason())
	}
}
