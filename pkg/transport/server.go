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

// package transport is the network edge of the gateway. It upgrades HTTP
// requests on the websocket path to long-lived connections and runs two
// goroutines per connection: a read pump feeding inbound frames to the
// gateway, and a write pump draining the connection's outbound queue onto
// the socket. The gateway core never touches a socket directly.
package transport

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opspulse/opspulse-go/pkg/gateway"
	"github.com/opspulse/opspulse-go/pkg/monitor"
	"github.com/opspulse/opspulse-go/pkg/registry"
)

const (
	// writeWait is the time allowed to write one frame to the peer.
	writeWait = 10 * time.Second
	// maxMessageSize bounds inbound frames; protocol messages are small.
	maxMessageSize = 8 * 1024
)

// Server accepts websocket connections and bridges them to a gateway.
type Server struct {
	gw         *gateway.Gateway
	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup
}

// NewServer creates a transport server exposing the websocket endpoint at
// wsPath and a health endpoint at /healthz.
func NewServer(gw *gateway.Gateway, addr, wsPath string) *Server {
	s := &Server{
		gw:  gw,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard client may be served from another origin
			// (Electron shell, dev server).
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc(wsPath, s.handleWS)
	s.mux.HandleFunc("/healthz", monitor.HealthHandler())
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// Mux exposes the server's route multiplexer so collaborators (the admin
// API) can attach their endpoints.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler returns the server's root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins serving in a new goroutine. It returns once the listener is
// bound, so Addr is valid afterwards.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Printf("Gateway transport listening on %s", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Transport server failed: %v", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down and waits for the serve goroutine.
// Per-connection goroutines exit as the gateway drains their connections.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleWS upgrades the request and runs the connection's read loop. The
// write pump runs in its own goroutine and owns all writes to the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	c := s.gw.Accept(r.RemoteAddr)
	go s.writePump(ws, c)

	ws.SetReadLimit(maxMessageSize)
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			break
		}
		s.gw.HandleMessage(c, frame)
	}
	s.gw.Disconnect(c)
}

// writePump drains the connection's outbound queue onto the socket. When
// the connection is closed it flushes what is already queued (the close
// notice envelope, typically), sends a close frame carrying the close
// reason, and tears the socket down, which also unblocks the read loop.
func (s *Server) writePump(ws *websocket.Conn, c *registry.Connection) {
	defer ws.Close()
	for {
		select {
		case frame := <-c.Outbound():
			if !s.writeFrame(ws, c, frame) {
				return
			}
		case <-c.Done():
			for {
				select {
				case frame := <-c.Outbound():
					if !s.writeFrame(ws, c, frame) {
						return
					}
				default:
					reason := c.CloseReason()
					msg := websocket.FormatCloseMessage(reason.CloseCode(), reason.String())
					ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
						log.Printf("Failed to send close frame to %s: %v", c.ID(), err)
					}
					return
				}
			}
		}
	}
}

func (s *Server) writeFrame(ws *websocket.Conn, c *registry.Connection, frame []byte) bool {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("Write to %s failed: %v", c.ID(), err)
		c.Close(registry.ReasonClientGone)
		return false
	}
	return true
}
