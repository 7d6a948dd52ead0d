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

package protocol

import "log"

// Sender is the minimal connection surface a message handler needs: an
// identity for logging and a way to push a reply frame.
type Sender interface {
	ID() string
	Send(frame []byte) error
}

// Handler processes one decoded envelope from one connection.
type Handler func(s Sender, env *Envelope)

// Dispatcher routes decoded envelopes to handlers by message type. New
// message kinds (operator or debug commands) register here without any
// change to the built-in handlers. Registration happens during setup, before
// any dispatching, so the map is read without locking afterwards.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register installs a handler for a message type, replacing any previous
// handler for that type.
func (d *Dispatcher) Register(msgType string, h Handler) {
	d.handlers[msgType] = h
}

// Dispatch invokes the handler for the envelope's type. Unknown types are
// logged and dropped; per the protocol they are not an error the client
// hears about.
func (d *Dispatcher) Dispatch(s Sender, env *Envelope) {
	h, ok := d.handlers[env.Type]
	if !ok {
		log.Printf("Ignoring unknown message type %q from %s", env.Type, s.ID())
		return
	}
	h(s, env)
}
