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

// Package protocol defines the gateway's wire format: a small JSON envelope
// of the form {"type": "...", "data": {...}} carried in UTF-8 text frames,
// plus the typed payloads for every recognized message kind and a dispatch
// table that lets the surrounding application register additional kinds
// without touching the handshake or subscription code.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types (client to server).
const (
	TypeAuth        = "auth"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Outbound message types (server to client).
const (
	TypeConnected    = "connected"
	TypeAuthRequired = "auth:required"
	TypeAuthSuccess  = "auth:success"
	TypeAuthFailed   = "auth:failed"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// Error codes carried in ErrorPayload.Code. Clients rely on these being
// distinct; in particular the three authentication outcomes must never
// collapse into one generic code.
const (
	CodeAuthRequired      = "authentication_required"
	CodeAuthFailed        = "authentication_failed"
	CodeAuthTimeout       = "authentication_timeout"
	CodeSubscriptionLimit = "subscription_limit_exceeded"
	CodeMalformed         = "malformed_message"
)

// ErrMalformed is returned by Decode for frames that are not valid envelope
// JSON or that lack a message type.
var ErrMalformed = errors.New("malformed message envelope")

// Envelope is the wrapper for every protocol message in both directions.
// Data is left raw on decode so each handler unmarshals only its own
// payload type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AuthRequest is the payload of an inbound "auth" message.
type AuthRequest struct {
	Token string `json:"token"`
}

// AuthSuccess is the payload of the "auth:success" acknowledgment.
type AuthSuccess struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SubscribeRequest is the payload of "subscribe" and "unsubscribe". Clients
// may send either a single topic or a list; Requested merges the two forms.
// An unsubscribe with neither field clears the full set.
type SubscribeRequest struct {
	Topic  string   `json:"topic,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// Requested returns the union of the Topic and Topics fields in request
// order.
func (r *SubscribeRequest) Requested() []string {
	var topics []string
	if r.Topic != "" {
		topics = append(topics, r.Topic)
	}
	topics = append(topics, r.Topics...)
	return topics
}

// TopicList is the payload of "subscribed"/"unsubscribed" replies: the
// connection's full current topic set after the mutation.
type TopicList struct {
	Topics []string `json:"topics"`
}

// ErrorPayload is the payload of "error" and "auth:failed" messages.
type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Decode parses a raw frame into an Envelope. A frame that is not valid
// JSON, is not an object, or carries an empty type yields ErrMalformed;
// the caller replies with a decode error and keeps the connection open.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &env, nil
}

// Encode builds the wire bytes for an envelope of the given type. A nil
// payload produces an envelope with no data field.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		env.Data = data
	}
	return json.Marshal(&env)
}

// MustEncode is Encode for payloads that cannot fail to marshal (the
// protocol's own payload structs). It panics on error, which would indicate
// a programming bug rather than bad input.
func MustEncode(msgType string, payload any) []byte {
	frame, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// EncodeError builds an "error" envelope with the given code and message.
func EncodeError(code, message string) []byte {
	return MustEncode(TypeError, &ErrorPayload{Code: code, Error: message})
}
