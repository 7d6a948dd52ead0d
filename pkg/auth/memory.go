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

package auth

import (
	"fmt"
	"sync"
)

// MemoryVerifier resolves tokens against an in-memory table. It backs
// development setups and tests where no credential service is running.
type MemoryVerifier struct {
	tokens map[string]Claims
	mu     sync.RWMutex
}

// NewMemoryVerifier creates an empty in-memory verifier.
func NewMemoryVerifier() *MemoryVerifier {
	return &MemoryVerifier{tokens: make(map[string]Claims)}
}

// Name identifies this verifier in logs.
func (mv *MemoryVerifier) Name() string {
	return "memory"
}

// AddToken registers a token and the identity it resolves to.
func (mv *MemoryVerifier) AddToken(token string, claims Claims) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if claims.Username == "" {
		return fmt.Errorf("claims for token must carry a username")
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.tokens[token] = claims
	return nil
}

// RemoveToken revokes a token. Removing an unknown token is a no-op.
func (mv *MemoryVerifier) RemoveToken(token string) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	delete(mv.tokens, token)
}

// Verify looks the token up in the table.
func (mv *MemoryVerifier) Verify(token string) (*Claims, error) {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	claims, ok := mv.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	c := claims
	return &c, nil
}
