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

// Package auth resolves opaque credential strings into client identities.
// The gateway only ever consumes the Verifier contract; the concrete
// implementations here cover the common deployments (JWT issued by the
// credential service, or a static token table for development and tests).
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or
	// structural validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for well-formed tokens past their
	// expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the identity resolved from a valid credential.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Verifier validates an opaque credential string and returns the identity
// it was issued to.
type Verifier interface {
	// Verify returns the claims for a valid token, or ErrInvalidToken /
	// ErrExpiredToken.
	Verify(token string) (*Claims, error)
	// Name identifies the verifier in logs.
	Name() string
}

// JWTVerifier validates HS256-signed JWTs issued by the credential service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with the given shared
// secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Name identifies this verifier in logs.
func (v *JWTVerifier) Name() string {
	return "jwt"
}

type jwtClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token, mapping the subject, username and
// role claims onto the gateway identity. Tokens with no role claim resolve
// to the least-privileged role.
func (v *JWTVerifier) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username claim", ErrInvalidToken)
	}
	role := claims.Role
	if role == "" {
		role = "viewer"
	}
	return &Claims{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     role,
	}, nil
}
