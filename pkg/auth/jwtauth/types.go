// Copyright 2025 Tom Barlow
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

package jwtauth

import (
	"errors"
	"time"
)

// ErrAuthenticationRequired is returned for any validation failure: a bad
// signature, an unknown kid after a JWKS refresh, an expired token, or a
// issuer/audience/token_use mismatch. The returned error wraps it and
// appends the specific cause to its message; streamhttp's Server logs that
// error and dispatches the request unauthenticated, so the cause does not
// reach the HTTP client.
var ErrAuthenticationRequired = errors.New("jwtauth: authentication required")

// ClaimMappings names the source claims a ValidationConfig normalizes
// into AuthContext fields. Each named claim is copied under its
// normalized name; the original claim is left in AuthContext.Claims
// untouched.
type ClaimMappings struct {
	// UserID is the claim holding the caller's subject (e.g. "sub",
	// or "username" for some Cognito pools). Defaults to "sub".
	UserID string
	// TenantID is the claim holding a multi-tenant identifier, if any.
	TenantID string
	// Email is the claim holding the caller's email address, if any.
	Email string
	// Groups is the claim holding a group/role list, if any.
	Groups string
}

// userIDClaim returns the configured UserID claim name, defaulting to
// the JWT-standard "sub".
func (m ClaimMappings) userIDClaim() string {
	if m.UserID == "" {
		return "sub"
	}
	return m.UserID
}

// ValidationConfig parameterizes one issuer's validation rules. A
// Validator is shared across any number of ValidationConfigs, one per
// tenant or provider.
type ValidationConfig struct {
	Issuer           string
	JWKSURI          string
	Audience         string
	LeewaySeconds    int
	RequiredTokenUse string
	ClaimMappings    ClaimMappings
}

// AuthContext is the normalized identity produced by a successful
// Validate call. Its field set mirrors internal/mcpserver.AuthContext
// so ToMCPAuthContext is a narrowing copy, not a rewrite; ExpiresAt has
// no counterpart there since the server core never needs a token's
// expiry once a call is already in flight.
type AuthContext struct {
	Subject       string
	Scopes        []string
	Claims        map[string]any
	Token         string
	ClientID      string
	ExpiresAt     time.Time
	Authenticated bool
}
