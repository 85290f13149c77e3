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
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tombee/mcpcore/internal/mcpserver"
)

// MultiTenantAuthenticator resolves a bearer token's ValidationConfig
// from its unverified issuer claim, then validates it with a shared
// Validator: a single instance holds a cache keyed by jwks_uri and serves
// any number of registered issuers. It implements
// pkg/transport/streamhttp.Authenticator structurally.
type MultiTenantAuthenticator struct {
	validator *Validator

	mu       sync.RWMutex
	byIssuer map[string]ValidationConfig
}

// NewMultiTenantAuthenticator builds an authenticator with no issuers
// registered; call Register for each tenant/provider before use.
func NewMultiTenantAuthenticator(validator *Validator) *MultiTenantAuthenticator {
	return &MultiTenantAuthenticator{
		validator: validator,
		byIssuer:  make(map[string]ValidationConfig),
	}
}

// Register adds or replaces the ValidationConfig for cfg.Issuer.
func (a *MultiTenantAuthenticator) Register(cfg ValidationConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byIssuer[cfg.Issuer] = cfg
}

// Authenticate implements streamhttp.Authenticator: it reads the
// token's issuer claim without verifying the signature, looks up the
// matching registered ValidationConfig, and delegates to Validator.
func (a *MultiTenantAuthenticator) Authenticate(ctx context.Context, token string) (mcpserver.AuthContext, error) {
	issuer, err := unverifiedIssuer(token)
	if err != nil {
		return mcpserver.AuthContext{}, fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
	}

	a.mu.RLock()
	cfg, ok := a.byIssuer[issuer]
	a.mu.RUnlock()
	if !ok {
		return mcpserver.AuthContext{}, fmt.Errorf("%w: unregistered issuer %q", ErrAuthenticationRequired, issuer)
	}

	auth, err := a.validator.Validate(ctx, token, cfg)
	if err != nil {
		return mcpserver.AuthContext{}, err
	}
	return auth.ToMCPAuthContext(), nil
}

// unverifiedIssuer extracts the "iss" claim from a JWT without
// verifying its signature, purely to select which registered issuer's
// ValidationConfig (and therefore which JWKS endpoint) to validate
// against.
func unverifiedIssuer(rawToken string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(rawToken, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return "", fmt.Errorf("token has no issuer claim")
	}
	return issuer, nil
}
