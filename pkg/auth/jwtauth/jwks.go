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
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// jwk is a single entry of an RFC 7517 JSON Web Key Set, restricted to
// the fields an RS256 key needs.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// toRSAPublicKey decodes the key's base64url modulus and exponent into
// an *rsa.PublicKey, per RFC 7518 §6.3.1.
func (k jwk) toRSAPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: decode modulus for kid %q: %w", k.Kid, err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: decode exponent for kid %q: %w", k.Kid, err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// jwksEntry is one cached JWKS document, keyed by kid for verification
// lookups.
type jwksEntry struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (e *jwksEntry) expired(ttl time.Duration) bool {
	return time.Since(e.fetchedAt) > ttl
}

// JWKSCache fetches and caches JWKS documents by URI: on a miss or an
// expired entry it refetches and retries the lookup. A single cache
// instance is safe to share across every tenant's ValidationConfig, since
// entries are keyed by jwks_uri.
type JWKSCache struct {
	mu         sync.Mutex
	entries    map[string]*jwksEntry
	ttl        time.Duration
	httpClient *http.Client
}

// NewJWKSCache builds a cache with the given entry TTL. A zero ttl
// defaults to 15 minutes.
func NewJWKSCache(ttl time.Duration, httpClient *http.Client) *JWKSCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JWKSCache{
		entries:    make(map[string]*jwksEntry),
		ttl:        ttl,
		httpClient: httpClient,
	}
}

// lookup returns the RSA key for (jwksURI, kid), refetching the JWKS
// document on a cache miss, an expired entry, or an unknown kid (a
// provider may have rotated keys since the last fetch).
func (c *JWKSCache) lookup(ctx context.Context, jwksURI, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	entry, ok := c.entries[jwksURI]
	c.mu.Unlock()

	if ok && !entry.expired(c.ttl) {
		if key, found := entry.keys[kid]; found {
			return key, nil
		}
	}

	fresh, err := c.fetch(ctx, jwksURI)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[jwksURI] = fresh
	c.mu.Unlock()

	key, found := fresh.keys[kid]
	if !found {
		return nil, fmt.Errorf("%w: unknown kid %q at %s", ErrAuthenticationRequired, kid, jwksURI)
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context, jwksURI string) (*jwksEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: build JWKS request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: fetch JWKS from %s: %w", jwksURI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwtauth: JWKS endpoint %s returned %d", jwksURI, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: read JWKS body: %w", err)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("jwtauth: parse JWKS document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.toRSAPublicKey()
		if err != nil {
			return nil, err
		}
		keys[k.Kid] = pub
	}

	return &jwksEntry{keys: keys, fetchedAt: time.Now()}, nil
}
