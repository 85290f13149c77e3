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
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validator verifies RS256 bearer tokens against a shared, multi-tenant
// JWKS cache. One Validator serves any number of ValidationConfigs.
type Validator struct {
	jwks *JWKSCache
}

// NewValidator builds a Validator with its own JWKS cache. httpClient
// may be nil to use http.DefaultClient; jwksTTL may be zero to use the
// cache's default.
func NewValidator(jwksTTL time.Duration, httpClient *http.Client) *Validator {
	return &Validator{jwks: NewJWKSCache(jwksTTL, httpClient)}
}

// Validate parses the JWT header for kid, resolves the signing key from
// the JWKS cache (refetching on miss), verifies
// signature/issuer/audience/expiration, checks token_use when required,
// normalizes claims, extracts scopes, and produces an AuthContext.
func (v *Validator) Validate(ctx context.Context, rawToken string, cfg ValidationConfig) (*AuthContext, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrAuthenticationRequired)
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(time.Duration(cfg.LeewaySeconds) * time.Second)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.jwks.lookup(ctx, cfg.JWKSURI, kid)
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
	}

	if cfg.RequiredTokenUse != "" {
		use, _ := claims["token_use"].(string)
		if use != cfg.RequiredTokenUse {
			return nil, fmt.Errorf("%w: token_use %q, want %q", ErrAuthenticationRequired, use, cfg.RequiredTokenUse)
		}
	}

	normalized := normalizeClaims(claims, cfg.ClaimMappings)

	subject, _ := normalized[cfg.ClaimMappings.userIDClaim()].(string)
	if subject == "" {
		subject, _ = claims["sub"].(string)
	}

	clientID, _ := claims["client_id"].(string)
	if clientID == "" {
		clientID, _ = claims["azp"].(string)
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &AuthContext{
		Subject:       subject,
		Scopes:        extractScopes(claims),
		Claims:        normalized,
		Token:         rawToken,
		ClientID:      clientID,
		ExpiresAt:     expiresAt,
		Authenticated: true,
	}, nil
}

// normalizeClaims copies the claims named by mappings under their
// normalized key, leaving the source claim in place.
func normalizeClaims(claims jwt.MapClaims, mappings ClaimMappings) map[string]any {
	out := make(map[string]any, len(claims)+4)
	for k, v := range claims {
		out[k] = v
	}
	copyClaim := func(normalized, source string) {
		if source == "" {
			return
		}
		if val, ok := claims[source]; ok {
			out[normalized] = val
		}
	}
	copyClaim("user_id", mappings.userIDClaim())
	copyClaim("tenant_id", mappings.TenantID)
	copyClaim("email", mappings.Email)
	copyClaim("groups", mappings.Groups)
	return out
}

// extractScopes reads the "scope" claim (a space-separated string, per
// OAuth2, or an array) or falls back to Azure's "scp" claim.
func extractScopes(claims jwt.MapClaims) []string {
	if scopes := scopesFromClaim(claims["scope"]); len(scopes) > 0 {
		return scopes
	}
	return scopesFromClaim(claims["scp"])
}

func scopesFromClaim(raw any) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return strings.Fields(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
