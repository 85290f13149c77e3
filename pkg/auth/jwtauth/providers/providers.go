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

// Package providers builds jwtauth.ValidationConfig values for common
// identity providers, each a thin factory from the tuple that provider's
// console actually hands an operator (a region/pool pair, or a domain),
// rather than requiring the caller to know every provider's JWKS URL and
// claim layout by hand.
package providers

import "github.com/tombee/mcpcore/pkg/auth/jwtauth"

// Cognito builds a ValidationConfig for an AWS Cognito user pool.
// Cognito access tokens (not ID tokens) carry a "token_use":"access"
// claim and a "client_id" claim rather than "aud", so RequiredTokenUse
// is set here instead of Audience; clientID is accepted to match this
// provider's (region, pool, client_id) tuple and is available to the
// caller as AuthContext.ClientID for a post-validation check, since
// Cognito access tokens have no audience claim to validate against
// directly.
func Cognito(region, poolID, clientID string) jwtauth.ValidationConfig {
	issuer := "https://cognito-idp." + region + ".amazonaws.com/" + poolID
	return jwtauth.ValidationConfig{
		Issuer:           issuer,
		JWKSURI:          issuer + "/.well-known/jwks.json",
		RequiredTokenUse: "access",
		ClaimMappings: jwtauth.ClaimMappings{
			UserID: "username",
			Groups: "cognito:groups",
		},
	}
}

// Google builds a ValidationConfig for Google-issued ID tokens.
func Google(clientID string) jwtauth.ValidationConfig {
	return jwtauth.ValidationConfig{
		Issuer:   "https://accounts.google.com",
		JWKSURI:  "https://www.googleapis.com/oauth2/v3/certs",
		Audience: clientID,
		ClaimMappings: jwtauth.ClaimMappings{
			UserID: "sub",
			Email:  "email",
		},
	}
}

// Auth0 builds a ValidationConfig for an Auth0 tenant domain, e.g.
// "tenant.us.auth0.com".
func Auth0(domain, clientID string) jwtauth.ValidationConfig {
	issuer := "https://" + domain + "/"
	return jwtauth.ValidationConfig{
		Issuer:   issuer,
		JWKSURI:  issuer + ".well-known/jwks.json",
		Audience: clientID,
		ClaimMappings: jwtauth.ClaimMappings{
			UserID: "sub",
			Email:  "email",
		},
	}
}

// Okta builds a ValidationConfig for an Okta org authorization server
// domain, e.g. "dev-12345.okta.com".
func Okta(domain, clientID string) jwtauth.ValidationConfig {
	issuer := "https://" + domain + "/oauth2/default"
	return jwtauth.ValidationConfig{
		Issuer:   issuer,
		JWKSURI:  issuer + "/v1/keys",
		Audience: clientID,
		ClaimMappings: jwtauth.ClaimMappings{
			UserID: "sub",
			Groups: "groups",
		},
	}
}

// Entra builds a ValidationConfig for a Microsoft Entra ID (Azure AD)
// tenant. Entra tokens carry scopes under "scp", which Validate's scope
// extraction already falls back to without any mapping needed here.
func Entra(tenantID, clientID string) jwtauth.ValidationConfig {
	issuer := "https://login.microsoftonline.com/" + tenantID + "/v2.0"
	return jwtauth.ValidationConfig{
		Issuer:   issuer,
		JWKSURI:  "https://login.microsoftonline.com/" + tenantID + "/discovery/v2.0/keys",
		Audience: clientID,
		ClaimMappings: jwtauth.ClaimMappings{
			UserID: "oid",
			Groups: "groups",
		},
	}
}
