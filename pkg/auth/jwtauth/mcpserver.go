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

import "github.com/tombee/mcpcore/internal/mcpserver"

// ToMCPAuthContext narrows a jwtauth.AuthContext to
// internal/mcpserver.AuthContext's shape, dropping ExpiresAt (the
// server core has no use for a token's expiry once a call is already
// dispatched).
func (a AuthContext) ToMCPAuthContext() mcpserver.AuthContext {
	return mcpserver.AuthContext{
		Subject:       a.Subject,
		Scopes:        a.Scopes,
		Claims:        a.Claims,
		Token:         a.Token,
		ClientID:      a.ClientID,
		Authenticated: a.Authenticated,
	}
}
