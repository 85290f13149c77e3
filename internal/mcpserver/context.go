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

package mcpserver

import "context"

type authContextKey struct{}

// ContextWithAuth attaches an authenticated caller's AuthContext to ctx.
// A transport (C9's streamhttp, or any other) that validated a bearer
// token calls this before Dispatch so "tools/call" and the
// ToolAuthorizer see who is calling.
func ContextWithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthContextFromContext retrieves the AuthContext attached by
// ContextWithAuth. The zero value (Authenticated: false) is returned when
// none was attached, so an unauthenticated server still dispatches
// normally.
func AuthContextFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}
