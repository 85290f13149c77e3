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

// AuthContext is the authenticated identity threaded into a tool call's
// extra data. It mirrors pkg/auth/jwtauth.AuthContext's shape without this
// package importing jwtauth, so a server can run with no authentication
// configured at all (Subject/ClientID empty, Authenticated false).
type AuthContext struct {
	Subject       string
	Scopes        []string
	Claims        map[string]any
	Token         string
	ClientID      string
	Authenticated bool
}

// ToolAuthorizer decides whether an authenticated caller may invoke a
// given tool, consulted before "tools/call". A nil
// ToolAuthorizer on Server permits every call.
type ToolAuthorizer interface {
	Authorize(ctx context.Context, auth AuthContext, tool string) (bool, error)
}

// ToolAuthorizerFunc adapts a function to ToolAuthorizer.
type ToolAuthorizerFunc func(ctx context.Context, auth AuthContext, tool string) (bool, error)

func (f ToolAuthorizerFunc) Authorize(ctx context.Context, auth AuthContext, tool string) (bool, error) {
	return f(ctx, auth, tool)
}
