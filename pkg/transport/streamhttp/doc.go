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

// Package streamhttp implements the MCP streamable HTTP transport: a
// single endpoint that accepts POST (JSON-RPC request/notification/
// response), GET (server-initiated SSE push), and DELETE (session
// termination), with mcp-session-id/mcp-protocol-version header
// continuity, Last-Event-ID resumption, and an HTTP middleware chain
// that mirrors the protocol middleware chain's contract over raw HTTP.
package streamhttp
