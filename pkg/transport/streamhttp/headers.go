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

package streamhttp

// Header names used by the streamable HTTP transport.
// The API surface treats header names as case-insensitive; net/http's
// header map (and gin's, which wraps it) already normalizes lookups, so
// these constants only need to match on write.
const (
	HeaderSessionID      = "Mcp-Session-Id"
	HeaderProtocolVersion = "Mcp-Protocol-Version"
	HeaderLastEventID    = "Last-Event-ID"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"
	acceptBoth      = "application/json, text/event-stream"
)
