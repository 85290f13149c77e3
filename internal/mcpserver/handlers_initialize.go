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

import (
	"context"

	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// handleInitialize implements the "initialize" method: it stores
// client capabilities, negotiates the protocol version, and marks the
// server initialized. In stateless mode this still runs and still
// negotiates a version, it just isn't a precondition for other methods.
func handleInitialize(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var params initializeParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	negotiated := jsonrpc.NegotiateProtocolVersion(params.ProtocolVersion)

	s.mu.Lock()
	s.initialized = true
	s.protocolVersion = negotiated
	clientInfo := params.ClientInfo
	s.clientInfo = &clientInfo
	clientCaps := params.Capabilities
	s.clientCapability = &clientCaps
	s.mu.Unlock()

	return &initializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
	}, nil
}
