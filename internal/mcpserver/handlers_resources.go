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

// handleResourcesList implements the "resources/list" method. A
// server with no resource registry configured reports an empty list
// rather than an error: an empty resource handler is "none", not
// "unsupported" (see ResourceRegistry's doc comment).
func handleResourcesList(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	if s.resources == nil {
		return &resourcesListResult{Resources: []wireResource{}}, nil
	}
	regs := s.resources.List()
	out := make([]wireResource, 0, len(regs))
	for _, reg := range regs {
		out = append(out, wireResource{URI: reg.URI, Name: reg.Name, Description: reg.Description, MimeType: reg.MimeType})
	}
	return &resourcesListResult{Resources: out}, nil
}

func handleResourcesRead(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var params resourcesReadParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	if s.resources == nil {
		return nil, toRPCError(errUnknownResource(params.URI))
	}

	reg, ok := s.resources.Get(params.URI)
	if !ok {
		return nil, toRPCError(errUnknownResource(params.URI))
	}
	text, err := reg.Fetch(ctx, params.URI)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &resourcesReadResult{Contents: []resourceContent{{URI: params.URI, MimeType: reg.MimeType, Text: text}}}, nil
}

// handleResourceTemplatesList reports no URI templates: this server
// exposes only statically registered resources, never templated ones.
func handleResourceTemplatesList(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	return &resourceTemplatesListResult{ResourceTemplates: []resourceTemplate{}}, nil
}
