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
	"encoding/json"

	"github.com/tombee/mcpcore/pkg/middleware"
)

// invokeTool runs a single tool call through the tool middleware chain:
// shared by the "tools/call" handler and by InvokeTool, which the
// workflow engine calls for each of a prompt's steps — the same path a
// live tools/call request uses, including the host's middleware chain.
func (s *Server) invokeTool(ctx context.Context, name string, args json.RawMessage, extra *middleware.ToolExtra) (json.RawMessage, error) {
	reg, ok := s.tools.Get(name)
	if !ok {
		return nil, errUnknownTool(name)
	}

	mctx := middleware.NewContext()
	if err := s.toolChain.Request(ctx, name, &args, extra, mctx); err != nil {
		return nil, err
	}

	result, err := reg.Handler(ctx, args, extra)
	toolResult := &middleware.ToolResult{Content: result, IsError: err != nil}
	if err != nil {
		toolResult.Content, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	s.toolChain.Response(ctx, name, toolResult, mctx)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// InvokeTool implements pkg/workflow/engine.ToolInvoker by delegating to
// invokeTool with a fresh, unauthenticated ToolExtra: a workflow step has
// no bearer identity of its own distinct from the prompt call that
// started it, which is authorized (if at all) at the "prompts/get" level.
func (s *Server) InvokeTool(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	return s.invokeTool(ctx, tool, args, middleware.NewToolExtra())
}
