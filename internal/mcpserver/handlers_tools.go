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

	"github.com/tombee/mcpcore/internal/taskrouter"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
)

func handleToolsList(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	regs := s.tools.List()
	out := make([]wireTool, 0, len(regs))
	for _, reg := range regs {
		out = append(out, wireTool{Name: reg.Name, Description: reg.Description, InputSchema: reg.InputSchema})
	}
	return &toolsListResult{Tools: out}, nil
}

// handleToolsCall implements the "tools/call" method: it
// authorizes the call (if a ToolAuthorizer is configured), routes
// task-augmented calls to the router instead of executing immediately,
// and otherwise threads auth context into the tool's extra data and runs
// it through invokeTool. When the call's `_meta._task_id` names a working
// workflow task — the client-continuation path — the tool's result
// is also recorded against that task's parked step after the normal
// response is computed — the caller still gets the tool's own result back.
func handleToolsCall(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var params toolsCallParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	reg, ok := s.tools.Get(params.Name)
	if !ok {
		return nil, toRPCError(errUnknownTool(params.Name))
	}

	auth, _ := AuthContextFromContext(ctx)
	if s.authorizer != nil {
		allowed, err := s.authorizer.Authorize(ctx, auth, params.Name)
		if err != nil {
			return nil, toRPCError(err)
		}
		if !allowed {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeAuthorizationDenied, Message: "not authorized to call tool " + params.Name}
		}
	}

	wantsTask := len(params.Task) > 0 && !isJSONNull(params.Task)
	taskSupport := taskrouter.ToolRequiresTask(reg.ExecutionMeta)
	if (wantsTask || taskSupport) && s.router != nil {
		owner := s.router.ResolveOwner(stringPtr(auth.Subject), stringPtr(auth.ClientID), nil)
		result, rpcErr := s.router.HandleTaskCall(ctx, params.Name, params.Arguments, params.Task, owner, params.Meta.ProgressToken)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return result, nil
	}

	extra := middleware.NewToolExtra()
	extra.Metadata["auth"] = auth
	result, err := s.invokeTool(ctx, params.Name, params.Arguments, extra)
	if err != nil {
		return nil, toRPCError(err)
	}

	if params.Meta.TaskID != "" && s.router != nil {
		owner := s.router.ResolveOwner(stringPtr(auth.Subject), stringPtr(auth.ClientID), nil)
		if raw, marshalErr := json.Marshal(result); marshalErr == nil {
			s.router.AdvanceWorkflowContinuation(ctx, params.Meta.TaskID, owner, params.Name, raw)
		}
	}

	return result, nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isJSONNull(raw []byte) bool {
	trimmed := make([]byte, 0, len(raw))
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		trimmed = append(trimmed, b)
	}
	return string(trimmed) == "null"
}
