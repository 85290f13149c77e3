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

	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

func handlePromptsList(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	regs := s.prompts.List()
	out := make([]wirePrompt, 0, len(regs))
	for _, reg := range regs {
		args := make([]promptArgumentWireEntry, 0, len(reg.Definition.Arguments()))
		for _, a := range reg.Definition.Arguments() {
			args = append(args, promptArgumentWireEntry{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, wirePrompt{Name: reg.Name, Description: reg.Definition.Description(), Arguments: args})
	}
	return &promptsListResult{Prompts: out}, nil
}

// handlePromptsGet implements the "prompts/get" method: it runs
// the named workflow's engine (task-backed when the workflow declares
// TaskSupport and a router is configured, otherwise a single synchronous
// run) and returns the rendered GetPromptResult.
func handlePromptsGet(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	var params promptsGetParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	reg, ok := s.prompts.Get(params.Name)
	if !ok {
		return nil, toRPCError(errUnknownPrompt(params.Name))
	}
	if s.engine == nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "no workflow engine configured"}
	}

	var taskID, owner string
	if reg.Definition.TaskSupport() && s.router != nil {
		auth, _ := AuthContextFromContext(ctx)
		owner = s.router.ResolveOwner(stringPtr(auth.Subject), stringPtr(auth.ClientID), nil)

		progress, err := json.Marshal(map[string]any{"goal": reg.Definition.Description()})
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: err.Error()}
		}
		created, rpcErr := s.router.CreateWorkflowTask(ctx, reg.Name, owner, progress)
		if rpcErr != nil {
			return nil, rpcErr
		}
		taskID = created.Task.TaskID
	}

	result, err := s.engine.Run(ctx, reg.Definition, params.Arguments, taskID, owner, s.persister)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}
