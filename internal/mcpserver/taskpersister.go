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
)

// routerPersister adapts *taskrouter.Router to pkg/workflow/engine's
// TaskPersister interface. The router's methods return *jsonrpc.Error (and,
// for CompleteWorkflowTask, an extra *tasks.TaskRecord the engine has no
// use for), not the plain `error` TaskPersister expects, so a direct
// method-value assignment doesn't satisfy the interface; this adapter
// bridges the two return shapes.
type routerPersister struct {
	router *taskrouter.Router
}

// newRouterPersister wraps router as an engine.TaskPersister.
func newRouterPersister(router *taskrouter.Router) *routerPersister {
	return &routerPersister{router: router}
}

func (p *routerPersister) SetTaskVariables(ctx context.Context, taskID, owner string, variables map[string]json.RawMessage) error {
	if rpcErr := p.router.SetTaskVariables(ctx, taskID, owner, variables); rpcErr != nil {
		return rpcErr
	}
	return nil
}

func (p *routerPersister) CompleteWorkflowTask(ctx context.Context, taskID, owner string, result json.RawMessage) error {
	_, rpcErr := p.router.CompleteWorkflowTask(ctx, taskID, owner, result)
	if rpcErr != nil {
		return rpcErr
	}
	return nil
}
