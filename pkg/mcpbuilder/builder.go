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

// Package mcpbuilder is a composition helper: a fluent Builder that wires
// a tool/prompt/resource registry, the protocol and tool middleware
// chains, an optional task store/router, and an optional workflow engine
// into one running *mcpserver.Server, the way a host binary (or test)
// would otherwise have to do by hand.
//
// It follows a functional-options construction style: a single entry
// point a caller builds up with chained calls before handing the result
// to a transport.
package mcpbuilder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tombee/mcpcore/internal/mcpserver"
	"github.com/tombee/mcpcore/internal/taskrouter"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
	"github.com/tombee/mcpcore/pkg/observability"
	"github.com/tombee/mcpcore/pkg/tasks"
	"github.com/tombee/mcpcore/pkg/workflow"
	"github.com/tombee/mcpcore/pkg/workflow/engine"
)

// deferredInvoker satisfies engine.ToolInvoker before the *mcpserver.Server
// it delegates to exists: the engine must be constructed and handed to
// mcpserver.WithTaskSupport before mcpserver.New returns a Server, but the
// engine's invoker is that same Server's InvokeTool method. bind closes the
// loop once Build has its Server in hand.
type deferredInvoker struct {
	target *mcpserver.Server
}

func (d *deferredInvoker) bind(s *mcpserver.Server) { d.target = s }

func (d *deferredInvoker) InvokeTool(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	return d.target.InvokeTool(ctx, tool, args)
}

// Builder accumulates the pieces a Server needs before any of them can be
// wired together (the engine needs the router, the router needs the
// store, the server needs both) and performs that wiring once in Build.
type Builder struct {
	info jsonrpc.Implementation

	serverOpts []mcpserver.Option

	taskStore      *tasks.Store
	engineOpts     []engine.Option
	protocolMiddle []middleware.ProtocolMiddleware
	toolMiddle     []middleware.ToolMiddleware

	tools     []*mcpserver.ToolRegistration
	prompts   []*workflow.WorkflowDefinition
	resources []*mcpserver.ResourceRegistration

	err error
}

// New starts a Builder identifying the server as info.
func New(info jsonrpc.Implementation) *Builder {
	return &Builder{info: info}
}

// WithStateless enables stateless dispatch mode.
func (b *Builder) WithStateless(enabled bool) *Builder {
	b.serverOpts = append(b.serverOpts, mcpserver.WithStateless(enabled))
	return b
}

// WithCapabilities overrides the advertised server capabilities.
func (b *Builder) WithCapabilities(caps jsonrpc.ServerCapabilities) *Builder {
	b.serverOpts = append(b.serverOpts, mcpserver.WithCapabilities(caps))
	return b
}

// WithToolAuthorizer installs the authorizer consulted before tools/call.
func (b *Builder) WithToolAuthorizer(authz mcpserver.ToolAuthorizer) *Builder {
	b.serverOpts = append(b.serverOpts, mcpserver.WithToolAuthorizer(authz))
	return b
}

// WithObservability wires a tracer and sink into the server.
func (b *Builder) WithObservability(tracer observability.Tracer, sink observability.Sink) *Builder {
	b.serverOpts = append(b.serverOpts, mcpserver.WithObservability(tracer, sink))
	return b
}

// WithTaskStore installs the backing store for task support. Build
// rejects a workflow with TaskSupport() true when no store was installed;
// the order of this call relative to WithWorkflow does not matter.
func (b *Builder) WithTaskStore(store *tasks.Store) *Builder {
	b.taskStore = store
	return b
}

// WithEngineOptions appends workflow engine construction options (e.g.
// engine.WithResourceFetcher), applied when Build creates the engine.
func (b *Builder) WithEngineOptions(opts ...engine.Option) *Builder {
	b.engineOpts = append(b.engineOpts, opts...)
	return b
}

// WithProtocolMiddleware registers m on the server's protocol chain.
func (b *Builder) WithProtocolMiddleware(m middleware.ProtocolMiddleware) *Builder {
	b.protocolMiddle = append(b.protocolMiddle, m)
	return b
}

// WithToolMiddleware registers m on the server's tool chain.
func (b *Builder) WithToolMiddleware(m middleware.ToolMiddleware) *Builder {
	b.toolMiddle = append(b.toolMiddle, m)
	return b
}

// WithTool registers a tool. Calling this before WithTaskStore is fine —
// registration only touches the registry, which Build creates first.
func (b *Builder) WithTool(reg *mcpserver.ToolRegistration) *Builder {
	if reg == nil {
		b.err = firstErr(b.err, fmt.Errorf("mcpbuilder: nil tool registration"))
		return b
	}
	b.tools = append(b.tools, reg)
	return b
}

// WithWorkflow registers def as a prompt. A workflow with TaskSupport()
// true requires WithTaskStore to have been called, checked at Build time
// since the store may be installed after this call.
func (b *Builder) WithWorkflow(def *workflow.WorkflowDefinition) *Builder {
	if def == nil {
		b.err = firstErr(b.err, fmt.Errorf("mcpbuilder: nil workflow definition"))
		return b
	}
	if err := def.Validate(); err != nil {
		b.err = firstErr(b.err, fmt.Errorf("mcpbuilder: invalid workflow %q: %w", def.Name(), err))
		return b
	}
	b.prompts = append(b.prompts, def)
	return b
}

// WithResource registers a resource.
func (b *Builder) WithResource(reg *mcpserver.ResourceRegistration) *Builder {
	if reg == nil {
		b.err = firstErr(b.err, fmt.Errorf("mcpbuilder: nil resource registration"))
		return b
	}
	b.resources = append(b.resources, reg)
	return b
}

// Build assembles the accumulated configuration into a running
// *mcpserver.Server. It fails fast on the first error recorded by any
// With* call, then on a workflow declaring task support with no store
// configured.
func (b *Builder) Build() (*mcpserver.Server, error) {
	if b.err != nil {
		return nil, b.err
	}

	var resources *mcpserver.ResourceRegistry
	if len(b.resources) > 0 {
		resources = mcpserver.NewResourceRegistry()
		for _, r := range b.resources {
			resources.Register(r)
		}
	}

	opts := append([]mcpserver.Option{}, b.serverOpts...)
	if resources != nil {
		opts = append(opts, mcpserver.WithResources(resources))
	}

	var router *taskrouter.Router
	var invoker *deferredInvoker
	if b.taskStore != nil {
		router = taskrouter.New(b.taskStore)
		invoker = &deferredInvoker{}
		eng := engine.New(invoker, b.engineOpts...)
		opts = append(opts, mcpserver.WithTaskSupport(router, eng))
	} else {
		for _, def := range b.prompts {
			if def.TaskSupport() {
				return nil, fmt.Errorf("mcpbuilder: workflow %q requires task support but no task store was configured", def.Name())
			}
		}
	}

	srv := mcpserver.New(b.info, opts...)
	if invoker != nil {
		invoker.bind(srv)
	}

	for _, m := range b.protocolMiddle {
		srv.ProtocolMiddleware().Add(m)
	}
	for _, m := range b.toolMiddle {
		srv.ToolMiddleware().Add(m)
	}
	for _, t := range b.tools {
		srv.Tools().Register(t)
	}
	for _, def := range b.prompts {
		srv.Prompts().RegisterWorkflow(def)
	}

	return srv, nil
}

func firstErr(existing, next error) error {
	if existing != nil {
		return existing
	}
	return next
}
