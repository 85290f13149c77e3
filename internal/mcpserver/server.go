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
	"sync"

	"github.com/tombee/mcpcore/internal/taskrouter"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
	"github.com/tombee/mcpcore/pkg/observability"
	"github.com/tombee/mcpcore/pkg/workflow/engine"
)

// Server is the protocol handler core: it owns the tool,
// prompt, and resource registries, the optional task router and workflow
// engine, and the middleware chains every request and tool call runs
// through, and dispatches each JSON-RPC method to whichever of those owns
// it.
//
// Server is transport-agnostic: pkg/transport/streamhttp (and any other
// transport) decodes bytes into a jsonrpc.Request/Notification, calls
// Dispatch/DispatchNotification, and encodes the jsonrpc.Response that
// comes back.
type Server struct {
	info         jsonrpc.Implementation
	capabilities jsonrpc.ServerCapabilities
	stateless    bool

	mu               sync.RWMutex
	initialized      bool
	protocolVersion  string
	clientInfo       *jsonrpc.Implementation
	clientCapability *jsonrpc.ClientCapabilities

	tools     *ToolRegistry
	prompts   *PromptRegistry
	resources *ResourceRegistry

	router    *taskrouter.Router
	engine    *engine.Engine
	persister *routerPersister

	authorizer ToolAuthorizer

	protocolChain *middleware.ProtocolChain
	toolChain     *middleware.ToolChain

	cancellation *cancellationRegistry

	tracer observability.Tracer
	sink   observability.Sink
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithCapabilities overrides the default (tools/prompts/resources all
// enabled) capabilities advertised during "initialize".
func WithCapabilities(caps jsonrpc.ServerCapabilities) Option {
	return func(s *Server) { s.capabilities = caps }
}

// WithStateless enables stateless mode: the "not initialized" check is
// skipped entirely, for serverless fan-out where each invocation is a
// fresh process.
func WithStateless(enabled bool) Option {
	return func(s *Server) { s.stateless = enabled }
}

// WithResources installs a resource registry; omit for a server with no
// resources, in which case "resources/list" reports an empty list and
// "resources/read" reports the URI as not found.
func WithResources(r *ResourceRegistry) Option {
	return func(s *Server) { s.resources = r }
}

// WithTaskSupport wires a task router and the workflow engine that runs
// task-backed prompts against it. Both are required together: the engine
// persists progress through the router, and the router is what makes
// "tasks/*" methods and task-augmented "tools/call" available at all.
func WithTaskSupport(router *taskrouter.Router, eng *engine.Engine) Option {
	return func(s *Server) {
		s.router = router
		s.engine = eng
		s.persister = newRouterPersister(router)
	}
}

// WithToolAuthorizer installs the authorizer consulted before every
// "tools/call".
func WithToolAuthorizer(authz ToolAuthorizer) Option {
	return func(s *Server) { s.authorizer = authz }
}

// WithObservability wires a tracer and sink into the server: every
// Dispatch call opens a span via tracer (nil is fine — ctx is left
// untouched and TraceContext reports zero values) and notifies sink's
// on_request/on_response around the method handler. A nil sink leaves the
// Server's NoopSink default in place.
func WithObservability(tracer observability.Tracer, sink observability.Sink) Option {
	return func(s *Server) {
		s.tracer = tracer
		if sink != nil {
			s.sink = sink
		}
	}
}

// defaultCapabilities advertises every capability this server implements;
// a host with e.g. no resources configured still advertises resource
// support here but Get/Read simply has nothing registered, mirroring how
// an empty resource handler is treated as "none" rather than
// "unsupported".
func defaultCapabilities() jsonrpc.ServerCapabilities {
	listChanged := true
	return jsonrpc.ServerCapabilities{
		Tools:     &jsonrpc.ToolCapabilities{ListChanged: &listChanged},
		Prompts:   &jsonrpc.PromptCapabilities{ListChanged: &listChanged},
		Resources: &jsonrpc.ResourceCapabilities{ListChanged: &listChanged},
	}
}

// New builds a Server identifying itself as info, with empty tool/prompt
// registries ready for the caller (or pkg/mcpbuilder) to populate via
// Tools()/Prompts().
func New(info jsonrpc.Implementation, opts ...Option) *Server {
	s := &Server{
		info:          info,
		capabilities:  defaultCapabilities(),
		tools:         NewToolRegistry(),
		prompts:       NewPromptRegistry(),
		protocolChain: middleware.NewProtocolChain(),
		toolChain:     middleware.NewToolChain(),
		cancellation:  newCancellationRegistry(),
		sink:          observability.NoopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tools returns the server's tool registry for registration.
func (s *Server) Tools() *ToolRegistry { return s.tools }

// Prompts returns the server's prompt registry for registration.
func (s *Server) Prompts() *PromptRegistry { return s.prompts }

// Resources returns the server's resource registry, or nil if none was
// configured via WithResources.
func (s *Server) Resources() *ResourceRegistry { return s.resources }

// ProtocolMiddleware returns the chain every JSON-RPC request/response/
// notification runs through, for registration.
func (s *Server) ProtocolMiddleware() *middleware.ProtocolChain { return s.protocolChain }

// ToolMiddleware returns the chain every "tools/call" runs through, for
// registration.
func (s *Server) ToolMiddleware() *middleware.ToolChain { return s.toolChain }

// Initialized reports whether "initialize" has completed.
func (s *Server) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ProtocolVersion returns the negotiated protocol version, or the empty
// string before "initialize" completes.
func (s *Server) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}
