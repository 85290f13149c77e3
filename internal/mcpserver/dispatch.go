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
	"time"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
	"github.com/tombee/mcpcore/pkg/observability"
)

// methodHandler handles one JSON-RPC method, returning the raw result to
// marshal into a successful Response, or an *jsonrpc.Error.
type methodHandler func(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error)

// methodTable maps method name to handler. Looked up once per Dispatch
// call; any method absent here is -32601.
var methodTable = map[string]methodHandler{
	"initialize":               handleInitialize,
	"tools/list":               handleToolsList,
	"tools/call":               handleToolsCall,
	"prompts/list":             handlePromptsList,
	"prompts/get":              handlePromptsGet,
	"resources/list":           handleResourcesList,
	"resources/read":           handleResourcesRead,
	"resources/templates/list": handleResourceTemplatesList,
	"tasks/get":                handleTasksGet,
	"tasks/result":             handleTasksResult,
	"tasks/list":               handleTasksList,
	"tasks/cancel":             handleTasksCancel,
}

// operationDetails extracts McpOperationDetails for req,
// decoding the method-specific identifier (tool name, task id, ...) best
// effort — a decode failure just leaves that field empty rather than
// failing dispatch.
func operationDetails(req *jsonrpc.Request) observability.McpOperationDetails {
	op := observability.McpOperationDetails{
		Method:    req.Method,
		RequestID: req.ID.String(),
	}
	switch req.Method {
	case "tools/call":
		var p toolsCallParams
		if jsonrpc.DecodeParams(req.Params, &p) == nil {
			op.ToolName = p.Name
		}
	case "prompts/get":
		var p promptsGetParams
		if jsonrpc.DecodeParams(req.Params, &p) == nil {
			op.PromptName = p.Name
		}
	case "resources/read":
		var p resourcesReadParams
		if jsonrpc.DecodeParams(req.Params, &p) == nil {
			op.ResourceURI = p.URI
		}
	case "tasks/get", "tasks/result", "tasks/cancel":
		var p struct {
			TaskID string `json:"taskId"`
		}
		if jsonrpc.DecodeParams(req.Params, &p) == nil {
			op.TaskID = p.TaskID
		}
	}
	return op
}

// identityFor reads the caller's AuthContext from ctx, if any, into the
// sink-facing Identity shape.
func identityFor(ctx context.Context) observability.Identity {
	auth, ok := AuthContextFromContext(ctx)
	if !ok {
		return observability.Identity{}
	}
	return observability.Identity{Subject: auth.Subject, Scopes: auth.Scopes}
}

// Dispatch runs req through the protocol middleware chain and the
// matching method handler, and returns the jsonrpc.Response to send back.
// It never returns nil: a malformed or unknown request still produces a
// Response carrying a *jsonrpc.Error.
func (s *Server) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	mctx := middleware.NewContext()

	if err := s.protocolChain.Request(ctx, req, mctx); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, errorCodeForKind(mcperrors.KindOf(err)), err.Error(), nil)
	}

	if !s.stateless && !s.Initialized() && req.Method != "initialize" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeNotInitialized, "server not initialized", nil)
	}

	requestID := req.ID.String()
	ctx, cancel := context.WithCancel(ctx)
	release := s.cancellation.track(requestID, cancel)
	defer release()
	defer cancel()

	var span observability.SpanHandle
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, req.Method, observability.WithSpanKind(observability.SpanKindServer))
		defer span.End()
	}

	op := operationDetails(req)
	identity := identityFor(ctx)
	startedAt := time.Now()
	trace := observability.TraceContext{}
	if span != nil {
		trace = span.SpanContext()
	}
	s.sink.OnRequest(ctx, observability.RequestEvent{
		Trace:     trace,
		Operation: op,
		Identity:  identity,
		StartedAt: startedAt,
	})

	handler, ok := methodTable[req.Method]
	if !ok {
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "unknown method: "+req.Method, nil)
		s.protocolChain.Response(ctx, resp, mctx)
		s.notifyResponse(ctx, span, trace, op, identity, startedAt, resp)
		return resp
	}

	result, rpcErr := handler(ctx, s, req)
	var resp *jsonrpc.Response
	if rpcErr != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	} else {
		built, err := jsonrpc.NewResultResponse(req.ID, result)
		if err != nil {
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error(), nil)
		} else {
			resp = built
		}
	}

	s.protocolChain.Response(ctx, resp, mctx)
	s.notifyResponse(ctx, span, trace, op, identity, startedAt, resp)
	return resp
}

// notifyResponse finishes the span (if any) and notifies s.sink.OnResponse,
// factored out since Dispatch has two response-producing exit points
// (unknown method, and the normal handler path).
func (s *Server) notifyResponse(ctx context.Context, span observability.SpanHandle, trace observability.TraceContext, op observability.McpOperationDetails, identity observability.Identity, startedAt time.Time, resp *jsonrpc.Response) {
	success := resp.Error == nil
	var errMsg string
	if !success {
		errMsg = resp.Error.Message
		if span != nil {
			span.SetStatus(observability.StatusCodeError, errMsg)
		}
	} else if span != nil {
		span.SetStatus(observability.StatusCodeOK, "")
	}

	s.sink.OnResponse(ctx, observability.ResponseEvent{
		Trace:        trace,
		Operation:    op,
		Identity:     identity,
		StartedAt:    startedAt,
		Duration:     time.Since(startedAt),
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// DispatchNotification runs a one-way JSON-RPC message: "cancelled"
// cancels the named request's context; every other notification
// (including "initialized") passes through the middleware chain only.
func (s *Server) DispatchNotification(ctx context.Context, notif *jsonrpc.Notification) {
	mctx := middleware.NewContext()
	s.protocolChain.Notification(ctx, notif, mctx)

	if notif.Method != "cancelled" {
		return
	}
	var params cancelledParams
	if err := jsonrpc.DecodeParams(notif.Params, &params); err != nil {
		return
	}
	var id jsonrpc.ID
	if err := json.Unmarshal(params.RequestID, &id); err != nil {
		return
	}
	s.cancellation.cancelRequest(id.String())
}
