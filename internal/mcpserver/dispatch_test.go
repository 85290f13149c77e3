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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
	"github.com/tombee/mcpcore/pkg/observability"
)

// fakeSink records every request/response event delivered to it.
type fakeSink struct {
	mu        sync.Mutex
	requests  []observability.RequestEvent
	responses []observability.ResponseEvent
}

func (f *fakeSink) OnRequest(ctx context.Context, ev observability.RequestEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, ev)
}

func (f *fakeSink) OnResponse(ctx context.Context, ev observability.ResponseEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, ev)
}

func (f *fakeSink) OnMetric(context.Context, observability.Metric) {}
func (f *fakeSink) Flush(context.Context) error                    { return nil }

func newRequest(method string, params any) *jsonrpc.Request {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &jsonrpc.Request{JSONRPC: "2.0", ID: jsonrpc.NewID("1"), Method: method, Params: raw}
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := New(jsonrpc.Implementation{Name: "test", Version: "0"}, WithStateless(true))

	resp := s.Dispatch(context.Background(), newRequest("bogus/method", nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
}

func TestDispatchNotInitializedRejectsNonInitializeMethods(t *testing.T) {
	s := New(jsonrpc.Implementation{Name: "test", Version: "0"})

	resp := s.Dispatch(context.Background(), newRequest("tools/list", nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeNotInitialized, resp.Error.Code)
}

func TestDispatchToolsCallSuccessNotifiesSink(t *testing.T) {
	s := New(jsonrpc.Implementation{Name: "test", Version: "0"}, WithStateless(true))
	s.Tools().Register(&ToolRegistration{
		Name: "echo",
		Handler: func(ctx context.Context, args json.RawMessage, extra *middleware.ToolExtra) (json.RawMessage, error) {
			return json.RawMessage(`{"content":[]}`), nil
		},
	})

	sink := &fakeSink{}
	s.sink = sink

	resp := s.Dispatch(context.Background(), newRequest("tools/call", map[string]any{"name": "echo"}))

	require.Nil(t, resp.Error)
	require.Len(t, sink.requests, 1)
	assert.Equal(t, "tools/call", sink.requests[0].Operation.Method)
	assert.Equal(t, "echo", sink.requests[0].Operation.ToolName)

	require.Len(t, sink.responses, 1)
	assert.True(t, sink.responses[0].Success)
	assert.Equal(t, "echo", sink.responses[0].Operation.ToolName)
}

func TestDispatchErrorNotifiesSinkWithFailure(t *testing.T) {
	s := New(jsonrpc.Implementation{Name: "test", Version: "0"}, WithStateless(true))

	sink := &fakeSink{}
	s.sink = sink

	resp := s.Dispatch(context.Background(), newRequest("bogus/method", nil))

	require.NotNil(t, resp.Error)
	require.Len(t, sink.responses, 1)
	assert.False(t, sink.responses[0].Success)
	assert.NotEmpty(t, sink.responses[0].ErrorMessage)
}

func TestOperationDetailsExtractsTaskID(t *testing.T) {
	req := newRequest("tasks/get", map[string]any{"taskId": "task-123"})
	op := operationDetails(req)
	assert.Equal(t, "task-123", op.TaskID)
	assert.Equal(t, "tasks/get", op.Method)
}

func TestIdentityForReturnsZeroValueWithoutAuthContext(t *testing.T) {
	id := identityFor(context.Background())
	assert.Empty(t, id.Subject)
	assert.Empty(t, id.Scopes)
}

func TestIdentityForReadsAuthContext(t *testing.T) {
	ctx := ContextWithAuth(context.Background(), AuthContext{Subject: "user-1", Scopes: []string{"read"}})
	id := identityFor(ctx)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, []string{"read"}, id.Scopes)
}
