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

package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
)

type recordingProtocolMiddleware struct {
	name      string
	priority  int
	failOn    bool
	requests  *[]string
	responses *[]string
	errors    *[]string
}

func (m *recordingProtocolMiddleware) Priority() int { return m.priority }

func (m *recordingProtocolMiddleware) OnRequest(_ context.Context, _ *jsonrpc.Request, _ *middleware.Context) error {
	*m.requests = append(*m.requests, m.name)
	if m.failOn {
		return errors.New(m.name + " failed")
	}
	return nil
}

func (m *recordingProtocolMiddleware) OnResponse(_ context.Context, _ *jsonrpc.Response, _ *middleware.Context) error {
	*m.responses = append(*m.responses, m.name)
	return nil
}

func (m *recordingProtocolMiddleware) OnNotification(context.Context, *jsonrpc.Notification, *middleware.Context) error {
	return nil
}

func (m *recordingProtocolMiddleware) OnError(_ context.Context, _ error, _ *middleware.Context) {
	*m.errors = append(*m.errors, m.name)
}

func TestProtocolChainRequestRunsInPriorityOrder(t *testing.T) {
	var requests, responses, errs []string
	chain := middleware.NewProtocolChain()
	chain.Add(&recordingProtocolMiddleware{name: "b", priority: 20, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "a", priority: 10, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "c", priority: 30, requests: &requests, responses: &responses, errors: &errs})

	req := &jsonrpc.Request{Method: "tools/list"}
	err := chain.Request(context.Background(), req, middleware.NewContext())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, requests)
}

func TestProtocolChainResponseRunsInReverseOrder(t *testing.T) {
	var requests, responses, errs []string
	chain := middleware.NewProtocolChain()
	chain.Add(&recordingProtocolMiddleware{name: "a", priority: 10, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "b", priority: 20, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "c", priority: 30, requests: &requests, responses: &responses, errors: &errs})

	resp := &jsonrpc.Response{}
	errsOut := chain.Response(context.Background(), resp, middleware.NewContext())
	assert.Empty(t, errsOut)
	assert.Equal(t, []string{"c", "b", "a"}, responses)
}

func TestProtocolChainRequestShortCircuitsAndFansOutErrors(t *testing.T) {
	var requests, responses, errs []string
	chain := middleware.NewProtocolChain()
	chain.Add(&recordingProtocolMiddleware{name: "a", priority: 10, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "b", priority: 20, failOn: true, requests: &requests, responses: &responses, errors: &errs})
	chain.Add(&recordingProtocolMiddleware{name: "c", priority: 30, requests: &requests, responses: &responses, errors: &errs})

	req := &jsonrpc.Request{Method: "tools/list"}
	err := chain.Request(context.Background(), req, middleware.NewContext())
	require.Error(t, err)

	// "c" never ran OnRequest (chain stopped after "b" failed)...
	assert.Equal(t, []string{"a", "b"}, requests)
	// ...but OnError fires on every registered middleware, "c" included.
	assert.ElementsMatch(t, []string{"a", "b", "c"}, errs)
}

func TestContextBoolCoordination(t *testing.T) {
	mctx := middleware.NewContext()
	assert.False(t, mctx.Bool("oauth.retry_used"))
	mctx.Set("oauth.retry_used", "true")
	assert.True(t, mctx.Bool("oauth.retry_used"))
}
