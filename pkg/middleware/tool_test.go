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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/mcpcore/pkg/middleware"
)

type conditionalToolMiddleware struct {
	name     string
	priority int
	active   bool
	ran      *[]string
}

func (m *conditionalToolMiddleware) Priority() int { return m.priority }

func (m *conditionalToolMiddleware) ShouldExecute(context.Context, *middleware.Context) bool {
	return m.active
}

func (m *conditionalToolMiddleware) OnRequest(_ context.Context, _ string, _ *json.RawMessage, _ *middleware.ToolExtra, _ *middleware.Context) error {
	*m.ran = append(*m.ran, m.name)
	return nil
}

func (m *conditionalToolMiddleware) OnResponse(context.Context, string, *middleware.ToolResult, *middleware.Context) error {
	return nil
}

func (m *conditionalToolMiddleware) OnError(context.Context, string, error, *middleware.Context) {}

func TestToolChainSkipsMiddlewareThatOptsOut(t *testing.T) {
	var ran []string
	chain := middleware.NewToolChain()
	chain.Add(&conditionalToolMiddleware{name: "active", priority: 10, active: true, ran: &ran})
	chain.Add(&conditionalToolMiddleware{name: "inactive", priority: 20, active: false, ran: &ran})

	args := json.RawMessage(`{}`)
	extra := middleware.NewToolExtra()
	err := chain.Request(context.Background(), "some_tool", &args, extra, middleware.NewContext())
	assert.NoError(t, err)
	assert.Equal(t, []string{"active"}, ran)
}

func TestToolExtraStringRedactsSensitiveKeys(t *testing.T) {
	extra := middleware.NewToolExtra()
	extra.Metadata["auth_token"] = "super-secret-value"
	extra.Metadata["api_key"] = "another-secret"
	extra.Metadata["tool_name"] = "fetch_data"

	s := extra.String()
	assert.NotContains(t, s, "super-secret-value")
	assert.NotContains(t, s, "another-secret")
	assert.Contains(t, s, "fetch_data")
	assert.Contains(t, s, "[REDACTED]")
}

func TestToolExtraCancellation(t *testing.T) {
	extra := middleware.NewToolExtra()
	assert.False(t, extra.IsCancelled())
	extra.Cancel()
	assert.True(t, extra.IsCancelled())
}
