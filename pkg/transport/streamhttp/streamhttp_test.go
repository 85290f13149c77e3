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

package streamhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcpcore/internal/mcpserver"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestMCPServer runs in stateless mode so each test can issue a
// request without first performing "initialize" (the stateless toggle
// skips the "not initialized" precondition).
func newTestMCPServer() *mcpserver.Server {
	return mcpserver.New(jsonrpc.Implementation{Name: "test", Version: "0.0.0"}, mcpserver.WithStateless(true))
}

func newTestEngine(s *Server) *gin.Engine {
	engine := gin.New()
	s.RegisterRoutes(engine, "/mcp")
	return engine
}

func TestPostInitializeAssignsSessionAndProtocolVersion(t *testing.T) {
	s := NewServer(newTestMCPServer())
	engine := newTestEngine(s)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))
	assert.Equal(t, "2025-06-18", rec.Header().Get(HeaderProtocolVersion))
}

func TestPostNotificationOnlyReturns202(t *testing.T) {
	s := NewServer(newTestMCPServer())
	engine := newTestEngine(s)

	body := `{"jsonrpc":"2.0","method":"initialized"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestPostBatchReturnsArray(t *testing.T) {
	s := NewServer(newTestMCPServer())
	engine := newTestEngine(s)

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"tools/list"},
		{"jsonrpc":"2.0","id":2,"method":"prompts/list"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
}

func TestPostUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := NewServer(newTestMCPServer())
	engine := newTestEngine(s)

	body := `{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "-32601")
}

func TestDeleteEndsSession(t *testing.T) {
	s := NewServer(newTestMCPServer())
	engine := newTestEngine(s)
	sess := s.sessions.Create()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(HeaderSessionID, sess.ID())
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.sessions.Get(sess.ID())
	assert.False(t, ok)
}

func TestCORSDisabledIsNoop(t *testing.T) {
	mw := CORS(CORSConfig{Enabled: false})
	engine := gin.New()
	engine.Use(mw)
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSEnabledSetsHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.Enabled = true
	cfg.AllowedOrigins = []string{"https://example.com"}
	engine := gin.New()
	engine.Use(CORS(cfg))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestOAuthDoubleRetryPrevention implements seed S6: with a retry
// middleware that marks oauth.retry_used=true on the first 401, two
// consecutive 401 responses through the same middleware context must
// trigger exactly one retry, not an infinite loop.
func TestOAuthDoubleRetryPrevention(t *testing.T) {
	refreshCalls := 0
	retry := NewOAuthRetryMiddleware(10, func(ctx context.Context) error {
		refreshCalls++
		return nil
	})
	mctx := middleware.NewContext()
	ctx := context.Background()

	resp1 := &HTTPResponse{StatusCode: http.StatusUnauthorized}
	require.NoError(t, retry.OnResponse(ctx, resp1, mctx))
	assert.True(t, retry.ShouldRetry(mctx), "first 401 should trigger a retry")
	assert.Equal(t, 1, refreshCalls)
	assert.True(t, mctx.Bool("oauth.retry_used"))

	resp2 := &HTTPResponse{StatusCode: http.StatusUnauthorized}
	require.NoError(t, retry.OnResponse(ctx, resp2, mctx))
	assert.False(t, retry.ShouldRetry(mctx), "second consecutive 401 must not retry again")
	assert.Equal(t, 1, refreshCalls, "refresh must not run a second time")
}

func TestOAuthMiddlewareSkipsWhenAuthAlreadySet(t *testing.T) {
	mctx := middleware.NewContext()
	mctx.Set("auth_already_set", true)

	req := &HTTPRequest{Method: http.MethodPost, Headers: map[string]string{}}
	m := NewOAuthMiddleware(10, nil)
	err := m.OnRequest(context.Background(), req, mctx)
	require.NoError(t, err)
	_, ok := req.Header("Authorization")
	assert.False(t, ok)
}

// refusingOAuthMiddleware mirrors OAuthMiddleware.OnRequest's short-circuit
// without requiring a real oauth2.TokenSource, since calling Token() here
// would be an error if the guard clause were broken.
type refusingOAuthMiddleware struct{}

func (m *refusingOAuthMiddleware) OnRequest(ctx context.Context, req *HTTPRequest, mctx *middleware.Context) error {
	if _, ok := req.Header("Authorization"); ok {
		return nil
	}
	if mctx.Bool("auth_already_set") {
		return nil
	}
	return errors.New("would have fetched a token")
}
