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
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tombee/mcpcore/internal/logging"
	"github.com/tombee/mcpcore/internal/mcpserver"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// Authenticator resolves a bearer token into an mcpserver.AuthContext. A
// Server with no Authenticator configured dispatches every request
// unauthenticated, matching mcpserver.AuthContextFromContext's zero-value
// fallback.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (mcpserver.AuthContext, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (mcpserver.AuthContext, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (mcpserver.AuthContext, error) {
	return f(ctx, token)
}

// Server adapts an mcpserver.Server's JSON-RPC dispatch to the MCP
// streamable HTTP transport: a single endpoint handling POST
// (request/notification/response), GET (server push), and DELETE
// (session termination), with session and protocol-version header
// continuity and an HTTP middleware chain.
type Server struct {
	mcp           *mcpserver.Server
	sessions      *SessionManager
	httpChain     *HTTPChain
	authenticator Authenticator
	logger        *slog.Logger
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithHTTPMiddleware registers m on the server's HTTP middleware chain.
func WithHTTPMiddleware(m HTTPMiddleware) Option {
	return func(s *Server) { s.httpChain.Add(m) }
}

// WithAuthenticator installs the bearer-token authenticator consulted on
// every request carrying an Authorization header.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.authenticator = a }
}

// WithLogger overrides the default slog.Default()-derived logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer wraps mcp for the streamable HTTP transport.
func NewServer(mcp *mcpserver.Server, opts ...Option) *Server {
	s := &Server{
		mcp:       mcp,
		sessions:  NewSessionManager(),
		httpChain: NewHTTPChain(),
		logger:    logging.New(nil).With(slog.String("component", "streamhttp")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the single MCP endpoint at path on engine.
func (s *Server) RegisterRoutes(engine *gin.Engine, path string) {
	engine.POST(path, s.handlePost)
	engine.GET(path, s.handleGet)
	engine.DELETE(path, s.handleDelete)
}

// collectHeaders copies a gin request's headers into a lowercase-keyed
// map; header storage is normalized to lowercase throughout.
func collectHeaders(c *gin.Context) map[string]string {
	out := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		out[strings.ToLower(k)] = c.GetHeader(k)
	}
	return out
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, if present.
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix)), true
}

// authenticatedContext attaches the caller's AuthContext to ctx when the
// request carries a bearer token and an Authenticator is configured;
// otherwise ctx is returned unchanged and mcpserver dispatches
// unauthenticated.
func (s *Server) authenticatedContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if s.authenticator == nil {
		return ctx
	}
	token, ok := bearerToken(c)
	if !ok {
		return ctx
	}
	auth, err := s.authenticator.Authenticate(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "bearer token rejected", slog.String("error", err.Error()))
		return ctx
	}
	return mcpserver.ContextWithAuth(ctx, auth)
}

// sessionFor resolves the session named by the mcp-session-id header, or
// allocates a new one if absent — the server assigns an id on its first
// response to a new client.
func (s *Server) sessionFor(c *gin.Context) *Session {
	if id := c.GetHeader(HeaderSessionID); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			return sess
		}
	}
	return s.sessions.Create()
}

// dispatchLogged runs req through mcpserver.Dispatch wrapped in a
// logging.DispatchLogger, so every JSON-RPC call's method, session,
// and outcome are logged consistently with the rest of the tree.
func (s *Server) dispatchLogged(ctx context.Context, c *gin.Context, sess *Session, req *jsonrpc.Request) *jsonrpc.Response {
	dlog := logging.NewDispatchLogger(s.logger)
	dreq := &logging.DispatchRequest{
		Method:     req.Method,
		SessionID:  sess.ID(),
		RequestID:  req.ID.String(),
		RemoteAddr: c.ClientIP(),
	}

	var resp *jsonrpc.Response
	_ = dlog.Handler(dreq, func() error {
		resp = s.mcp.Dispatch(ctx, req)
		if resp.Error != nil {
			return resp.Error
		}
		return nil
	})
	return resp
}

// applyContinuityHeaders sets the mcp-session-id/mcp-protocol-version
// headers every response carries.
func (s *Server) applyContinuityHeaders(c *gin.Context, sess *Session) {
	c.Header(HeaderSessionID, sess.ID())
	if v := s.mcp.ProtocolVersion(); v != "" {
		sess.SetProtocolVersion(v)
		c.Header(HeaderProtocolVersion, v)
	} else if v := sess.ProtocolVersion(); v != "" {
		c.Header(HeaderProtocolVersion, v)
	}
}
