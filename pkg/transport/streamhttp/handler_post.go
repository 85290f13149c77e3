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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/middleware"
)

// envelope is a minimal peek at an inbound JSON-RPC message — a request,
// notification, or response — just enough to tell a request (has "id")
// from a notification (no "id").
type envelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (e envelope) isRequest() bool {
	return len(e.ID) > 0 && string(e.ID) != "null"
}

// handlePost implements the POST side of the streamable HTTP transport.
func (s *Server) handlePost(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	mctx := middleware.NewContext()
	httpReq := &HTTPRequest{Method: http.MethodPost, URL: c.Request.URL.String(), Headers: collectHeaders(c), Body: body}
	if err := s.httpChain.Request(c.Request.Context(), httpReq, mctx); err != nil {
		c.AbortWithStatus(http.StatusBadGateway)
		return
	}

	ctx := s.authenticatedContext(c)
	sess := s.sessionFor(c)

	envelopes, batch, err := decodeEnvelopes(httpReq.Body)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	var responses []*jsonrpc.Response
	for _, raw := range envelopes {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			responses = append(responses, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, err.Error(), nil))
			continue
		}
		if !env.isRequest() {
			var notif jsonrpc.Notification
			if err := json.Unmarshal(raw, &notif); err == nil {
				s.mcp.DispatchNotification(ctx, &notif)
			}
			continue
		}
		var req jsonrpc.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, err.Error(), nil))
			continue
		}
		responses = append(responses, s.dispatchLogged(ctx, c, sess, &req))
	}

	s.applyContinuityHeaders(c, sess)

	if len(responses) == 0 {
		s.finishEmptyResponse(c, mctx, http.StatusAccepted)
		return
	}

	var payload []byte
	if batch {
		payload, err = json.Marshal(responses)
	} else {
		payload, err = json.Marshal(responses[0])
	}
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if wantsSSEOnly(c.GetHeader("Accept")) {
		s.writeSSEResult(c, sess, payload, mctx)
		return
	}
	s.finishJSONResponse(c, mctx, http.StatusOK, payload)
}

// decodeEnvelopes splits body into one or more raw JSON-RPC messages,
// reporting whether it was a batch array.
func decodeEnvelopes(body []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, false, err
		}
		return batch, true, nil
	}
	return []json.RawMessage{trimmed}, false, nil
}

// wantsSSEOnly reports whether the client's Accept header asks for SSE
// without also accepting a plain JSON response.
func wantsSSEOnly(accept string) bool {
	if accept == "" {
		return false
	}
	return strings.Contains(accept, contentTypeSSE) && !strings.Contains(accept, contentTypeJSON)
}

// finishJSONResponse runs the HTTP response middleware chain and writes
// a single JSON body.
func (s *Server) finishJSONResponse(c *gin.Context, mctx *middleware.Context, status int, body []byte) {
	resp := &HTTPResponse{StatusCode: status, Headers: map[string]string{"content-type": contentTypeJSON}, Body: body}
	for _, err := range s.httpChain.Response(c.Request.Context(), resp, mctx) {
		s.logger.WarnContext(c.Request.Context(), "http response middleware error", "error", err)
	}
	applyHeaders(c, resp.Headers)
	c.Data(resp.StatusCode, contentTypeJSON, resp.Body)
}

// finishEmptyResponse runs the middleware chain over a bodyless response
// (202 Accepted for an all-notification POST).
func (s *Server) finishEmptyResponse(c *gin.Context, mctx *middleware.Context, status int) {
	resp := &HTTPResponse{StatusCode: status}
	for _, err := range s.httpChain.Response(c.Request.Context(), resp, mctx) {
		s.logger.WarnContext(c.Request.Context(), "http response middleware error", "error", err)
	}
	applyHeaders(c, resp.Headers)
	c.Status(resp.StatusCode)
}

// writeSSEResult sends a single-shot Dispatch result as one SSE event,
// for a client whose Accept header asked for text/event-stream only.
func (s *Server) writeSSEResult(c *gin.Context, sess *Session, payload []byte, mctx *middleware.Context) {
	resp := &HTTPResponse{StatusCode: http.StatusOK, Headers: map[string]string{"content-type": contentTypeSSE}, Body: payload}
	for _, err := range s.httpChain.Response(c.Request.Context(), resp, mctx) {
		s.logger.WarnContext(c.Request.Context(), "http response middleware error", "error", err)
	}
	applyHeaders(c, resp.Headers)
	w := newSSEWriter(c)
	_ = w.WriteEvent(sess.NextEventID(), resp.Body)
}

// applyHeaders writes response headers an HTTPMiddleware may have set or
// rewritten back onto the gin response.
func applyHeaders(c *gin.Context, headers map[string]string) {
	for k, v := range headers {
		c.Header(k, v)
	}
}
