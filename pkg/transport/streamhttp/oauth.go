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

	"github.com/tombee/mcpcore/pkg/middleware"
	"golang.org/x/oauth2"
)

// OAuthMiddleware injects a bearer token from an oauth2.TokenSource into
// outbound requests. It skips injection if an Authorization header is
// already present, or if the shared context already carries a truthy
// "auth_already_set" entry.
type OAuthMiddleware struct {
	priority int
	source   oauth2.TokenSource
}

// NewOAuthMiddleware wraps source at the given chain priority.
func NewOAuthMiddleware(priority int, source oauth2.TokenSource) *OAuthMiddleware {
	return &OAuthMiddleware{priority: priority, source: source}
}

func (m *OAuthMiddleware) Priority() int { return m.priority }

func (m *OAuthMiddleware) OnRequest(ctx context.Context, req *HTTPRequest, mctx *middleware.Context) error {
	if _, ok := req.Header("Authorization"); ok {
		return nil
	}
	if mctx.Bool("auth_already_set") {
		return nil
	}
	token, err := m.source.Token()
	if err != nil {
		return err
	}
	req.SetHeader("Authorization", "Bearer "+token.AccessToken)
	mctx.Set("auth_already_set", true)
	return nil
}

func (m *OAuthMiddleware) OnResponse(ctx context.Context, resp *HTTPResponse, mctx *middleware.Context) error {
	if resp.StatusCode == 401 {
		mctx.Set("auth_failure", true)
		mctx.Set("status_code", 401)
	}
	return nil
}

func (m *OAuthMiddleware) OnError(ctx context.Context, err error, mctx *middleware.Context) {}

// OAuthRetryMiddleware cooperates with OAuthMiddleware to prevent an
// infinite refresh-and-retry loop (seed S6): on a 401 it marks
// "oauth.retry_used" so a second 401 in the same shared context is
// recognized as a repeat rather than retried again.
type OAuthRetryMiddleware struct {
	priority int
	refresh  func(ctx context.Context) error
}

// NewOAuthRetryMiddleware wraps refresh (e.g. forcing the token source to
// fetch a fresh token) at the given chain priority.
func NewOAuthRetryMiddleware(priority int, refresh func(ctx context.Context) error) *OAuthRetryMiddleware {
	return &OAuthRetryMiddleware{priority: priority, refresh: refresh}
}

func (m *OAuthRetryMiddleware) Priority() int { return m.priority }

func (m *OAuthRetryMiddleware) OnRequest(ctx context.Context, req *HTTPRequest, mctx *middleware.Context) error {
	return nil
}

// OnResponse runs after OAuthMiddleware's (lower priority responses run
// later, in reverse order) and decides whether a retry is warranted. The
// decision is recorded in mctx under "oauth.should_retry" rather than
// returned directly, since the same mctx is threaded across the retried
// request/response pair (seed S6 sends both 401s through one context).
func (m *OAuthRetryMiddleware) OnResponse(ctx context.Context, resp *HTTPResponse, mctx *middleware.Context) error {
	if resp.StatusCode != 401 {
		mctx.Set("oauth.should_retry", false)
		return nil
	}
	if mctx.Bool("oauth.retry_used") {
		// A 401 has already triggered one retry in this context; do not
		// refresh and retry again, breaking the loop seed S6 describes.
		mctx.Set("oauth.should_retry", false)
		return nil
	}
	mctx.Set("oauth.retry_used", true)
	mctx.Set("oauth.should_retry", true)
	if m.refresh != nil {
		return m.refresh(ctx)
	}
	return nil
}

// ShouldRetry reports whether the caller should resend the request after
// running the response chain, per the decision OnResponse recorded.
func (m *OAuthRetryMiddleware) ShouldRetry(mctx *middleware.Context) bool {
	return mctx.Bool("oauth.should_retry")
}

func (m *OAuthRetryMiddleware) OnError(ctx context.Context, err error, mctx *middleware.Context) {}
