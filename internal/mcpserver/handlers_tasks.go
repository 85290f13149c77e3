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

	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// errNoTaskSupport is returned by the "tasks/*" handlers when no router
// was wired via WithTaskSupport.
func errNoTaskSupport() *jsonrpc.Error {
	return &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "server has no task support configured"}
}

func callerOwner(ctx context.Context, s *Server) string {
	auth, _ := AuthContextFromContext(ctx)
	return s.router.ResolveOwner(stringPtr(auth.Subject), stringPtr(auth.ClientID), nil)
}

func handleTasksGet(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	if s.router == nil {
		return nil, errNoTaskSupport()
	}
	record, err := s.router.HandleTasksGet(ctx, req.Params, callerOwner(ctx, s))
	if err != nil {
		return nil, err
	}
	return record, nil
}

func handleTasksResult(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	if s.router == nil {
		return nil, errNoTaskSupport()
	}
	result, err := s.router.HandleTasksResult(ctx, req.Params, callerOwner(ctx, s))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func handleTasksList(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	if s.router == nil {
		return nil, errNoTaskSupport()
	}
	page, err := s.router.HandleTasksList(ctx, req.Params, callerOwner(ctx, s))
	if err != nil {
		return nil, err
	}
	return page, nil
}

func handleTasksCancel(ctx context.Context, s *Server, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	if s.router == nil {
		return nil, errNoTaskSupport()
	}
	record, err := s.router.HandleTasksCancel(ctx, req.Params, callerOwner(ctx, s))
	if err != nil {
		return nil, err
	}
	return record, nil
}
