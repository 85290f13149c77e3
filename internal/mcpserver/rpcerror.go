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
	"errors"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
)

// errorCodeForKind maps a domain error Kind to a JSON-RPC error code,
// the same mapping internal/taskrouter.Router uses for task errors,
// reused here so a tool or prompt failure carries the same code family
// regardless of which part of the server produced it.
func errorCodeForKind(k mcperrors.Kind) int {
	switch k {
	case mcperrors.KindProtocol, mcperrors.KindNotFound, mcperrors.KindOversizedPayload:
		return jsonrpc.CodeInvalidParams
	case mcperrors.KindAuthentication:
		return jsonrpc.CodeAuthenticationRequired
	case mcperrors.KindAuthorization:
		return jsonrpc.CodeAuthorizationDenied
	case mcperrors.KindExpired:
		return jsonrpc.CodeTaskExpired
	case mcperrors.KindInvalidTransition, mcperrors.KindConflict:
		return jsonrpc.CodeTaskConflict
	case mcperrors.KindNotReady:
		return jsonrpc.CodeTaskNotReady
	case mcperrors.KindQuotaExceeded:
		return jsonrpc.CodeRateLimited
	default:
		return jsonrpc.CodeInternalError
	}
}

// toRPCError converts any error into a *jsonrpc.Error. An error that is
// already a *jsonrpc.Error (as every internal/taskrouter.Router method
// returns) passes through unchanged so its specific code survives.
func toRPCError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &jsonrpc.Error{Code: errorCodeForKind(mcperrors.KindOf(err)), Message: err.Error()}
}
