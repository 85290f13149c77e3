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

package recovery

import (
	"context"
	"encoding/json"
)

// FallbackHandler recovers from a failed operation by producing a
// substitute result instead of retrying.
type FallbackHandler interface {
	Recover(ctx context.Context, operationID string, cause error) (json.RawMessage, error)
}

// FallbackHandlerFunc adapts a function to FallbackHandler.
type FallbackHandlerFunc func(ctx context.Context, operationID string, cause error) (json.RawMessage, error)

func (f FallbackHandlerFunc) Recover(ctx context.Context, operationID string, cause error) (json.RawMessage, error) {
	return f(ctx, operationID, cause)
}
