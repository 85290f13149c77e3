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
	"fmt"

	"github.com/tombee/mcpcore/pkg/middleware"
)

// TypedToolFunc is a tool handler expressed in terms of its own argument
// and result types rather than raw JSON, while still deriving a real
// JSON Schema for Args via reflection.
type TypedToolFunc[Args, Result any] func(ctx context.Context, args Args, extra *middleware.ToolExtra) (Result, error)

// RegisterTypedTool registers a tool whose input schema is reflected from
// Args and whose handler works with decoded Go values: arguments are
// unmarshaled into an Args value before fn runs, and fn's Result is
// marshaled back to JSON after.
func RegisterTypedTool[Args, Result any](reg *ToolRegistry, name, description string, executionMeta json.RawMessage, fn TypedToolFunc[Args, Result]) error {
	schema, err := ReflectInputSchema(new(Args))
	if err != nil {
		return fmt.Errorf("mcpserver: register tool %q: %w", name, err)
	}

	reg.Register(&ToolRegistration{
		Name:          name,
		Description:   description,
		InputSchema:   schema,
		ExecutionMeta: executionMeta,
		Handler: func(ctx context.Context, args json.RawMessage, extra *middleware.ToolExtra) (json.RawMessage, error) {
			var decoded Args
			if len(args) > 0 {
				if err := json.Unmarshal(args, &decoded); err != nil {
					return nil, fmt.Errorf("mcpserver: decode arguments for tool %q: %w", name, err)
				}
			}
			result, err := fn(ctx, decoded, extra)
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("mcpserver: encode result for tool %q: %w", name, err)
			}
			return raw, nil
		},
	})
	return nil
}
