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

package middleware

import "strings"

// sensitiveKeyFragments are matched as case-insensitive substrings of a
// metadata key; any match redacts that entry's value in Debug output.
var sensitiveKeyFragments = []string{"token", "key", "secret", "password"}

const redactedPlaceholder = "[REDACTED]"

// isSensitiveKey reports whether key should be redacted in a Debug
// representation of tool-call extra metadata.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// RedactedMetadata returns a copy of m with every sensitive-keyed value
// replaced by a fixed placeholder, suitable for logging or a Debug/String
// representation.
func RedactedMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}
