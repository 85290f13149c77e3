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

package tasks

import "context"

// Backend is the versioned key/value contract every task store sits on top
// of. Keys are opaque strings of the form "{owner_id}:{task_id}" — a colon
// is forbidden inside owner and task ids so the prefix split stays
// unambiguous. Implementations MUST NOT interpret any field of the stored
// bytes except (optionally) "expiresAt", which a backend with native TTL
// support MAY extract to set a per-item expiry.
//
// Store (the domain layer in store.go) is the only intended caller;
// Backend implementations should not encode any task-domain rule (status
// transitions, ownership, TTL clamping) themselves.
type Backend interface {
	// Get returns the current VersionedRecord for key. Returns a NotFound
	// *mcperrors.DomainError if key does not exist.
	Get(ctx context.Context, key string) (VersionedRecord, error)

	// Put writes bytes unconditionally, bumping the version to prev+1 (or 1
	// if the key was absent), and returns the new version.
	Put(ctx context.Context, key string, data []byte) (uint64, error)

	// PutIfVersion writes bytes only if the key's current version equals
	// expected, returning the new version on success. If the key is absent
	// and expected is nonzero, this returns a Conflict error. Absent key
	// with expected == 0 is treated as a fresh create (new version 1).
	PutIfVersion(ctx context.Context, key string, data []byte, expected uint64) (uint64, error)

	// Delete removes key if present and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// ListByPrefix returns every (key, VersionedRecord) whose key starts
	// with prefix. Implementations MUST use a partition key or sorted
	// index keyed on the owner prefix so results never leak across owners.
	ListByPrefix(ctx context.Context, prefix string) (map[string]VersionedRecord, error)

	// CleanupExpired best-effort removes expired items and returns the
	// count removed. Backends with native TTL support (e.g. DynamoDB) MAY
	// make this a no-op since the backend already reaps expired items.
	CleanupExpired(ctx context.Context) (int, error)
}
