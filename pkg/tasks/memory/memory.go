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

// Package memory provides an in-memory tasks.Backend implementation, useful
// for tests and single-process deployments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/tasks"
)

// Compile-time interface assertion.
var _ tasks.Backend = (*Backend)(nil)

type entry struct {
	data      []byte
	version   uint64
	expiresAt *time.Time
}

// Backend is a sync.RWMutex-guarded map implementing tasks.Backend.
type Backend struct {
	mu   sync.RWMutex
	data map[string]entry
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[string]entry)}
}

// Get implements tasks.Backend.
func (b *Backend) Get(ctx context.Context, key string) (tasks.VersionedRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.data[key]
	if !ok {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindNotFound, "key %s not found", key)
	}
	return tasks.VersionedRecord{Data: e.data, Version: e.version}, nil
}

// Put implements tasks.Backend.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.data[key]
	next := entry{data: data, version: prev.version + 1, expiresAt: extractExpiresAt(data)}
	b.data[key] = next
	return next.version, nil
}

// PutIfVersion implements tasks.Backend.
func (b *Backend) PutIfVersion(ctx context.Context, key string, data []byte, expected uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.data[key]
	if !ok {
		if expected != 0 {
			return 0, conflictError(expected, expected)
		}
		next := entry{data: data, version: 1, expiresAt: extractExpiresAt(data)}
		b.data[key] = next
		return 1, nil
	}
	if e.version != expected {
		return 0, conflictError(expected, e.version)
	}
	next := entry{data: data, version: e.version + 1, expiresAt: extractExpiresAt(data)}
	b.data[key] = next
	return next.version, nil
}

// Delete implements tasks.Backend.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.data[key]
	delete(b.data, key)
	return ok, nil
}

// ListByPrefix implements tasks.Backend.
func (b *Backend) ListByPrefix(ctx context.Context, prefix string) (map[string]tasks.VersionedRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]tasks.VersionedRecord)
	for k, e := range b.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = tasks.VersionedRecord{Data: e.data, Version: e.version}
		}
	}
	return out, nil
}

// CleanupExpired implements tasks.Backend.
func (b *Backend) CleanupExpired(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range b.data {
		if e.expiresAt != nil && e.expiresAt.Before(now) {
			delete(b.data, k)
			removed++
		}
	}
	return removed, nil
}

func conflictError(expected, actual uint64) error {
	return mcperrors.Newf(mcperrors.KindConflict, "version conflict: expected %d, actual %d", expected, actual).WithField("version")
}
