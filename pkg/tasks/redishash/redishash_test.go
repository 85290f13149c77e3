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

package redishash_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/tasks/redishash"
)

func newTestBackend(t *testing.T) *redishash.Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redishash.New(client)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	v, err := b.Put(ctx, "o1:t1", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	rec, err := b.Get(ctx, "o1:t1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Version)
	assert.JSONEq(t, `{"a":1}`, string(rec.Data))
}

func TestPutVersionsMonotonic(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	v1, err := b.Put(ctx, "o1:t1", []byte(`{}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)

	v2, err := b.Put(ctx, "o1:t1", []byte(`{}`))
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2)
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Get(ctx, "o1:missing")
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindNotFound, mcperrors.KindOf(err))
}

func TestPutIfVersionConflict(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Put(ctx, "o1:t1", []byte(`{}`))
	require.NoError(t, err)

	_, err = b.PutIfVersion(ctx, "o1:t1", []byte(`{}`), 99)
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindConflict, mcperrors.KindOf(err))

	v, err := b.PutIfVersion(ctx, "o1:t1", []byte(`{}`), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestPutIfVersionAbsentKey(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.PutIfVersion(ctx, "o1:missing", []byte(`{}`), 1)
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindConflict, mcperrors.KindOf(err))
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	_, _ = b.Put(ctx, "o1:a", []byte(`{}`))

	existed, err := b.Delete(ctx, "o1:a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = b.Delete(ctx, "o1:a")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestListByPrefixOwnerScoped(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	now := time.Now()
	first := now.Format(time.RFC3339Nano)
	second := now.Add(time.Second).Format(time.RFC3339Nano)

	_, err := b.Put(ctx, "o1:a", []byte(`{"createdAt":"`+first+`"}`))
	require.NoError(t, err)
	_, err = b.Put(ctx, "o1:b", []byte(`{"createdAt":"`+second+`"}`))
	require.NoError(t, err)
	_, err = b.Put(ctx, "o2:c", []byte(`{}`))
	require.NoError(t, err)

	out, err := b.ListByPrefix(ctx, "o1:")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	_, ok := out["o1:a"]
	assert.True(t, ok)
	_, ok = out["o1:b"]
	assert.True(t, ok)
	_, ok = out["o2:c"]
	assert.False(t, ok)
}

func TestCleanupExpiredIsNoOp(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	n, err := b.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithPrefixIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	a := b.WithPrefix("tenant-a")
	z := b.WithPrefix("tenant-z")

	_, err := a.Put(ctx, "o1:t1", []byte(`{}`))
	require.NoError(t, err)

	_, err = z.Get(ctx, "o1:t1")
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindNotFound, mcperrors.KindOf(err))
}
