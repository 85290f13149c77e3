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

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/tasks/memory"
)

func TestPutVersionsMonotonic(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	v1, err := b.Put(ctx, "o1:t1", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)

	v2, err := b.Put(ctx, "o1:t1", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2)
}

func TestPutIfVersionConflict(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, err := b.Put(ctx, "o1:t1", []byte(`{}`))
	require.NoError(t, err)

	_, err = b.PutIfVersion(ctx, "o1:t1", []byte(`{}`), 99)
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindConflict, mcperrors.KindOf(err))

	v, err := b.PutIfVersion(ctx, "o1:t1", []byte(`{}`), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestPutIfVersionAbsentKeyNonzeroExpected(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, err := b.PutIfVersion(ctx, "missing", []byte(`{}`), 5)
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindConflict, mcperrors.KindOf(err))
}

func TestListByPrefixOwnerScoped(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, _ = b.Put(ctx, "o1:a", []byte(`{}`))
	_, _ = b.Put(ctx, "o1:b", []byte(`{}`))
	_, _ = b.Put(ctx, "o2:c", []byte(`{}`))

	out, err := b.ListByPrefix(ctx, "o1:")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, _ = b.Put(ctx, "o1:a", []byte(`{}`))

	existed, err := b.Delete(ctx, "o1:a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = b.Delete(ctx, "o1:a")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, err := b.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, mcperrors.KindNotFound, mcperrors.KindOf(err))
}
