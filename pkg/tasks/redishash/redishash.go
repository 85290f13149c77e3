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

// Package redishash provides a tasks.Backend implementation on top of Redis,
// storing each task as a hash and maintaining a per-owner sorted-set index
// for listing.
//
// Key schema:
//
//	{prefix}:tasks:{owner}:{taskID}  hash   {version, data, expires_at?}
//	{prefix}:idx:{owner}             zset   member=taskID, score=creation ms
//
// Writes run as single-round-trip Lua scripts so the hash update, TTL, and
// index update stay atomic. Like the other backends this package holds no
// domain logic — state machine validation, owner checks, variable merge and
// TTL policy all live in tasks.Store.
package redishash

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/tasks"
)

const defaultKeyPrefix = "mcpcore"

// luaPut performs an unconditional put: bump version, store data, set or
// clear TTL, and add the task to the owner's sorted-set index.
//
// KEYS[1] = task hash key, KEYS[2] = owner index key.
// ARGV[1] = data, ARGV[2] = expires_at epoch ("" if none), ARGV[3] = taskID,
// ARGV[4] = creation score.
var luaPut = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
local new_version
if current then
    new_version = tonumber(current) + 1
else
    new_version = 1
end

redis.call('HSET', KEYS[1], 'version', tostring(new_version), 'data', ARGV[1])

if ARGV[2] ~= '' then
    redis.call('HSET', KEYS[1], 'expires_at', ARGV[2])
    redis.call('EXPIREAT', KEYS[1], tonumber(ARGV[2]))
else
    redis.call('HDEL', KEYS[1], 'expires_at')
    redis.call('PERSIST', KEYS[1])
end

redis.call('ZADD', KEYS[2], 'NX', tonumber(ARGV[4]), ARGV[3])

return new_version
`)

// luaPutIfVersion performs the CAS put.
//
// Same KEYS as luaPut; ARGV[2] = expected_version, ARGV[3] = expires_at
// epoch, ARGV[4] = taskID, ARGV[5] = creation score.
// Returns {status, value}: 1=success (value=new version), 0=mismatch
// (value=actual version), -1=missing key with a nonzero expected version
// (value=0). A missing key with expected version 0 is created at version 1.
var luaPutIfVersion = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
    if tonumber(ARGV[2]) ~= 0 then
        return {-1, 0}
    end
    current = '0'
end

local expected = tonumber(ARGV[2])
local actual = tonumber(current)
if actual ~= expected then
    return {0, actual}
end

local new_version = actual + 1
redis.call('HSET', KEYS[1], 'version', tostring(new_version), 'data', ARGV[1])

if ARGV[3] ~= '' then
    redis.call('HSET', KEYS[1], 'expires_at', ARGV[3])
    redis.call('EXPIREAT', KEYS[1], tonumber(ARGV[3]))
else
    redis.call('HDEL', KEYS[1], 'expires_at')
    redis.call('PERSIST', KEYS[1])
end

redis.call('ZADD', KEYS[2], 'NX', tonumber(ARGV[5]), ARGV[4])

return {1, new_version}
`)

// luaDelete removes the hash and its index entry atomically.
//
// KEYS[1] = task hash key, KEYS[2] = owner index key, ARGV[1] = taskID.
var luaDelete = redis.NewScript(`
local existed = redis.call('EXISTS', KEYS[1])
if existed == 1 then
    redis.call('DEL', KEYS[1])
    redis.call('ZREM', KEYS[2], ARGV[1])
    return 1
end
return 0
`)

// Compile-time interface assertion.
var _ tasks.Backend = (*Backend)(nil)

// Backend is a Redis-backed tasks.Backend.
type Backend struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New wraps a pre-built Redis client with the default "mcpcore" key prefix.
func New(client redis.UniversalClient) *Backend {
	return &Backend{client: client, keyPrefix: defaultKeyPrefix}
}

// WithPrefix returns a copy of the backend using a custom key prefix,
// useful for per-test isolation against a shared Redis instance.
func (b *Backend) WithPrefix(prefix string) *Backend {
	return &Backend{client: b.client, keyPrefix: prefix}
}

func (b *Backend) taskKey(owner, taskID string) string {
	return b.keyPrefix + ":tasks:" + owner + ":" + taskID
}

func (b *Backend) indexKey(owner string) string {
	return b.keyPrefix + ":idx:" + owner
}

func splitKey(key string) (owner, taskID string, err error) {
	owner, taskID, ok := strings.Cut(key, ":")
	if !ok {
		return "", "", mcperrors.Newf(mcperrors.KindInternal, "invalid key format (missing ':'): %s", key)
	}
	return owner, taskID, nil
}

func splitPrefix(prefix string) (string, error) {
	owner, ok := strings.CutSuffix(prefix, ":")
	if !ok {
		return "", mcperrors.Newf(mcperrors.KindInternal, "invalid prefix format (missing trailing ':'): %s", prefix)
	}
	return owner, nil
}

func extractTTLEpoch(data []byte) (int64, bool) {
	var probe struct {
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ExpiresAt == nil {
		return 0, false
	}
	return probe.ExpiresAt.Unix(), true
}

func extractCreatedAtMs(data []byte) int64 {
	var probe struct {
		CreatedAt *time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.CreatedAt == nil {
		return 0
	}
	return probe.CreatedAt.UnixMilli()
}

func mapRedisError(err error, key string) error {
	return mcperrors.Newf(mcperrors.KindInternal, "redis error for key %s", key).WithCause(err)
}

func isExpired(fields map[string]string) bool {
	raw, ok := fields["expires_at"]
	if !ok {
		return false
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return epoch <= time.Now().Unix()
}

// Get implements tasks.Backend.
func (b *Backend) Get(ctx context.Context, key string) (tasks.VersionedRecord, error) {
	owner, taskID, err := splitKey(key)
	if err != nil {
		return tasks.VersionedRecord{}, err
	}

	fields, err := b.client.HGetAll(ctx, b.taskKey(owner, taskID)).Result()
	if err != nil {
		return tasks.VersionedRecord{}, mapRedisError(err, key)
	}
	if len(fields) == 0 || isExpired(fields) {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindNotFound, "key %s not found", key)
	}

	version, err := strconv.ParseUint(fields["version"], 10, 64)
	if err != nil {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindInternal, "missing or invalid version field for key %s", key)
	}
	data, ok := fields["data"]
	if !ok {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindInternal, "missing data field for key %s", key)
	}

	return tasks.VersionedRecord{Data: []byte(data), Version: version}, nil
}

// Put implements tasks.Backend.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	owner, taskID, err := splitKey(key)
	if err != nil {
		return 0, err
	}

	expiresAtArg := ""
	if epoch, ok := extractTTLEpoch(data); ok {
		expiresAtArg = strconv.FormatInt(epoch, 10)
	}
	creationScore := extractCreatedAtMs(data)

	keys := []string{b.taskKey(owner, taskID), b.indexKey(owner)}
	res, err := luaPut.Run(ctx, b.client, keys, string(data), expiresAtArg, taskID, creationScore).Result()
	if err != nil {
		return 0, mapRedisError(err, key)
	}
	return uint64(toInt64(res)), nil
}

// PutIfVersion implements tasks.Backend.
func (b *Backend) PutIfVersion(ctx context.Context, key string, data []byte, expected uint64) (uint64, error) {
	owner, taskID, err := splitKey(key)
	if err != nil {
		return 0, err
	}

	expiresAtArg := ""
	if epoch, ok := extractTTLEpoch(data); ok {
		expiresAtArg = strconv.FormatInt(epoch, 10)
	}
	creationScore := extractCreatedAtMs(data)

	keys := []string{b.taskKey(owner, taskID), b.indexKey(owner)}
	res, err := luaPutIfVersion.Run(ctx, b.client, keys, string(data), expected, expiresAtArg, taskID, creationScore).Result()
	if err != nil {
		return 0, mapRedisError(err, key)
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, mcperrors.Newf(mcperrors.KindInternal, "unexpected CAS script result for key %s", key)
	}
	status := toInt64(pair[0])
	value := toInt64(pair[1])

	switch status {
	case 1:
		return uint64(value), nil
	case 0:
		return 0, mcperrors.Newf(mcperrors.KindConflict, "version conflict: expected %d, actual %d", expected, value).WithField("version")
	default:
		return 0, mcperrors.Newf(mcperrors.KindConflict, "version conflict: key %s does not exist", key).WithField("version")
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// Delete implements tasks.Backend.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	owner, taskID, err := splitKey(key)
	if err != nil {
		return false, err
	}

	keys := []string{b.taskKey(owner, taskID), b.indexKey(owner)}
	res, err := luaDelete.Run(ctx, b.client, keys, taskID).Result()
	if err != nil {
		return false, mapRedisError(err, key)
	}
	return toInt64(res) == 1, nil
}

// ListByPrefix implements tasks.Backend.
func (b *Backend) ListByPrefix(ctx context.Context, prefix string) (map[string]tasks.VersionedRecord, error) {
	owner, err := splitPrefix(prefix)
	if err != nil {
		return nil, err
	}

	idxKey := b.indexKey(owner)
	taskIDs, err := b.client.ZRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return nil, mapRedisError(err, prefix)
	}

	out := make(map[string]tasks.VersionedRecord, len(taskIDs))
	var orphaned []string

	for _, taskID := range taskIDs {
		fields, err := b.client.HGetAll(ctx, b.taskKey(owner, taskID)).Result()
		if err != nil {
			return nil, mapRedisError(err, prefix)
		}
		if len(fields) == 0 || isExpired(fields) {
			orphaned = append(orphaned, taskID)
			continue
		}

		version, err := strconv.ParseUint(fields["version"], 10, 64)
		if err != nil {
			continue
		}
		out[owner+":"+taskID] = tasks.VersionedRecord{Data: []byte(fields["data"]), Version: version}
	}

	if len(orphaned) > 0 {
		// Best-effort lazy cleanup of index entries whose hash already
		// expired; errors here don't fail the list.
		_ = b.client.ZRem(ctx, idxKey, toAnySlice(orphaned)...).Err()
	}

	return out, nil
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// CleanupExpired implements tasks.Backend as a no-op: Redis's own
// EXPIRE/EXPIREAT handles hash eviction. Orphaned index entries are cleaned
// lazily during ListByPrefix.
func (b *Backend) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}
