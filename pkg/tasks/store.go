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

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

// defaultMaxCASRetries bounds the read-modify-CAS retry loop every mutating
// Store operation runs. The record must be reloaded right before each CAS
// attempt rather than holding a stale read across a retry.
const defaultMaxCASRetries = 5

// Config holds the Store's tunables; construct with NewStore's functional
// options rather than building this struct directly.
type Config struct {
	DefaultTTLMs            uint64
	MaxTTLMs                uint64
	MaxVariablePayloadBytes int
	DefaultPollIntervalMs   uint64
	DefaultListPageSize     int
	MaxListPageSize         int
}

// SecurityConfig governs owner-level policy: how many tasks an owner may
// have live at once, and whether an empty owner identity is permitted.
type SecurityConfig struct {
	MaxTasksPerOwner int
	AllowAnonymous   bool
}

func defaultConfig() Config {
	return Config{
		DefaultTTLMs:            15 * 60 * 1000,
		MaxTTLMs:                24 * 60 * 60 * 1000,
		MaxVariablePayloadBytes: 256 * 1024,
		DefaultPollIntervalMs:   2000,
		DefaultListPageSize:     50,
		MaxListPageSize:         500,
	}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithConfig overrides the Store's tunables.
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.config = cfg }
}

// WithSecurityConfig overrides the Store's owner policy.
func WithSecurityConfig(cfg SecurityConfig) Option {
	return func(s *Store) { s.security = cfg }
}

// WithClock overrides the Store's time source; intended for tests that
// exercise TTL expiry without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMaxCASRetries overrides the CAS retry bound; intended for tests that
// exercise the Conflict-after-exhaustion path deterministically.
func WithMaxCASRetries(n int) Option {
	return func(s *Store) { s.maxCASRetries = n }
}

// Store is the domain layer over a Backend: it owns the task state
// machine, CAS retry, TTL resolution, owner isolation, and variable merge
// semantics. Backend implementations carry no task-domain knowledge.
type Store struct {
	backend       Backend
	config        Config
	security      SecurityConfig
	clock         func() time.Time
	maxCASRetries int
}

// NewStore builds a Store over backend with the given options applied.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		config:        defaultConfig(),
		clock:         time.Now,
		maxCASRetries: defaultMaxCASRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(owner, taskID string) string {
	return owner + ":" + taskID
}

func validIdentity(s string) bool {
	return !strings.Contains(s, ":")
}

// ListParams configures Store.List.
type ListParams struct {
	Owner  string
	Cursor *string
	Limit  *int
}

// Create starts a new task owned by owner, with origin describing the
// method or workflow name that created it. ttlMs, if nil, resolves to the
// store's DefaultTTLMs; an explicit value greater than MaxTTLMs is
// rejected rather than silently clamped.
func (s *Store) Create(ctx context.Context, owner, origin string, ttlMs *uint64) (*TaskRecord, error) {
	owner, err := s.resolveAndValidateOwner(owner)
	if err != nil {
		return nil, err
	}
	if !validIdentity(owner) {
		return nil, mcperrors.New(mcperrors.KindProtocol, "owner id must not contain ':'").WithField("owner")
	}

	effectiveTTL := s.config.DefaultTTLMs
	if ttlMs != nil {
		if *ttlMs > s.config.MaxTTLMs {
			return nil, mcperrors.Newf(mcperrors.KindProtocol, "ttl %dms exceeds maximum %dms", *ttlMs, s.config.MaxTTLMs).WithField("ttl")
		}
		effectiveTTL = *ttlMs
	}

	if s.security.MaxTasksPerOwner > 0 {
		existing, err := s.backend.ListByPrefix(ctx, owner+":")
		if err != nil {
			return nil, fmt.Errorf("checking owner quota: %w", err)
		}
		if len(existing) >= s.security.MaxTasksPerOwner {
			return nil, mcperrors.Newf(mcperrors.KindQuotaExceeded, "owner %s has reached the task limit of %d", owner, s.security.MaxTasksPerOwner).WithField("owner")
		}
	}

	taskID := uuid.NewString()
	if !validIdentity(taskID) {
		return nil, mcperrors.New(mcperrors.KindInternal, "generated task id contains ':'")
	}
	now := s.clock()
	expiresAt := now.Add(time.Duration(effectiveTTL) * time.Millisecond)
	pollInterval := s.config.DefaultPollIntervalMs

	rec := &TaskRecord{
		TaskID:         taskID,
		OwnerID:        owner,
		Status:         StatusWorking,
		OriginMethod:   origin,
		CreatedAt:      now,
		LastUpdatedAt:  now,
		TTLMs:          &effectiveTTL,
		ExpiresAt:      &expiresAt,
		PollIntervalMs: &pollInterval,
		Variables:      map[string]json.RawMessage{},
		Version:        1,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal task record: %w", err)
	}
	version, err := s.backend.Put(ctx, key(owner, taskID), data)
	if err != nil {
		return nil, err
	}
	rec.Version = version
	return rec, nil
}

// AllowAnonymous reports whether this Store accepts an empty owner
// identity (substituting "local"), for callers that need to resolve an
// owner before calling Store methods that don't perform that
// substitution themselves.
func (s *Store) AllowAnonymous() bool {
	return s.security.AllowAnonymous
}

func (s *Store) resolveAndValidateOwner(owner string) (string, error) {
	if owner == "" {
		if s.security.AllowAnonymous {
			return "local", nil
		}
		return "", mcperrors.New(mcperrors.KindAuthentication, "owner identity required")
	}
	return owner, nil
}

// Get loads a task by (taskID, owner). If owner does not match the
// record's true owner, this returns NotFound rather than Forbidden — owner
// isolation never confirms a task's existence to the wrong caller.
func (s *Store) Get(ctx context.Context, taskID, owner string) (*TaskRecord, error) {
	return s.load(ctx, taskID, owner)
}

func (s *Store) load(ctx context.Context, taskID, owner string) (*TaskRecord, error) {
	vr, err := s.backend.Get(ctx, key(owner, taskID))
	if err != nil {
		return nil, err
	}
	var rec TaskRecord
	if err := json.Unmarshal(vr.Data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal task record: %w", err)
	}
	rec.OwnerID = owner
	rec.Version = vr.Version
	return &rec, nil
}

// mutate implements the read-modify-CAS loop shared by every write path:
// load the current record, let fn validate and apply the change, then
// attempt a conditional write. On VersionConflict it reloads and retries,
// bounded at s.maxCASRetries, reloading right before each CAS attempt
// rather than reusing a stale read.
func (s *Store) mutate(ctx context.Context, taskID, owner string, fn func(*TaskRecord) error) (*TaskRecord, error) {
	k := key(owner, taskID)
	var lastErr error
	for attempt := 0; attempt < s.maxCASRetries; attempt++ {
		vr, err := s.backend.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		var rec TaskRecord
		if err := json.Unmarshal(vr.Data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal task record: %w", err)
		}
		rec.OwnerID = owner
		rec.Version = vr.Version

		now := s.clock()
		if rec.Expired(now) {
			return nil, mcperrors.New(mcperrors.KindExpired, "task has expired").WithField("task_id")
		}

		if err := fn(&rec); err != nil {
			return nil, err
		}
		rec.LastUpdatedAt = now

		data, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("marshal task record: %w", err)
		}
		newVersion, err := s.backend.PutIfVersion(ctx, k, data, vr.Version)
		if err == nil {
			rec.Version = newVersion
			return &rec, nil
		}
		if !mcperrors.IsKind(err, mcperrors.KindConflict) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = mcperrors.New(mcperrors.KindConflict, "cas retries exhausted")
	}
	return nil, mcperrors.New(mcperrors.KindConflict, "cas retries exhausted").WithCause(lastErr)
}

func validTransition(from, to Status) bool {
	if from == StatusWorking && to == StatusWorking {
		return true
	}
	return from == StatusWorking && to.Terminal()
}

// UpdateStatus applies a status transition. Transitioning to Failed
// attaches msg as the TaskError message; transitioning to Working updates
// only StatusMessage. Invalid transitions (anything not Working->*) fail
// with InvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, taskID, owner string, newStatus Status, msg *string) (*TaskRecord, error) {
	if !newStatus.Valid() {
		return nil, mcperrors.Newf(mcperrors.KindProtocol, "unknown status %q", newStatus)
	}
	return s.mutate(ctx, taskID, owner, func(rec *TaskRecord) error {
		if !validTransition(rec.Status, newStatus) {
			return mcperrors.Newf(mcperrors.KindInvalidTransition, "cannot transition from %s to %s", rec.Status, newStatus)
		}
		rec.Status = newStatus
		rec.StatusMessage = msg
		if newStatus == StatusFailed && msg != nil {
			rec.Error = &TaskError{Code: string(mcperrors.KindInternal), Message: *msg}
		}
		return nil
	})
}

// Cancel transitions a Working task to Cancelled. Cancelling a terminal
// task is an InvalidTransition error and leaves the record unchanged.
func (s *Store) Cancel(ctx context.Context, taskID, owner string) (*TaskRecord, error) {
	return s.mutate(ctx, taskID, owner, func(rec *TaskRecord) error {
		if rec.Status.Terminal() {
			return mcperrors.Newf(mcperrors.KindInvalidTransition, "task %s is already terminal (%s)", taskID, rec.Status)
		}
		rec.Status = StatusCancelled
		return nil
	})
}

// CompleteWithResult is the only path that sets Result (or Error, for
// Failed) atomically with the terminal transition.
func (s *Store) CompleteWithResult(ctx context.Context, taskID, owner string, terminal Status, msg *string, result json.RawMessage) (*TaskRecord, error) {
	if !terminal.Terminal() {
		return nil, mcperrors.Newf(mcperrors.KindProtocol, "%s is not a terminal status", terminal)
	}
	return s.mutate(ctx, taskID, owner, func(rec *TaskRecord) error {
		if rec.Status != StatusWorking {
			return mcperrors.Newf(mcperrors.KindInvalidTransition, "cannot complete task in %s state", rec.Status)
		}
		rec.Status = terminal
		rec.StatusMessage = msg
		if terminal == StatusFailed {
			errMsg := ""
			if msg != nil {
				errMsg = *msg
			}
			rec.Error = &TaskError{Code: string(mcperrors.KindInternal), Message: errMsg}
		} else {
			rec.Result = result
		}
		return nil
	})
}

// SetVariables merges m into the task's variables: a key mapped to JSON
// null deletes that key; all other keys are set/overwritten. The merge is
// atomic — it lands entirely or not at all, since it runs inside the CAS
// loop.
func (s *Store) SetVariables(ctx context.Context, taskID, owner string, m map[string]json.RawMessage) (*TaskRecord, error) {
	return s.mutate(ctx, taskID, owner, func(rec *TaskRecord) error {
		if rec.Status.Terminal() {
			return mcperrors.Newf(mcperrors.KindInvalidTransition, "cannot mutate terminal task %s", taskID)
		}
		if rec.Variables == nil {
			rec.Variables = map[string]json.RawMessage{}
		}
		merged := make(map[string]json.RawMessage, len(rec.Variables)+len(m))
		for k, v := range rec.Variables {
			merged[k] = v
		}
		for k, v := range m {
			if isJSONNull(v) {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		size, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		if s.config.MaxVariablePayloadBytes > 0 && len(size) > s.config.MaxVariablePayloadBytes {
			return mcperrors.Newf(mcperrors.KindOversizedPayload, "variables payload %d bytes exceeds cap %d", len(size), s.config.MaxVariablePayloadBytes)
		}
		rec.Variables = merged
		return nil
	})
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// GetResult returns the task's result if it is terminal, else NotReady.
func (s *Store) GetResult(ctx context.Context, taskID, owner string) (json.RawMessage, error) {
	rec, err := s.load(ctx, taskID, owner)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, mcperrors.Newf(mcperrors.KindNotReady, "task %s is not yet terminal", taskID)
	}
	return rec.Result, nil
}

// List returns a page of p.Owner's tasks, newest-first by CreatedAt.
func (s *Store) List(ctx context.Context, p ListParams) (*TaskPage, error) {
	entries, err := s.backend.ListByPrefix(ctx, p.Owner+":")
	if err != nil {
		return nil, err
	}

	records := make([]*TaskRecord, 0, len(entries))
	for _, vr := range entries {
		var rec TaskRecord
		// Tolerate orphaned or malformed entries rather than fail the
		// whole listing — see DESIGN.md's note on the DynamoDB/Redis
		// "orphaned index entry" open question.
		if err := json.Unmarshal(vr.Data, &rec); err != nil {
			continue
		}
		rec.OwnerID = p.Owner
		rec.Version = vr.Version
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	offset := 0
	if p.Cursor != nil {
		if parsed, err := strconv.Atoi(*p.Cursor); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	limit := s.config.DefaultListPageSize
	if p.Limit != nil {
		limit = *p.Limit
	}
	if limit > s.config.MaxListPageSize {
		limit = s.config.MaxListPageSize
	}
	if limit <= 0 {
		limit = s.config.DefaultListPageSize
	}

	if offset > len(records) {
		offset = len(records)
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	page := records[offset:end]

	var nextCursor *string
	if end < len(records) {
		c := strconv.Itoa(end)
		nextCursor = &c
	}

	return &TaskPage{Records: page, NextCursor: nextCursor}, nil
}

// CleanupExpired best-effort removes expired tasks across the backend.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	return s.backend.CleanupExpired(ctx)
}
