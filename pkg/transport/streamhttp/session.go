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

package streamhttp

import (
	"sync"

	"github.com/google/uuid"
)

// Session tracks per-client state behind a short-lived lock: the
// negotiated protocol version and the last SSE event id observed, for
// Last-Event-ID resumption on reconnect.
type Session struct {
	mu              sync.RWMutex
	id              string
	protocolVersion string
	lastEventID     uint64
}

// ID returns the session's assigned identifier.
func (s *Session) ID() string { return s.id }

// ProtocolVersion returns the version negotiated for this session, or
// the empty string before "initialize" completes.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// SetProtocolVersion records the version negotiated by "initialize".
func (s *Session) SetProtocolVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = v
}

// NextEventID allocates and records the next SSE event id for this
// session's push stream.
func (s *Session) NextEventID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEventID++
	return s.lastEventID
}

// LastEventID returns the last SSE event id sent on this session's
// stream, or 0 if none has been sent yet.
func (s *Session) LastEventID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEventID
}

// observeEventID advances the session's counter to at least id, so a
// resumed stream (Last-Event-ID header on reconnect) continues numbering
// from where the client left off rather than restarting at 1.
func (s *Session) observeEventID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.lastEventID {
		s.lastEventID = id
	}
}

// SessionManager is a concurrency-safe registry of active sessions,
// keyed by the mcp-session-id the transport assigns on first response.
// The registry is read-mostly; a write lock is only held while creating
// or deleting an entry.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create allocates a new session with a fresh id.
func (m *SessionManager) Create() *Session {
	s := &Session{id: uuid.NewString()}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get looks up a session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session, terminating it server-side.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
