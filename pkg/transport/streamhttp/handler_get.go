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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// heartbeatInterval is the SSE keep-alive cadence.
const heartbeatInterval = 10 * time.Second

// handleGet opens an SSE stream for server-initiated messages. A
// Last-Event-ID header resumes from that point: the session's event
// counter is advanced so newly pushed events continue numbering from
// where the client left off.
func (s *Server) handleGet(c *gin.Context) {
	sess := s.sessionFor(c)
	s.applyContinuityHeaders(c, sess)

	if lastID := c.GetHeader(HeaderLastEventID); lastID != "" {
		if n, err := strconv.ParseUint(lastID, 10, 64); err == nil {
			sess.observeEventID(n)
		}
	}

	w := newSSEWriter(c)
	ctx := c.Request.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteComment("heartbeat"); err != nil {
				return
			}
		}
	}
}
