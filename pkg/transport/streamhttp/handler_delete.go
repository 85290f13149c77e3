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
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleDelete terminates a session server-side. A request with no
// recognized mcp-session-id is a no-op success: the session is already
// gone from the server's point of view.
func (s *Server) handleDelete(c *gin.Context) {
	id := c.GetHeader(HeaderSessionID)
	if id != "" {
		s.sessions.Delete(id)
	}
	c.Status(http.StatusOK)
}
