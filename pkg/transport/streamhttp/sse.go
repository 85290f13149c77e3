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
	"fmt"

	"github.com/gin-gonic/gin"
)

// sseWriter writes Server-Sent Events to a gin response, setting the
// streaming headers once and flushing after every event so the client
// observes each message as it is written.
type sseWriter struct {
	c *gin.Context
}

func newSSEWriter(c *gin.Context) *sseWriter {
	c.Header("Content-Type", contentTypeSSE)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(200)
	c.Writer.Flush()
	return &sseWriter{c: c}
}

// WriteEvent writes one "message" event. id is rendered as the SSE `id:`
// line the client echoes back via Last-Event-ID on reconnect.
func (w *sseWriter) WriteEvent(id uint64, data []byte) error {
	if _, err := fmt.Fprintf(w.c.Writer, "id: %d\nevent: message\ndata: %s\n\n", id, data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// WriteComment writes an SSE comment line, used for heartbeats: comments
// keep the connection alive without being parsed as a message event.
func (w *sseWriter) WriteComment(text string) error {
	if _, err := fmt.Fprintf(w.c.Writer, ": %s\n\n", text); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}
