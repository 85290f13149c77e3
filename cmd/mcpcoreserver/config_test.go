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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/mcp", cfg.Path)
	assert.Equal(t, "memory", cfg.TaskBackend)
	assert.False(t, cfg.Stateless)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("MCPCORE_ADDR", ":9090")
	t.Setenv("MCPCORE_TASK_BACKEND", "REDISHASH")
	t.Setenv("MCPCORE_STATELESS", "true")
	t.Setenv("MCPCORE_SHUTDOWN_TIMEOUT", "2s")

	cfg := loadConfig()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "redishash", cfg.TaskBackend)
	assert.True(t, cfg.Stateless)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
}

func TestEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MCPCORE_MAX_TASKS_PER_OWNER", "not-a-number")
	assert.Equal(t, 7, envInt("MCPCORE_MAX_TASKS_PER_OWNER", 7))
}

func TestEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MCPCORE_SHUTDOWN_TIMEOUT", "not-a-duration")
	assert.Equal(t, 5*time.Second, envDuration("MCPCORE_SHUTDOWN_TIMEOUT", 5*time.Second))
}
