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
	"os"
	"strconv"
	"strings"
	"time"
)

// config is this binary's entire configuration surface: every field comes
// from an MCPCORE_* environment variable (following internal/logging's
// FromEnv convention) rather than a flag or YAML file, since this
// composition root is kept deliberately thin.
type config struct {
	Addr string
	Path string

	Stateless bool

	TaskBackend    string // "memory" (default), "dynamokv", or "redishash"
	DynamoTable    string
	RedisAddr      string
	MaxTasksPerOwn int

	AuthProvider string // "", "cognito", "google", "auth0", "okta", "entra"
	AuthRegion   string // cognito
	AuthPoolID   string // cognito
	AuthDomain   string // auth0, okta
	AuthTenantID string // entra
	AuthClientID string

	TracingEnabled bool
	OTLPEndpoint   string

	WorkflowsDir    string
	RateLimitPerMin int

	ShutdownTimeout time.Duration
}

func loadConfig() config {
	return config{
		Addr:            envOr("MCPCORE_ADDR", ":8080"),
		Path:            envOr("MCPCORE_PATH", "/mcp"),
		Stateless:       envBool("MCPCORE_STATELESS", false),
		TaskBackend:     strings.ToLower(envOr("MCPCORE_TASK_BACKEND", "memory")),
		DynamoTable:     os.Getenv("MCPCORE_DYNAMODB_TABLE"),
		RedisAddr:       envOr("MCPCORE_REDIS_ADDR", "localhost:6379"),
		MaxTasksPerOwn:  envInt("MCPCORE_MAX_TASKS_PER_OWNER", 0),
		AuthProvider:    strings.ToLower(os.Getenv("MCPCORE_AUTH_PROVIDER")),
		AuthRegion:      os.Getenv("MCPCORE_AUTH_REGION"),
		AuthPoolID:      os.Getenv("MCPCORE_AUTH_POOL_ID"),
		AuthDomain:      os.Getenv("MCPCORE_AUTH_DOMAIN"),
		AuthTenantID:    os.Getenv("MCPCORE_AUTH_TENANT_ID"),
		AuthClientID:    os.Getenv("MCPCORE_AUTH_CLIENT_ID"),
		TracingEnabled:  envBool("MCPCORE_TRACING_ENABLED", false),
		OTLPEndpoint:    os.Getenv("MCPCORE_OTLP_ENDPOINT"),
		WorkflowsDir:    os.Getenv("MCPCORE_WORKFLOWS_DIR"),
		RateLimitPerMin: envInt("MCPCORE_RATE_LIMIT_PER_MINUTE", 0),
		ShutdownTimeout: envDuration("MCPCORE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
