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

// Command mcpcoreserver is the thin composition root: it wires a
// pkg/tasks backend, an optional JWT authenticator, optional OpenTelemetry
// tracing, and pkg/mcpbuilder into a pkg/transport/streamhttp server, and
// runs it behind gin until a shutdown signal arrives. Everything it builds
// is exported by the rest of the module; host applications that need more
// than this default wiring import those packages directly rather than
// extend this binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/mcpcore/internal/logging"
	"github.com/tombee/mcpcore/internal/mcpserver"
	"github.com/tombee/mcpcore/internal/tracing"
	"github.com/tombee/mcpcore/pkg/auth/jwtauth"
	"github.com/tombee/mcpcore/pkg/auth/jwtauth/providers"
	"github.com/tombee/mcpcore/pkg/jsonrpc"
	"github.com/tombee/mcpcore/pkg/mcpbuilder"
	"github.com/tombee/mcpcore/pkg/middleware"
	"github.com/tombee/mcpcore/pkg/tasks"
	"github.com/tombee/mcpcore/pkg/tasks/dynamokv"
	"github.com/tombee/mcpcore/pkg/tasks/memory"
	"github.com/tombee/mcpcore/pkg/tasks/redishash"
	"github.com/tombee/mcpcore/pkg/transport/streamhttp"
	"github.com/tombee/mcpcore/pkg/workflow"
)

// version is injected via -ldflags at build time; "dev" otherwise.
var version = "dev"

func main() {
	logger := logging.New(logging.FromEnv())
	slog.SetDefault(logger)

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("mcpcoreserver exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	store, err := buildTaskStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build task store: %w", err)
	}

	var provider *tracing.OTelProvider
	if cfg.TracingEnabled {
		provider, err = buildTracingProvider(ctx, cfg)
		if err != nil {
			return fmt.Errorf("build tracing provider: %w", err)
		}
	}

	srv, err := buildServer(cfg, store, provider)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	var transportOpts []streamhttp.Option
	if auth := buildAuthenticator(cfg); auth != nil {
		transportOpts = append(transportOpts, streamhttp.WithAuthenticator(auth))
	}
	transportOpts = append(transportOpts, streamhttp.WithLogger(logger))

	transport := streamhttp.NewServer(srv, transportOpts...)

	engine := gin.New()
	engine.Use(gin.Recovery())
	if provider != nil {
		engine.Use(propagateTraceContext)
		engine.GET("/metrics", gin.WrapH(provider.MetricsHandler()))
	}
	transport.RegisterRoutes(engine, cfg.Path)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: engine}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("mcpcoreserver listening", slog.String("addr", cfg.Addr), slog.String("path", cfg.Path), slog.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return shutdownOnSignal(gctx, cfg, logger, httpServer, provider)
	})

	return g.Wait()
}

// propagateTraceContext extracts a W3C traceparent/baggage header pair
// from the inbound request, if present, so the span mcpserver.Dispatch
// opens is parented to the caller's trace instead of starting a new one.
func propagateTraceContext(c *gin.Context) {
	c.Request = c.Request.WithContext(tracing.ExtractHTTPHeaders(c.Request.Context(), c.Request))
	c.Next()
}

// shutdownOnSignal implements the two-phase drain: gctx.Done() (the first
// SIGINT/SIGTERM, via signal.NotifyContext in main) starts a graceful
// httpServer.Shutdown bounded by cfg.ShutdownTimeout; a second signal
// delivered while that drain is still in flight aborts the process
// immediately rather than waiting out the timeout.
func shutdownOnSignal(gctx context.Context, cfg config, logger *slog.Logger, httpServer *http.Server, provider *tracing.OTelProvider) error {
	<-gctx.Done()
	logger.Info("shutdown signal received, draining")

	hardAbort := make(chan os.Signal, 1)
	signal.Notify(hardAbort, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(hardAbort)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
		if provider != nil {
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("tracing provider shutdown failed", slog.Any("error", err))
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-hardAbort:
		logger.Warn("second shutdown signal received, forcing immediate exit")
		os.Exit(1)
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("graceful shutdown timed out, forcing exit")
		os.Exit(1)
		return nil
	}
}

func buildTaskStore(ctx context.Context, cfg config) (*tasks.Store, error) {
	var opts []tasks.Option
	if cfg.MaxTasksPerOwn > 0 {
		opts = append(opts, tasks.WithSecurityConfig(tasks.SecurityConfig{MaxTasksPerOwner: cfg.MaxTasksPerOwn}))
	}

	switch cfg.TaskBackend {
	case "", "memory":
		return tasks.NewStore(memory.New(), opts...), nil
	case "dynamokv":
		backend, err := dynamokv.FromEnv(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, fmt.Errorf("dynamokv backend: %w", err)
		}
		return tasks.NewStore(backend, opts...), nil
	case "redishash":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return tasks.NewStore(redishash.New(client), opts...), nil
	default:
		return nil, fmt.Errorf("unknown MCPCORE_TASK_BACKEND %q", cfg.TaskBackend)
	}
}

func buildServer(cfg config, store *tasks.Store, provider *tracing.OTelProvider) (*mcpserver.Server, error) {
	b := mcpbuilder.New(jsonrpc.Implementation{Name: "mcpcoreserver", Version: version}).
		WithStateless(cfg.Stateless).
		WithTaskStore(store)

	if provider != nil {
		b = b.WithObservability(provider.Tracer("mcpcoreserver"), tracing.NewMetricsSink(provider.MetricsCollector()))
	}

	if cfg.RateLimitPerMin > 0 {
		b = b.WithToolMiddleware(middleware.NewRateLimitMiddleware(0, cfg.RateLimitPerMin))
	}

	if cfg.WorkflowsDir != "" {
		defs, err := loadWorkflows(cfg.WorkflowsDir)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			b = b.WithWorkflow(def)
		}
	}

	return b.Build()
}

// loadWorkflows parses every .yaml/.yml file in dir as a workflow
// definition. Subdirectories and files with any other extension are
// skipped; a .yaml/.yml file that cannot be read or parsed is an error, so
// a typo in a definition fails startup instead of silently dropping a
// prompt.
func loadWorkflows(dir string) ([]*workflow.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	var defs []*workflow.WorkflowDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read workflow %s: %w", entry.Name(), err)
		}
		def, err := workflow.ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", entry.Name(), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// buildAuthenticator registers the single provider named by
// MCPCORE_AUTH_PROVIDER, if any; a host that needs multiple tenants wires
// jwtauth.MultiTenantAuthenticator directly rather than through this env
// surface.
func buildAuthenticator(cfg config) *jwtauth.MultiTenantAuthenticator {
	var vcfg jwtauth.ValidationConfig
	switch cfg.AuthProvider {
	case "cognito":
		vcfg = providers.Cognito(cfg.AuthRegion, cfg.AuthPoolID, cfg.AuthClientID)
	case "google":
		vcfg = providers.Google(cfg.AuthClientID)
	case "auth0":
		vcfg = providers.Auth0(cfg.AuthDomain, cfg.AuthClientID)
	case "okta":
		vcfg = providers.Okta(cfg.AuthDomain, cfg.AuthClientID)
	case "entra":
		vcfg = providers.Entra(cfg.AuthTenantID, cfg.AuthClientID)
	default:
		return nil
	}

	auth := jwtauth.NewMultiTenantAuthenticator(jwtauth.NewValidator(0, http.DefaultClient))
	auth.Register(vcfg)
	return auth
}

func buildTracingProvider(ctx context.Context, cfg config) (*tracing.OTelProvider, error) {
	tcfg := tracing.DefaultConfig()
	tcfg.Enabled = true
	tcfg.ServiceName = "mcpcoreserver"
	tcfg.ServiceVersion = version

	if cfg.OTLPEndpoint != "" {
		tcfg.Exporters = []tracing.ExporterConfig{{Type: "otlp", Endpoint: cfg.OTLPEndpoint}}
	} else {
		tcfg.Exporters = []tracing.ExporterConfig{{Type: "console"}}
	}

	processors, err := tracing.CreateExportersFromConfig(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("create exporters: %w", err)
	}

	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	provider, err := tracing.NewOTelProviderWithConfig(tcfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("new otel provider: %w", err)
	}
	return provider, nil
}
