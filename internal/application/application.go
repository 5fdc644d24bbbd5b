/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package application

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemapin/internal/config"
	"schemapin/internal/daemon"
	"schemapin/internal/metrics"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
	"schemapin/internal/server"
	"schemapin/internal/signer"
	"schemapin/internal/storage"
	"schemapin/internal/storage/types"
	"schemapin/internal/verify"
)

// App represents the main application structure that orchestrates all components
// including HTTP servers, storage, cryptographic signer, the TOFU pin store,
// and the per-domain discovery/revocation watcher. It manages the application
// lifecycle from initialization to graceful shutdown.
type App struct {
	collector     *metrics.Collector
	config        config.Config
	daemon        *daemon.Daemon
	pinStore      *pin.Store
	serverHttp    *server.Server
	serverMetrics *server.Server
	signer        *signer.Signer
	storage       types.Storage
}

// verifySchemaRequest is the JSON body accepted by POST /api/v1/verify/schema.
type verifySchemaRequest struct {
	Schema    string `json:"schema"`
	Signature string `json:"signature"`
	Domain    string `json:"domain"`
	ToolID    string `json:"tool_id"`
}

// verifySkillRequest is the JSON body accepted by POST /api/v1/verify/skill.
// SkillDir is a directory path resolvable on the server's filesystem.
type verifySkillRequest struct {
	SkillDir string `json:"skill_dir"`
	Domain   string `json:"domain"`
	ToolID   string `json:"tool_id"`
}

// New creates and initializes a new App instance with all required components.
// It sets up the application context, loads configuration, initializes the
// cryptographic signer, storage backend, TOFU pin store, per-domain discovery
// watcher, HTTP server for verification endpoints, and metrics server for
// monitoring. Returns an error if any component fails to initialize.
func New() (*App, error) {
	slog.Debug("initializing application")

	ctx := context.Background()

	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config")
		return nil, err
	}

	sgn, err := signer.New(
		fmt.Sprintf("%s/prv.pem", cfg.TLS.Dir),
	)
	if err != nil {
		slog.Error("failed to create signer")
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage.Type,
		types.WithAppID(cfg.UUID.String()),
		types.WithConnMaxIdleTime(cfg.Storage.ConnMaxIdleTime),
		types.WithConnMaxLifetime(cfg.Storage.ConnMaxLifetime),
		types.WithDSN(cfg.Storage.DSN),
		types.WithDumpDir(cfg.Storage.DumpDir),
		types.WithMaxIdleConns(cfg.Storage.MaxIdleConns),
		types.WithMaxOpenConns(cfg.Storage.MaxOpenConns),
		types.WithSigner(sgn),
	)
	if err != nil {
		slog.Error("failed to create storage")
		return nil, err
	}

	collector := metrics.NewCollector()
	pinStore := pin.NewStore()

	d := daemon.New(ctx, cfg.Domains,
		daemon.WithCollector(collector),
		daemon.WithDumpInterval(cfg.TLS.DumpInterval),
		daemon.WithFlushFunc(func(tools map[string]pin.PinnedTool) error {
			slog.Debug("flushing pinned tools to storage", "tools", tools)

			return store.SaveTools(tools)
		}),
		daemon.WithPinStore(pinStore),
		daemon.WithTimeout(cfg.TLS.Timeout),
	)

	srvHttp := server.NewServer(
		server.WithAddr(cfg.Server.Listen),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	srvMetrics := server.NewServer(
		server.WithAddr("127.0.0.1:9090"),
	)
	srvMetrics.SetHandle("/metrics", promhttp.Handler())
	srvMetrics.SetHandleFunc("/", metrics.Root)
	srvMetrics.SetHandleFunc("/health/liveness", store.ProbeLiveness())
	srvMetrics.SetHandleFunc("/health/readiness", store.ProbeReadiness())
	srvMetrics.SetHandleFunc("/health/startup", store.ProbeStartup())

	app := &App{
		collector:     collector,
		config:        cfg,
		daemon:        d,
		pinStore:      pinStore,
		serverMetrics: srvMetrics,
		serverHttp:    srvHttp,
		signer:        sgn,
		storage:       store,
	}

	srvHttp.SetHandleFunc("/api/v1/verify/schema", app.handleVerifySchema)
	srvHttp.SetHandleFunc("/api/v1/verify/skill", app.handleVerifySkill)
	srvHttp.SetHandleFunc("/api/v1/{domain}", app.handleDomainJSON)

	return app, nil
}

// resolverFor returns the resolver chain the daemon maintains for domain, or
// a fresh HTTPS well-known resolver when the domain was not preconfigured.
func (a *App) resolverFor(domain string) resolver.Resolver {
	if a.daemon != nil {
		if r, ok := a.daemon.Resolver(domain); ok {
			return r
		}
	}

	return resolver.NewHTTPSWellKnown(a.config.TLS.Timeout)
}

// handleVerifySchema handles POST requests to verify a signed JSON schema
// against a domain's published key, applying TOFU pinning and revocation
// checks. Responds with the resulting verify.VerificationResult as JSON.
func (a *App) handleVerifySchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifySchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	schema, err := base64.StdEncoding.DecodeString(req.Schema)
	if err != nil {
		http.Error(w, "schema must be base64-encoded", http.StatusBadRequest)
		return
	}

	result := verify.VerifySchemaWithResolver(r.Context(), schema, req.Signature, req.Domain, req.ToolID, a.resolverFor(req.Domain), a.pinStore)

	a.writeVerificationResult(w, result)
}

// handleVerifySkill handles POST requests to verify a signed skill directory
// tree against a domain's published key. Responds with the resulting
// verify.VerificationResult as JSON.
func (a *App) handleVerifySkill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifySkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sig, err := verify.LoadSkillSignature(req.SkillDir)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load skill signature: %s", err), http.StatusBadRequest)
		return
	}

	result := verify.VerifySkillWithResolver(r.Context(), req.SkillDir, sig, req.ToolID, req.Domain, a.resolverFor(req.Domain), a.pinStore)

	a.writeVerificationResult(w, result)
}

// writeVerificationResult writes a verify.VerificationResult as a JSON
// response and records the outcome in the metrics collector.
func (a *App) writeVerificationResult(w http.ResponseWriter, result verify.VerificationResult) {
	outcome := "success"
	if !result.Valid && result.ErrorCode != nil {
		outcome = string(*result.ErrorCode)
	}

	if a.collector != nil {
		a.collector.IncResult(outcome)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// handleDomainJSON handles GET requests for retrieving the set of pinned
// tools belonging to a domain. It retrieves the pinned tools from storage,
// signs them if multiple tools are found, and returns JSON response.
// Returns 400 if domain is missing, 404 if nothing is pinned, or 500 on
// internal errors.
func (a *App) handleDomainJSON(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	if domain == "" {
		http.Error(w, "domain required", http.StatusBadRequest)
		return
	}

	slog.Debug("request", "req", r.URL.Path, "domain", domain)

	tools, data, err := a.storage.GetByDomain(domain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(tools) > 1 {
		slog.Debug("found tools", "domain", domain, "tools", tools)
		res, err := types.SignedTools(domain, tools, a.signer)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		data = res
	}

	if data != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
		return
	}

	slog.Error("domain not found", "domain", domain, "tools_found", len(tools), "data_len", len(data))

	http.Error(w, fmt.Sprintf("domain %s not found", domain), http.StatusNotFound)
}

// Up starts the application and all its components in separate goroutines.
// It launches the metrics server, the main HTTP server, and periodic pin
// store persistence to storage. Blocks until a shutdown signal is received,
// then triggers graceful shutdown.
func (a *App) Up() {
	slog.Info("starting application",
		"storage_type", a.config.Storage.Type,
		"app_id", a.config.UUID.String(),
	)

	go a.daemon.StartPeriodicFlush()
	go a.serverMetrics.Up()
	go a.serverHttp.Up()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs,
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	sig := <-sigs
	slog.Info("shutdown signal received", "signal", fmt.Sprintf("%s (%d)", sig.String(), sig))

	a.Down()
}

// Down performs graceful shutdown of the application.
// It closes the storage connection and ensures all resources are properly released.
// Logs any errors encountered during shutdown and returns the last error if any.
func (a *App) Down() error {
	a.serverMetrics.Down()
	a.serverHttp.Down()

	var lastErr error

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
			lastErr = err
		}
	}

	slog.Info("application stopped")
	return lastErr
}
