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
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"schemapin/internal/pin"
	"schemapin/internal/signer"
	"schemapin/internal/storage/types"
)

// New creates and initializes a new in-memory storage backend.
// This storage is ephemeral and all data is lost when the process terminates.
// Suitable for testing or development environments where persistence is not required.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := new(Storage)

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Storage implements the types.Storage interface using an in-memory map.
// All data is lost when the process restarts. Tools are indexed by the
// "tool_id@domain" composite key, mirroring internal/pin.Store.
type Storage struct {
	appID  string
	tools  map[string]pin.PinnedTool
	signer *signer.Signer
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN is a no-op for in-memory storage as it doesn't use external connections.
func (s *Storage) WithDSN(dsn string) {
	// no-op for this storage
}

// WithDumpDir is a no-op for in-memory storage as it doesn't persist to disk.
func (s *Storage) WithDumpDir(dumpDir string) {
	// no-op for this storage
}

// WithSigner is a no-op for in-memory storage as signing is handled at a higher level.
func (s *Storage) WithSigner(signer *signer.Signer) {
	// no-op for this storage
}

// WithConnMaxIdleTime returns an option that sets the maximum amount of time a connection may be idle.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	// no-op for this storage
}

// WithConnMaxLifetime returns an option that sets the maximum amount of time a connection may be reused.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	// no-op for this storage
}

// WithMaxIdleConns returns an option that sets the maximum number of connections in the idle connection pool.
func (s *Storage) WithMaxIdleConns(n int) {
	// no-op for this storage
}

// WithMaxOpenConns returns an option that sets the maximum number of open connections to the database.
func (s *Storage) WithMaxOpenConns(n int) {
	// no-op for this storage
}

func toolKey(toolID, domain string) string {
	return toolID + "@" + domain
}

// SaveTools stores pinned tools in memory, indexed by tool_id@domain.
// Tools with no pinned keys are rejected. This operation replaces all
// existing tools.
func (s *Storage) SaveTools(tools map[string]pin.PinnedTool) error {
	errs := make([]error, 0)

	list := make(map[string]pin.PinnedTool, len(tools))
	for _, tool := range tools {
		if len(tool.PinnedKeys) == 0 {
			errs = append(errs, fmt.Errorf("no pinned keys for tool_id=%q domain=%q",
				tool.ToolID, tool.Domain))
			continue
		}

		list[toolKey(tool.ToolID, tool.Domain)] = tool
	}
	s.tools = list

	if len(errs) > 0 {
		return fmt.Errorf("failed to save some tools: %v", errs)
	}

	return nil
}

// GetByDomain retrieves all pinned tools belonging to domain.
// Returns an empty slice if no matching tools are found.
func (s *Storage) GetByDomain(domain string) ([]pin.PinnedTool, []byte, error) {
	tools := []pin.PinnedTool{}

	for _, tool := range s.tools {
		if len(tool.PinnedKeys) == 0 {
			continue
		}

		if tool.Domain == domain {
			tools = append(tools, tool)
		}
	}

	return tools, nil, nil
}

// Close is a no-op for in-memory storage as there are no resources to release.
func (s *Storage) Close() error {
	return nil
}

func latestSeen(tool pin.PinnedTool) (time.Time, bool) {
	var latest time.Time
	found := false

	for _, k := range tool.PinnedKeys {
		t, err := time.Parse(time.RFC3339, k.LastSeen)
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}

	return latest, found
}

// ProbeLiveness returns an HTTP handler for Kubernetes liveness probe.
// It checks that:
//   - Tools exist in memory
//   - At least one tool has a pinned key seen within maxAge (10 seconds)
//   - Tools contain at least one pinned key with a parseable last_seen
//
// Returns 503 Service Unavailable if any check fails, 200 OK if all checks pass.
func (s *Storage) ProbeLiveness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		const maxAge = 10 * time.Second

		now := time.Now()
		errs := make([]string, 0)
		freshTools := 0

		defer func() {
			if len(errs) > 0 {
				slog.Warn("liveness: NOT alive (memory)",
					"appID", s.appID,
					"errors", errs,
					"freshTools", freshTools,
				)

				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(strings.Join(errs, "\n")))
				return
			}

			slog.Debug("liveness: OK (memory)",
				"appID", s.appID,
				"freshTools", freshTools,
			)
			w.WriteHeader(http.StatusOK)
		}()

		if len(s.tools) == 0 {
			errs = append(errs, "no tools pinned in memory")
			return
		}

		for _, tool := range s.tools {
			if len(tool.PinnedKeys) == 0 {
				errs = append(errs,
					fmt.Sprintf("no pinned keys for tool_id=%q domain=%q", tool.ToolID, tool.Domain))
				continue
			}

			seen, ok := latestSeen(tool)
			if !ok {
				errs = append(errs,
					fmt.Sprintf("missing last_seen for tool_id=%q domain=%q", tool.ToolID, tool.Domain))
				continue
			}

			age := now.Sub(seen)
			if age >= maxAge {
				errs = append(errs,
					fmt.Sprintf("tool_id=%q domain=%q appears stale (age=%s >= %s)",
						tool.ToolID, tool.Domain, age, maxAge))
				continue
			}

			freshTools++
		}

		if freshTools == 0 {
			errs = append(errs, "no fresh tools found in memory")
		}
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// It checks that:
//   - Tools exist in memory
//   - Tools contain at least one pinned key with a parseable last_seen
//   - At least one valid tool is present
//
// Returns 503 Service Unavailable if any check fails, 200 OK if all checks pass.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		errs := make([]string, 0)
		validTools := 0

		defer func() {
			if len(errs) > 0 {
				slog.Warn("readiness: NOT ready (memory)",
					"appID", s.appID,
					"errors", errs,
					"validTools", validTools,
				)

				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(strings.Join(errs, "\n")))
				return
			}

			slog.Debug("readiness: OK (memory)",
				"appID", s.appID,
				"validTools", validTools,
			)
			w.WriteHeader(http.StatusOK)
		}()

		if len(s.tools) == 0 {
			errs = append(errs, "no tools pinned in memory")
			return
		}

		for _, tool := range s.tools {
			if len(tool.PinnedKeys) == 0 {
				errs = append(errs,
					fmt.Sprintf("no pinned keys for tool_id=%q domain=%q", tool.ToolID, tool.Domain))
				continue
			}

			if _, ok := latestSeen(tool); !ok {
				errs = append(errs,
					fmt.Sprintf("missing last_seen for tool_id=%q domain=%q", tool.ToolID, tool.Domain))
				continue
			}

			validTools++
		}

		if validTools == 0 {
			errs = append(errs, "no valid tools in memory")
		}
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as in-memory storage requires no initialization time.
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
