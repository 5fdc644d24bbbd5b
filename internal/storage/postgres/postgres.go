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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"schemapin/internal/pin"
	"schemapin/internal/signer"
	"schemapin/internal/storage/postgres/migrations"
	"schemapin/internal/storage/types"
)

// New creates and initializes a new PostgreSQL storage backend.
// It opens a connection to PostgreSQL using the provided DSN, validates connectivity,
// and runs database migrations to ensure the schema is up to date.
// Returns an error if connection fails or migrations cannot be applied.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := new(Storage)

	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres dsn: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.SetConnMaxIdleTime(s.connMaxIdleTime)
	db.SetConnMaxLifetime(s.connMaxLifetime)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetMaxOpenConns(s.maxOpenConns)

	s.client = db
	s.ctx = ctx

	return s, nil
}

// Storage implements the types.Storage interface using PostgreSQL as the backend.
// It stores pinned keys in the pinned_tools table, one row per (app_id, tool_id,
// domain, fingerprint) tuple, with automatic conflict resolution on that composite key.
type Storage struct {
	ctx             context.Context
	appID           string
	client          *sql.DB
	dsn             string
	signer          *signer.Signer
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
	maxIdleConns    int
	maxOpenConns    int
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN sets the PostgreSQL connection string (DSN).
func (s *Storage) WithDSN(dsn string) {
	s.dsn = dsn
}

// WithDumpDir is a no-op for PostgreSQL storage as it doesn't use file dumps.
func (s *Storage) WithDumpDir(dumpDir string) {
	// no-op for this storage
}

// WithSigner is a no-op for PostgreSQL storage as signing is handled at a higher level.
func (s *Storage) WithSigner(signer *signer.Signer) {
	// no-op for this storage
}

// WithConnMaxIdleTime returns an option that sets the maximum amount of time a connection may be idle.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	s.connMaxIdleTime = d
}

// WithConnMaxLifetime returns an option that sets the maximum amount of time a connection may be reused.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	s.connMaxLifetime = d
}

// WithMaxIdleConns returns an option that sets the maximum number of connections in the idle connection pool.
func (s *Storage) WithMaxIdleConns(n int) {
	s.maxIdleConns = n
}

// WithMaxOpenConns returns an option that sets the maximum number of open connections to the database.
func (s *Storage) WithMaxOpenConns(n int) {
	s.maxOpenConns = n
}

// SaveTools persists a map of pinned tools to PostgreSQL in a single transaction.
// Each pinned key becomes one row; uses INSERT ... ON CONFLICT DO UPDATE to
// handle duplicates gracefully. The composite unique key is
// (app_id, tool_id, domain, fingerprint). Rolls back the transaction if any
// insert fails. Tools with no pinned keys are skipped.
func (s *Storage) SaveTools(tools map[string]pin.PinnedTool) error {
	tx, err := s.client.BeginTx(s.ctx, nil)
	if err != nil {
		slog.Error("failed to begin tx", "error", err)
		return err
	}

	const q = `
INSERT INTO pinned_tools (
    app_id,
    tool_id,
    domain,
    fingerprint,
    first_seen,
    last_seen,
    trust_level
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (app_id, tool_id, domain, fingerprint) DO UPDATE
SET
    first_seen  = EXCLUDED.first_seen,
    last_seen   = EXCLUDED.last_seen,
    trust_level = EXCLUDED.trust_level,
    updated_at  = now();
`

	stmt, err := tx.PrepareContext(s.ctx, q)
	if err != nil {
		slog.Error("failed to prepare stmt", "error", err)
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, tool := range tools {
		if len(tool.PinnedKeys) == 0 {
			continue
		}

		for _, k := range tool.PinnedKeys {
			if _, err := stmt.ExecContext(
				s.ctx,
				s.appID,
				tool.ToolID,
				tool.Domain,
				k.Fingerprint,
				k.FirstSeen,
				k.LastSeen,
				string(k.TrustLevel),
			); err != nil {
				slog.Error("failed to save pinned key to postgres", "error", err, "tool", tool.ToolID, "fingerprint", k.Fingerprint)
				_ = tx.Rollback()
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit tx", "error", err)
		return err
	}
	return nil
}

// GetByDomain retrieves pinned tools for a specific domain from PostgreSQL.
// Rows are grouped by tool_id and reassembled into pin.PinnedTool values,
// each carrying its full PinnedKeys slice. Returns an empty slice if no rows are found.
func (s *Storage) GetByDomain(domain string) ([]pin.PinnedTool, []byte, error) {
	slog.Debug("postgres connection information", "stats", s.client.Stats())

	const q = `
SELECT tool_id,
       domain,
       fingerprint,
       first_seen,
       last_seen,
       trust_level
FROM pinned_tools
WHERE domain = $1
  AND fingerprint <> ''
ORDER BY tool_id, first_seen ASC
`

	rows, err := s.client.QueryContext(s.ctx, q, domain)
	if err != nil {
		slog.Error("failed to query pinned_tools by domain", "error", err, "domain", domain)
		return nil, nil, fmt.Errorf("failed to query tools from postgres")
	}
	defer rows.Close()

	order := make([]string, 0)
	byToolID := make(map[string]*pin.PinnedTool)

	for rows.Next() {
		var (
			toolID, rowDomain, fingerprint string
			firstSeen, lastSeen            sql.NullString
			trustLevel                     string
		)

		if err := rows.Scan(&toolID, &rowDomain, &fingerprint, &firstSeen, &lastSeen, &trustLevel); err != nil {
			slog.Error("failed to scan row", "error", err)
			return nil, nil, fmt.Errorf("failed to scan row")
		}

		if fingerprint == "" {
			continue
		}

		tool, ok := byToolID[toolID]
		if !ok {
			tool = &pin.PinnedTool{ToolID: toolID, Domain: rowDomain}
			byToolID[toolID] = tool
			order = append(order, toolID)
		}

		tool.PinnedKeys = append(tool.PinnedKeys, pin.PinnedKey{
			Fingerprint: fingerprint,
			FirstSeen:   firstSeen.String,
			LastSeen:    lastSeen.String,
			TrustLevel:  pin.TrustLevel(trustLevel),
		})
	}

	if err := rows.Err(); err != nil {
		slog.Error("rows error", "error", err)
		return nil, nil, fmt.Errorf("failed to read rows")
	}

	result := make([]pin.PinnedTool, 0, len(order))
	for _, id := range order {
		result = append(result, *byToolID[id])
	}

	slog.Debug("selected tools by domain", "domain", domain, "tools", result)

	return result, nil, nil
}

// Close releases PostgreSQL database connection resources.
// Returns the error from closing the underlying database handle, if any.
func (s *Storage) Close() error {
	slog.Warn("closing postgres storage")
	return s.client.Close()
}

func latestSeen(keys []string) (time.Time, bool) {
	var latest time.Time
	found := false

	for _, k := range keys {
		t, err := time.Parse(time.RFC3339, k)
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
//   - PostgreSQL is accessible
//   - Pinned keys exist for the current appID
//   - At least one tool has a pinned key last seen within maxAge (10 seconds)
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
				slog.Warn("liveness: NOT alive",
					"appID", s.appID,
					"errors", errs,
					"storage", "postgres",
				)

				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(strings.Join(errs, "\n")))
				return
			}

			slog.Debug("liveness: OK",
				"appID", s.appID,
				"freshTools", freshTools,
				"storage", "postgres",
			)
			w.WriteHeader(http.StatusOK)
		}()

		const q = `
SELECT tool_id, domain, fingerprint, last_seen
FROM pinned_tools
WHERE app_id = $1
  AND fingerprint <> ''
`
		rows, err := s.client.QueryContext(s.ctx, q, s.appID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to query postgres: %v", err))
			return
		}
		defer rows.Close()

		byToolID := make(map[string][]string)
		toolDomains := make(map[string]string)

		for rows.Next() {
			var toolID, domain, fingerprint string
			var lastSeen sql.NullString

			if err := rows.Scan(&toolID, &domain, &fingerprint, &lastSeen); err != nil {
				errs = append(errs, fmt.Sprintf("failed to scan row: %v", err))
				continue
			}

			if fingerprint == "" {
				errs = append(errs, fmt.Sprintf("empty fingerprint for tool_id=%q domain=%q", toolID, domain))
				continue
			}

			toolDomains[toolID] = domain
			if lastSeen.Valid {
				byToolID[toolID] = append(byToolID[toolID], lastSeen.String)
			}
		}

		if err := rows.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("rows error: %v", err))
			return
		}

		if len(toolDomains) == 0 {
			errs = append(errs, "no pinned keys found in postgres")
			return
		}

		for toolID, domain := range toolDomains {
			seen, ok := latestSeen(byToolID[toolID])
			if !ok {
				errs = append(errs,
					fmt.Sprintf("missing last_seen for tool_id=%q domain=%q", toolID, domain))
				continue
			}

			age := now.Sub(seen)
			if age >= maxAge {
				errs = append(errs,
					fmt.Sprintf("tool_id=%q domain=%q appears stale (age=%s >= %s)",
						toolID, domain, age, maxAge))
				continue
			}

			freshTools++
		}

		if freshTools == 0 {
			errs = append(errs, "no fresh tools found in postgres")
		}
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// It checks that:
//   - PostgreSQL is accessible
//   - Pinned keys exist for the current appID
//   - Pinned keys carry required fields (tool_id, domain, fingerprint)
//   - At least one valid tool is present
//
// Returns 503 Service Unavailable if any check fails, 200 OK if all checks pass.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		errs := make([]string, 0)
		validTools := 0

		defer func() {
			if len(errs) > 0 {
				slog.Warn("readiness: NOT ready",
					"appID", s.appID,
					"errors", errs,
					"storage", "postgres",
				)

				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(strings.Join(errs, "\n")))
				return
			}

			slog.Debug("readiness: OK",
				"appID", s.appID,
				"storage", "postgres",
				"validTools", validTools,
			)
			w.WriteHeader(http.StatusOK)
		}()

		const q = `
SELECT tool_id, domain, fingerprint
FROM pinned_tools
WHERE app_id = $1
  AND fingerprint <> ''
`
		rows, err := s.client.QueryContext(s.ctx, q, s.appID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to query postgres: %v", err))
			return
		}
		defer rows.Close()

		seen := make(map[string]bool)

		for rows.Next() {
			var toolID, domain, fingerprint string

			if err := rows.Scan(&toolID, &domain, &fingerprint); err != nil {
				errs = append(errs, fmt.Sprintf("failed to scan row: %v", err))
				continue
			}

			if toolID == "" {
				errs = append(errs, "pinned_tools row missing tool_id")
				continue
			}
			if domain == "" {
				errs = append(errs, "pinned_tools row missing domain")
				continue
			}
			if fingerprint == "" {
				errs = append(errs, fmt.Sprintf("empty fingerprint for tool_id=%q domain=%q", toolID, domain))
				continue
			}

			seen[toolID+"@"+domain] = true
		}

		if err := rows.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("rows error: %v", err))
			return
		}

		validTools = len(seen)

		if validTools == 0 {
			errs = append(errs, "no valid tools found in postgres")
		}
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as PostgreSQL storage initialization is handled in New().
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
