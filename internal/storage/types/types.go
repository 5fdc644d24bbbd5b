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
package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"schemapin/internal/pin"
	"schemapin/internal/signer"
)

// PinnedToolsFile is the JSON file format persisted backends write: the
// pinned-tool payload for one domain, plus a detached signature over it.
type PinnedToolsFile struct {
	Payload   PinnedToolsPayload `json:"payload,omitempty"`
	Signature string             `json:"signature,omitempty"`
}

// PinnedToolsPayload wraps the pinned tools belonging to a single domain.
type PinnedToolsPayload struct {
	Tools []pin.PinnedTool `json:"tools,omitempty"`
}

// StorageType defines the type of storage backend to use.
type StorageType string

const (
	// StorageFS represents file system-based storage
	StorageFS StorageType = "fs"
	// StorageMemory represents in-memory ephemeral storage
	StorageMemory StorageType = "memory"
	// StorageRedis represents Redis-based storage
	StorageRedis StorageType = "redis"
	// StoragePostgres represents PostgreSQL database storage
	StoragePostgres StorageType = "postgres"
)

// Storage defines the interface for pin-store persistence backends. A
// PinnedTool is addressed by its composite "tool_id@domain" key; GetByDomain
// groups the flat keyspace by domain.
type Storage interface {
	// Close releases storage resources and closes connections
	Close() error
	// GetByDomain retrieves pinned tools belonging to a domain
	GetByDomain(string) ([]pin.PinnedTool, []byte, error)
	// ProbeLiveness returns an HTTP handler for liveness probe
	ProbeLiveness() func(w http.ResponseWriter, r *http.Request)
	// ProbeReadiness returns an HTTP handler for readiness probe
	ProbeReadiness() func(w http.ResponseWriter, r *http.Request)
	// ProbeStartup returns an HTTP handler for startup probe
	ProbeStartup() func(w http.ResponseWriter, r *http.Request)
	// SaveTools persists a map of pinned tools, keyed by "tool_id@domain"
	SaveTools(map[string]pin.PinnedTool) error
	// WithAppID sets the application ID for the storage instance
	WithAppID(string)
	// WithDSN sets the data source name (connection string) for the storage
	WithDSN(string)
	// WithDumpDir sets the directory path for file dumps
	WithDumpDir(string)
	// WithSigner sets the cryptographic signer for signing persisted tools
	WithSigner(*signer.Signer)
	// WithConnMaxIdleTime sets the maximum amount of time a connection may be idle
	WithConnMaxIdleTime(time.Duration)
	// WithConnMaxLifetime sets the maximum amount of time a connection may be reused
	WithConnMaxLifetime(time.Duration)
	// WithMaxIdleConns sets the maximum number of connections in the idle connection pool
	WithMaxIdleConns(int)
	// WithMaxOpenConns sets the maximum number of open connections to the database
	WithMaxOpenConns(int)
}

// Option is a functional option type for configuring Storage implementations.
type Option func(Storage)

// WithAppID returns an option that sets the application ID for the storage instance.
func WithAppID(appID string) Option {
	return func(s Storage) {
		s.WithAppID(appID)
	}
}

// WithDSN returns an option that sets the data source name (connection string) for the storage.
func WithDSN(dsn string) Option {
	return func(s Storage) {
		s.WithDSN(dsn)
	}
}

// WithDumpDir returns an option that sets the directory path for file-based storage dumps.
func WithDumpDir(dir string) Option {
	return func(s Storage) {
		s.WithDumpDir(dir)
	}
}

// WithSigner returns an option that sets the cryptographic signer used to sign persisted tools.
func WithSigner(signer *signer.Signer) Option {
	return func(s Storage) {
		s.WithSigner(signer)
	}
}

// WithConnMaxIdleTime returns an option that sets the maximum amount of time a connection may be idle.
func WithConnMaxIdleTime(d time.Duration) Option {
	return func(s Storage) {
		s.WithConnMaxIdleTime(d)
	}
}

// WithConnMaxLifetime returns an option that sets the maximum amount of time a connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s Storage) {
		s.WithConnMaxLifetime(d)
	}
}

// WithMaxIdleConns returns an option that sets the maximum number of connections in the idle connection pool.
func WithMaxIdleConns(n int) Option {
	return func(s Storage) {
		s.WithMaxIdleConns(n)
	}
}

// WithMaxOpenConns returns an option that sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(s Storage) {
		s.WithMaxOpenConns(n)
	}
}

// SignedTools creates a signed JSON structure containing one domain's pinned
// tools. It performs the following steps:
//  1. Validates that tools are provided
//  2. Sorts tools by tool_id (ascending) for deterministic output
//  3. Marshals tools to indented JSON
//  4. Signs the canonical JSON using the provided signer
//  5. Wraps payload and signature into PinnedToolsFile
//
// Returns the final JSON bytes or an error if any step fails.
func SignedTools(domain string, tools []pin.PinnedTool, signer *signer.Signer) ([]byte, error) {
	if len(tools) < 1 {
		slog.Warn("SignedTools - no tools to save", "domain", domain)
		return nil, nil
	}

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].ToolID < tools[j].ToolID
	})

	payload := PinnedToolsPayload{
		Tools: tools,
	}

	out := []byte{}

	if res, err := json.MarshalIndent(payload, "", "  "); err == nil {
		out = res
	} else {
		return nil, fmt.Errorf("SignedTools - failed to marshal tools to JSON: %w", err)
	}

	sig, err := signer.SignSchema(out)
	if err != nil {
		return nil, fmt.Errorf("SignedTools - failed to sign data: %w", err)
	}

	slog.Debug("signature created",
		"canonical", string(out),
		"domain", domain,
		"sig", sig,
	)

	if res, err := json.MarshalIndent(PinnedToolsFile{
		Payload:   payload,
		Signature: sig,
	}, "", "  "); err == nil {
		out = res
	} else {
		return nil, fmt.Errorf("SignedTools - failed to marshal signed payload to JSON: %w", err)
	}

	return out, nil
}
