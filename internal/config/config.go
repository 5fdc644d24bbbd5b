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
package config

import (
	"fmt"
	"log/slog"
	"time"

	"schemapin/internal/storage/types"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config represents the main application configuration structure.
// It contains all settings including watched domains, logging, server,
// storage, and TLS configuration. UUID is generated automatically for
// each application instance.
type Config struct {
	Domains []ConfigDomain `mapstructure:"domains"`
	Log     ConfigLog      `mapstructure:"log"`
	Server  ConfigServer   `mapstructure:"server"`
	Storage ConfigStorage  `mapstructure:"storage"`
	TLS     ConfigTLS      `mapstructure:"tls"`
	UUID    uuid.UUID
}

// ConfigDomain describes one domain the serve daemon keeps pinned and
// periodically refreshes discovery/revocation documents for.
type ConfigDomain struct {
	// DiscoveryDir, when set, resolves this domain's discovery and
	// revocation documents from a local directory instead of HTTPS
	// well-known endpoints.
	DiscoveryDir string `mapstructure:"discovery_dir"`
	Name         string `mapstructure:"name"`
	// TrustBundle, when set, points at a local JSON trust-bundle file
	// consulted before falling back to HTTPS discovery.
	TrustBundle string `mapstructure:"trust_bundle"`
}

// ConfigLog defines logging configuration for the application.
// It controls log output format, verbosity level, and pretty-printing options.
type ConfigLog struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ConfigServer defines HTTP server configuration parameters.
// It specifies the listen address, read timeout, and write timeout for the server.
type ConfigServer struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ConfigStorage defines storage backend configuration.
// It includes connection parameters (DSN), connection-pool limits, dump directory
// for file-based persistence, and storage type (filesystem, memory, redis, postgres).
// The periodic dump interval lives in ConfigTLS.DumpInterval.
type ConfigStorage struct {
	ConnMaxIdleTime time.Duration     `mapstructure:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
	DSN             string            `mapstructure:"dsn"`
	DumpDir         string            `mapstructure:"dump_dir"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	Type            types.StorageType `mapstructure:"type"`
}

// ConfigTLS defines the daemon's cryptographic and discovery-refresh
// configuration. Dir specifies the directory containing the signer's
// PEM key pair (prv.pem, pub.pem). Timeout bounds resolver fetches and
// DumpInterval paces the periodic pin-store flush.
type ConfigTLS struct {
	Dir          string        `mapstructure:"dir"`
	DumpInterval time.Duration `mapstructure:"dump_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// New loads and validates application configuration from viper.
// It unmarshals configuration from file and generates a unique UUID for
// the application instance. A watched domain with no discovery_dir or
// trust_bundle falls back to HTTPS well-known discovery.
// Returns an error if unmarshaling fails.
func New() (Config, error) {
	config := Config{
		UUID: uuid.New(),
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal storage config: %w", err)
	}

	slog.Debug("configuration loaded", "config", config)

	return config, nil
}
