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
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"schemapin/internal/canonical"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
	"schemapin/internal/verify"
)

var (
	verifyDomain       string
	verifyToolID       string
	verifyTimeout      time.Duration
	verifyDiscoveryDir string
	verifyTrustBundle  string
	verifyPinStorePath string
	verifySkillDiff    bool
)

// verifyCmd is the parent of the schema/skill verification subcommands
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed JSON schema or skill directory against a domain's published key",
}

// verifySchemaCmd represents the verify schema command
var verifySchemaCmd = &cobra.Command{
	Use:   "schema [file] [signature]",
	Short: "Verify a JSON schema file against its base64 detached signature",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		schema, err := os.ReadFile(args[0])
		if err != nil {
			slog.Error("failed to read schema file", "error", err)
			os.Exit(1)
		}

		store := loadPinStore(verifyPinStorePath)

		result := verify.VerifySchemaWithResolver(context.Background(), schema, args[1], verifyDomain, verifyToolID, buildCLIResolver(), store)

		applyDomainMismatchPolicy(&result)

		savePinStore(verifyPinStorePath, store)
		printVerificationResult(result)
	},
}

// verifySkillCmd represents the verify skill command
var verifySkillCmd = &cobra.Command{
	Use:   "skill [dir]",
	Short: "Verify a signed skill directory tree against its domain's published key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sig, err := verify.LoadSkillSignature(args[0])
		if err != nil {
			slog.Error("failed to load skill signature", "error", err)
			os.Exit(1)
		}

		store := loadPinStore(verifyPinStorePath)

		result := verify.VerifySkillWithResolver(context.Background(), args[0], sig, verifyToolID, verifyDomain, buildCLIResolver(), store)

		applyDomainMismatchPolicy(&result)

		savePinStore(verifyPinStorePath, store)

		if verifySkillDiff {
			printTamperDiff(args[0], sig.FileManifest)
		}

		printVerificationResult(result)
	},
}

// applyDomainMismatchPolicy implements the deployment-policy DOMAIN_MISMATCH
// check, run after verification completes: when the caller passed an
// explicit --domain, the CLI enforces that it matches result.Domain (the
// signature's own claimed domain for a skill; the requested domain itself
// for a schema, which carries no embedded domain claim), overriding an
// otherwise-valid result.
func applyDomainMismatchPolicy(result *verify.VerificationResult) {
	if !result.Valid || result.Domain == nil {
		return
	}

	if verifyDomain == "" || *result.Domain == verifyDomain {
		return
	}

	mismatch := verify.ErrDomainMismatch
	message := fmt.Sprintf("requested domain %q does not match verified domain %q", verifyDomain, *result.Domain)

	result.Valid = false
	result.ErrorCode = &mismatch
	result.ErrorMessage = &message
}

// buildCLIResolver assembles a resolver chain from the --discovery-dir and
// --trust-bundle flags, falling back to HTTPS well-known discovery.
func buildCLIResolver() resolver.Resolver {
	var chain []resolver.Resolver

	if verifyTrustBundle != "" {
		data, err := os.ReadFile(verifyTrustBundle)
		if err != nil {
			slog.Error("failed to read trust bundle", "error", err)
			os.Exit(1)
		}

		bundle, err := resolver.NewTrustBundleFromJSON(data)
		if err != nil {
			slog.Error("failed to parse trust bundle", "error", err)
			os.Exit(1)
		}

		chain = append(chain, bundle)
	}

	if verifyDiscoveryDir != "" {
		chain = append(chain, resolver.NewLocalDirectory(verifyDiscoveryDir, ""))
	}

	chain = append(chain, resolver.NewHTTPSWellKnown(verifyTimeout))

	return resolver.NewChain(chain...)
}

// loadPinStore reads the local TOFU pin store from path, returning an empty
// store when the file does not yet exist.
func loadPinStore(path string) *pin.Store {
	store := pin.NewStore()

	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}

	if err := store.FromJSON(data); err != nil {
		slog.Warn("failed to parse existing pin store, starting fresh", "path", path, "error", err)
	}

	return store
}

// savePinStore persists the TOFU pin store back to path so future
// invocations of verify see the same pinned keys.
func savePinStore(path string, store *pin.Store) {
	data, err := store.ToJSON()
	if err != nil {
		slog.Error("failed to encode pin store", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("failed to create pin store directory", "error", err)
		return
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		slog.Error("failed to write pin store", "error", err)
	}
}

// printVerificationResult renders a verify.VerificationResult as colorized
// text on success/failure followed by the JSON result, and exits non-zero
// on failure.
func printVerificationResult(result verify.VerificationResult) {
	if result.Valid {
		domain := ""
		if result.Domain != nil {
			domain = *result.Domain
		}
		fmt.Println(color.GreenString("VALID"), "-", domain)
	} else {
		code, message := "", ""
		if result.ErrorCode != nil {
			code = string(*result.ErrorCode)
		}
		if result.ErrorMessage != nil {
			message = *result.ErrorMessage
		}
		fmt.Println(color.RedString("INVALID"), "-", code, "-", message)
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))

	if !result.Valid {
		os.Exit(1)
	}
}

// printTamperDiff recomputes the skill directory's current file manifest and
// reports the set-arithmetic diff against the manifest recorded at signing
// time.
func printTamperDiff(skillDir string, signedManifest map[string]string) {
	_, currentManifest, err := canonical.Skill(skillDir)
	if err != nil {
		slog.Error("failed to recompute skill manifest for diff", "error", err)
		return
	}

	diff := verify.DetectTamperedFiles(currentManifest, signedManifest)

	fmt.Println(color.YellowString("file diff:"))
	for _, f := range diff.Modified {
		fmt.Println("  modified:", f)
	}
	for _, f := range diff.Added {
		fmt.Println("  added:   ", f)
	}
	for _, f := range diff.Removed {
		fmt.Println("  removed: ", f)
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.AddCommand(verifySchemaCmd)
	verifyCmd.AddCommand(verifySkillCmd)

	verifyCmd.PersistentFlags().StringVar(&verifyDomain, "domain", "", "Domain the schema/skill is published under")
	verifyCmd.PersistentFlags().StringVar(&verifyToolID, "tool-id", "", "Tool id to check/record in the TOFU pin store")
	verifyCmd.PersistentFlags().DurationVar(&verifyTimeout, "timeout", 5*time.Second, "Resolver fetch timeout")
	verifyCmd.PersistentFlags().StringVar(&verifyDiscoveryDir, "discovery-dir", "", "Resolve discovery/revocation documents from a local directory instead of HTTPS")
	verifyCmd.PersistentFlags().StringVar(&verifyTrustBundle, "trust-bundle", "", "Resolve discovery/revocation documents from an offline trust bundle file")
	verifyCmd.PersistentFlags().StringVar(&verifyPinStorePath, "pin-store", filepath.Join(os.TempDir(), pkg, "pins.json"), "Path to the local TOFU pin store")

	verifySkillCmd.Flags().BoolVar(&verifySkillDiff, "diff", false, "Report which files changed since signing")
}
