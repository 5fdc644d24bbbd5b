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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"schemapin/internal/crypto"
)

var keygenOutDir string

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ECDSA P-256 key pair for signing schemas and skills",
	Run: func(cmd *cobra.Command, args []string) {
		privatePEM, publicPEM, err := crypto.GenerateKeyPair()
		if err != nil {
			slog.Error("failed to generate key pair", "error", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(keygenOutDir, 0o755); err != nil {
			slog.Error("failed to create output directory", "error", err)
			os.Exit(1)
		}

		prvPath := filepath.Join(keygenOutDir, "prv.pem")
		pubPath := filepath.Join(keygenOutDir, "pub.pem")

		if err := os.WriteFile(prvPath, []byte(privatePEM), 0o600); err != nil {
			slog.Error("failed to write private key", "error", err)
			os.Exit(1)
		}

		if err := os.WriteFile(pubPath, []byte(publicPEM), 0o644); err != nil {
			slog.Error("failed to write public key", "error", err)
			os.Exit(1)
		}

		fingerprint, err := crypto.Fingerprint(publicPEM)
		if err != nil {
			slog.Error("failed to compute key fingerprint", "error", err)
			os.Exit(1)
		}

		fmt.Printf("%s %s\n", color.GreenString("private key:"), prvPath)
		fmt.Printf("%s  %s\n", color.GreenString("public key:"), pubPath)
		fmt.Printf("%s %s\n", color.GreenString("fingerprint:"), fingerprint)
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVar(&keygenOutDir, "out", ".", "Directory to write prv.pem and pub.pem into")
}
