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

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"schemapin/internal/signer"
)

var (
	signKeyPath   string
	signSkillName string
	signSignerKid string
)

// signCmd is the parent of the schema/skill signing subcommands
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a JSON schema or a skill directory",
}

// signSchemaCmd represents the sign schema command
var signSchemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "Sign a JSON schema file, printing the base64 signature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sgn, err := signer.New(signKeyPath)
		if err != nil {
			slog.Error("failed to load signer", "error", err)
			os.Exit(1)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			slog.Error("failed to read schema file", "error", err)
			os.Exit(1)
		}

		sig, err := sgn.SignSchema(data)
		if err != nil {
			slog.Error("failed to sign schema", "error", err)
			os.Exit(1)
		}

		fmt.Println(sig)
	},
}

// signSkillCmd represents the sign skill command
var signSkillCmd = &cobra.Command{
	Use:   "skill [dir] [domain]",
	Short: "Sign a skill directory tree, writing .schemapin.sig into it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		sgn, err := signer.New(signKeyPath)
		if err != nil {
			slog.Error("failed to load signer", "error", err)
			os.Exit(1)
		}

		var opts []signer.SkillOption
		if signSkillName != "" {
			opts = append(opts, signer.WithSkillName(signSkillName))
		}
		if signSignerKid != "" {
			opts = append(opts, signer.WithSignerKid(signSignerKid))
		}

		doc, err := sgn.SignSkill(args[0], args[1], opts...)
		if err != nil {
			slog.Error("failed to sign skill", "error", err)
			os.Exit(1)
		}

		fmt.Printf("%s %s\n", color.GreenString("skill signed:"), doc.SkillName)
		fmt.Printf("%s  %s\n", color.GreenString("skill hash:"), doc.SkillHash)
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.AddCommand(signSchemaCmd)
	signCmd.AddCommand(signSkillCmd)

	signCmd.PersistentFlags().StringVar(&signKeyPath, "key", "prv.pem", "Path to the PKCS#8 PEM-encoded ECDSA private key")

	signSkillCmd.Flags().StringVar(&signSkillName, "name", "", "Override the skill name (default: SKILL.md frontmatter or directory name)")
	signSkillCmd.Flags().StringVar(&signSignerKid, "signer-kid", "", "Override the signer key id (default: derived from the private key)")
}
