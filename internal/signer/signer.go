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

// Package signer produces the two artifacts schemapin ships signed:
// a detached base64 ECDSA signature over a JSON schema's canonical hash,
// and a .schemapin.sig document over a skill directory's root hash.
package signer

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"schemapin/internal/canonical"
	"schemapin/internal/crypto"
	"schemapin/internal/discovery"
)

const schemaPinVersion = "1.3"

// Signer signs JSON schemas and skill directories under one ECDSA private
// key.
type Signer struct {
	privateKeyPEM string
}

// New loads a Signer from a PKCS#8 PEM-encoded ECDSA private key file.
func New(privateKeyPath string) (*Signer, error) {
	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	if _, err := crypto.ParsePrivateKey(string(data)); err != nil {
		return nil, err
	}

	return &Signer{privateKeyPEM: string(data)}, nil
}

// publicKeyPEM derives the SubjectPublicKeyInfo PEM for the signer's own
// private key, used to self-derive signer_kid when the caller omits it.
func (s *Signer) publicKeyPEM() (string, error) {
	priv, err := crypto.ParsePrivateKey(s.privateKeyPEM)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// SignSchema canonicalizes data per RFC 8785, hashes it, and returns the
// base64 DER ECDSA signature over that hash.
func (s *Signer) SignSchema(data []byte) (string, error) {
	hash, err := canonical.Hash(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize schema: %w", err)
	}

	sig, err := crypto.Sign(s.privateKeyPEM, hash[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign schema: %w", err)
	}

	return sig, nil
}

// SkillOption configures SignSkill.
type SkillOption func(*skillOptions)

type skillOptions struct {
	signerKid string
	skillName string
	now       func() time.Time
}

// WithSignerKid overrides the signer_kid recorded in the signature document;
// by default it is derived from the private key's own fingerprint.
func WithSignerKid(kid string) SkillOption {
	return func(o *skillOptions) { o.signerKid = kid }
}

// WithSkillName overrides the skill_name recorded in the signature document;
// by default it is parsed from SKILL.md frontmatter.
func WithSkillName(name string) SkillOption {
	return func(o *skillOptions) { o.skillName = name }
}

// SignSkill canonicalizes skillDir, signs its root hash, and writes the
// resulting document to skillDir/.schemapin.sig as pretty JSON.
func (s *Signer) SignSkill(skillDir, domain string, opts ...SkillOption) (*discovery.SkillSignature, error) {
	options := skillOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	rootHash, manifest, err := canonical.Skill(skillDir)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize skill: %w", err)
	}

	name := options.skillName
	if name == "" {
		name = ParseSkillName(skillDir)
	}

	kid := options.signerKid
	if kid == "" {
		publicPEM, err := s.publicKeyPEM()
		if err != nil {
			return nil, err
		}
		kid, err = crypto.Fingerprint(publicPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to compute signer key id: %w", err)
		}
	}

	sigB64, err := crypto.Sign(s.privateKeyPEM, rootHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign skill: %w", err)
	}

	digest := sha256.Sum256(rootHash)
	skillHash := fmt.Sprintf("sha256:%x", digest)

	doc := &discovery.SkillSignature{
		SchemapinVersion: schemaPinVersion,
		SkillName:        name,
		SkillHash:        skillHash,
		Signature:        sigB64,
		SignedAt:         options.now().UTC().Format(time.RFC3339),
		Domain:           domain,
		SignerKid:        kid,
		FileManifest:     manifest,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature document: %w", err)
	}

	sigPath := filepath.Join(skillDir, canonical.SigFileName)
	if err := os.WriteFile(sigPath, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", sigPath, err)
	}

	return doc, nil
}

// ParseSkillName reads SKILL.md's frontmatter name field, falling back to
// the directory's own basename when SKILL.md is absent or has no name.
func ParseSkillName(skillDir string) string {
	data, err := os.ReadFile(filepath.Join(skillDir, "SKILL.md"))
	if err == nil {
		if name, ok := extractFrontmatterName(string(data)); ok {
			return name
		}
	}

	return filepath.Base(skillDir)
}

// extractFrontmatterName parses YAML frontmatter ("---"-delimited) for a
// top-level name: field, stripping a leading BOM and surrounding quotes.
func extractFrontmatterName(text string) (string, bool) {
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")
	if !strings.HasPrefix(text, "---") {
		return "", false
	}

	afterOpen := text[3:]
	afterOpen = strings.TrimPrefix(afterOpen, "\r")
	afterOpen, ok := strings.CutPrefix(afterOpen, "\n")
	if !ok {
		return "", false
	}

	closeIdx := strings.Index(afterOpen, "\n---")
	if closeIdx < 0 {
		return "", false
	}
	frontmatter := afterOpen[:closeIdx]

	for _, line := range strings.Split(frontmatter, "\n") {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, "name:")
		if !ok {
			continue
		}

		val := strings.TrimSpace(rest)
		val = unquote(val)
		val = strings.TrimSpace(val)
		if val != "" {
			return val, true
		}
	}

	return "", false
}

func unquote(s string) string {
	if len(s) >= 2 {
		if s[0] == '\'' && s[len(s)-1] == '\'' {
			return s[1 : len(s)-1]
		}
		if s[0] == '"' && s[len(s)-1] == '"' {
			return s[1 : len(s)-1]
		}
	}
	return s
}
