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

// Package discovery holds the typed documents a domain publishes about its
// signing key (WellKnownResponse), the standalone revocation list
// (RevocationDocument), and the offline trust bundle format, plus the cheap
// structural validators the orchestrator runs before touching crypto.
package discovery

import "encoding/json"

// WellKnownResponse is what a domain publishes at
// /.well-known/schemapin.json as its current signing key.
type WellKnownResponse struct {
	SchemaVersion      string   `json:"schema_version"`
	DeveloperName      *string  `json:"developer_name,omitempty"`
	PublicKeyPEM       string   `json:"public_key_pem"`
	RevokedKeys        []string `json:"revoked_keys"`
	Contact            *string  `json:"contact,omitempty"`
	RevocationEndpoint *string  `json:"revocation_endpoint,omitempty"`
}

// RevocationReason is the closed set of reasons a key was revoked.
type RevocationReason string

const (
	ReasonKeyCompromise         RevocationReason = "key_compromise"
	ReasonSuperseded            RevocationReason = "superseded"
	ReasonCessationOfOperation  RevocationReason = "cessation_of_operation"
	ReasonPrivilegeWithdrawn    RevocationReason = "privilege_withdrawn"
)

// RevokedKey is a single entry in a RevocationDocument.
type RevokedKey struct {
	Fingerprint string           `json:"fingerprint"`
	RevokedAt   string           `json:"revoked_at"`
	Reason      RevocationReason `json:"reason"`
}

// RevocationDocument is the authoritative, standalone list of revoked keys
// for a domain.
type RevocationDocument struct {
	SchemapinVersion string       `json:"schemapin_version"`
	Domain           string       `json:"domain"`
	UpdatedAt        string       `json:"updated_at"`
	RevokedKeys      []RevokedKey `json:"revoked_keys"`
}

// BundledDiscovery pairs a domain with its WellKnownResponse, flattened to
// a single JSON object the way the Rust source's #[serde(flatten)] does.
type BundledDiscovery struct {
	Domain    string
	WellKnown WellKnownResponse
}

// MarshalJSON flattens Domain alongside WellKnownResponse's own fields.
func (b BundledDiscovery) MarshalJSON() ([]byte, error) {
	wk, err := json.Marshal(b.WellKnown)
	if err != nil {
		return nil, err
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(wk, &flat); err != nil {
		return nil, err
	}

	domain, err := json.Marshal(b.Domain)
	if err != nil {
		return nil, err
	}
	flat["domain"] = domain

	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON's flattening.
func (b *BundledDiscovery) UnmarshalJSON(data []byte) error {
	var wk WellKnownResponse
	if err := json.Unmarshal(data, &wk); err != nil {
		return err
	}

	var withDomain struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(data, &withDomain); err != nil {
		return err
	}

	b.Domain = withDomain.Domain
	b.WellKnown = wk

	return nil
}

// SchemaPinTrustBundle is a pre-shared offline snapshot binding multiple
// domains to their discovery (and optional revocation) documents.
type SchemaPinTrustBundle struct {
	SchemapinBundleVersion string                `json:"schemapin_bundle_version"`
	CreatedAt              string                `json:"created_at"`
	Documents              []BundledDiscovery     `json:"documents"`
	Revocations            []RevocationDocument   `json:"revocations"`
}

// FindDiscovery returns the bundled discovery document for domain, if any.
func (t *SchemaPinTrustBundle) FindDiscovery(domain string) (*BundledDiscovery, bool) {
	for i := range t.Documents {
		if t.Documents[i].Domain == domain {
			return &t.Documents[i], true
		}
	}
	return nil, false
}

// FindRevocation returns the bundled revocation document for domain, if any.
func (t *SchemaPinTrustBundle) FindRevocation(domain string) (*RevocationDocument, bool) {
	for i := range t.Revocations {
		if t.Revocations[i].Domain == domain {
			return &t.Revocations[i], true
		}
	}
	return nil, false
}

// SkillSignature is the .schemapin.sig document written into a signed
// skill directory.
type SkillSignature struct {
	SchemapinVersion string            `json:"schemapin_version"`
	SkillName        string            `json:"skill_name"`
	SkillHash        string            `json:"skill_hash"`
	Signature        string            `json:"signature"`
	SignedAt         string            `json:"signed_at"`
	Domain           string            `json:"domain"`
	SignerKid        string            `json:"signer_kid"`
	FileManifest     map[string]string `json:"file_manifest"`
}
