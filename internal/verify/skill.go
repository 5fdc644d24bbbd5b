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
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"schemapin/internal/canonical"
	"schemapin/internal/crypto"
	"schemapin/internal/discovery"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
)

// LoadSkillSignature reads and parses the .schemapin.sig document from a
// skill directory.
func LoadSkillSignature(dir string) (*discovery.SkillSignature, error) {
	data, err := os.ReadFile(filepath.Join(dir, canonical.SigFileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", canonical.SigFileName, err)
	}

	var sig discovery.SkillSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", canonical.SigFileName, err)
	}

	return &sig, nil
}

// VerifySkillOffline runs the skill variant of the 7-step state machine. If
// sig is nil it is loaded from dir's .schemapin.sig file; load failure maps
// to ErrSignatureInvalid, matching an unsigned or corrupt skill. If toolID
// is empty, the signature's own skill_name is used. Pinning and the result's
// domain always come from sig.Domain — the signature is the claim being
// verified, not the caller.
func VerifySkillOffline(dir string, sig *discovery.SkillSignature, toolID string, disc *discovery.WellKnownResponse, revocation *discovery.RevocationDocument, store *pin.Store) VerificationResult {
	if sig == nil {
		loaded, err := LoadSkillSignature(dir)
		if err != nil {
			return failure(ErrSignatureInvalid, fmt.Sprintf("failed to load skill signature: %v", err))
		}
		sig = loaded
	}

	domain := sig.Domain

	effectiveToolID := toolID
	if effectiveToolID == "" {
		effectiveToolID = sig.SkillName
	}

	// Step 1: validate discovery document.
	if err := discovery.ValidateWellKnownResponse(disc); err != nil {
		return failure(ErrDiscoveryInvalid, fmt.Sprintf("discovery validation failed: %v", err))
	}

	// Step 2: compute fingerprint.
	fingerprint, err := crypto.Fingerprint(disc.PublicKeyPEM)
	if err != nil {
		return failure(ErrKeyNotFound, fmt.Sprintf("failed to compute key fingerprint: %v", err))
	}

	// Step 3: revocation gate.
	if revoked, reason := discovery.CheckRevocationCombined(disc.RevokedKeys, revocation, fingerprint); revoked {
		msg := fmt.Sprintf("key %s revoked", fingerprint)
		if reason != "" {
			msg = fmt.Sprintf("%s: %s", msg, reason)
		}
		return failure(ErrKeyRevoked, msg)
	}

	// Step 4: pin gate.
	pinResult := store.CheckAndPin(effectiveToolID, domain, fingerprint)
	if pinResult == pin.Changed {
		return failure(ErrKeyPinMismatch, fmt.Sprintf("key for '%s@%s' has changed since last pinned (fingerprint: '%s')", effectiveToolID, domain, fingerprint))
	}

	// Step 5: canonicalize the skill tree and verify the signature over the
	// recomputed root hash. The signature was produced over root_hash bytes
	// at signing time, not over the skill_hash string, so this single check
	// covers both tampering and signature validity at once.
	rootHash, _, err := canonical.Skill(dir)
	if err != nil {
		return failure(ErrSchemaCanonicalizationFailed, fmt.Sprintf("skill canonicalization failed: %v", err))
	}

	// Step 6: verify signature.
	valid, err := crypto.Verify(disc.PublicKeyPEM, rootHash, sig.Signature)
	if err != nil {
		return failure(ErrSignatureInvalid, fmt.Sprintf("signature verification error: %v", err))
	}
	if !valid {
		return failure(ErrSignatureInvalid, "skill signature is invalid")
	}

	// Step 7: success.
	return success(domain, disc.DeveloperName, pinningStatus(pinResult, store, effectiveToolID, domain))
}

// VerifySkillWithResolver resolves discovery and revocation documents via r,
// then delegates to VerifySkillOffline. domain selects which domain's
// discovery/revocation documents to fetch; when empty, it defaults to the
// signature's own sig.Domain, so a caller that doesn't assert an expected
// domain still resolves against the domain the skill actually claims.
// A non-empty domain is treated as the caller's externally-asserted
// expectation, which may differ from sig.Domain — callers compare the two
// (e.g. against the returned VerificationResult.Domain) to detect a
// mismatch. Fail-closed on revocation errors.
func VerifySkillWithResolver(ctx context.Context, dir string, sig *discovery.SkillSignature, toolID, domain string, r resolver.Resolver, store *pin.Store) VerificationResult {
	if sig == nil {
		loaded, err := LoadSkillSignature(dir)
		if err != nil {
			return failure(ErrSignatureInvalid, fmt.Sprintf("failed to load skill signature: %v", err))
		}
		sig = loaded
	}

	resolveDomain := domain
	if resolveDomain == "" {
		resolveDomain = sig.Domain
	}

	disc, err := r.ResolveDiscovery(ctx, resolveDomain)
	if err != nil {
		return failure(ErrDiscoveryFetchFailed, fmt.Sprintf("failed to resolve discovery document: %v", err))
	}

	revocation, err := r.ResolveRevocation(ctx, resolveDomain, disc)
	if err != nil {
		return failure(ErrDiscoveryFetchFailed, "revocation document unreachable (fail-closed)")
	}

	return VerifySkillOffline(dir, sig, toolID, disc, revocation, store)
}

// TamperedFiles reports the set-arithmetic diff between a current file
// manifest and the one recorded at signing time. Diagnostic only — it plays
// no part in the verification decision.
type TamperedFiles struct {
	Modified []string `json:"modified"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}

// DetectTamperedFiles compares current against signed, both relpath->digest
// manifests, and reports files present in both with differing digests,
// present only in current, and present only in signed.
func DetectTamperedFiles(current, signed map[string]string) TamperedFiles {
	result := TamperedFiles{Modified: []string{}, Added: []string{}, Removed: []string{}}

	for path, digest := range current {
		signedDigest, ok := signed[path]
		if !ok {
			result.Added = append(result.Added, path)
			continue
		}
		if digest != signedDigest {
			result.Modified = append(result.Modified, path)
		}
	}

	for path := range signed {
		if _, ok := current[path]; !ok {
			result.Removed = append(result.Removed, path)
		}
	}

	return result
}
