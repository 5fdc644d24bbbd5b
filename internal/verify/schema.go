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
	"fmt"
	"time"

	"schemapin/internal/canonical"
	"schemapin/internal/crypto"
	"schemapin/internal/discovery"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// VerifySchemaOffline runs the 7-step state machine against caller-supplied
// discovery and (optional) revocation documents — no resolver I/O. schema
// is the raw JSON bytes as received; signatureB64 is the base64 DER ECDSA
// signature claimed over its canonical hash.
func VerifySchemaOffline(schema []byte, signatureB64, domain, toolID string, disc *discovery.WellKnownResponse, revocation *discovery.RevocationDocument, store *pin.Store) VerificationResult {
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
	pinResult := store.CheckAndPin(toolID, domain, fingerprint)
	if pinResult == pin.Changed {
		return failure(ErrKeyPinMismatch, fmt.Sprintf("key for '%s@%s' has changed since last pinned (fingerprint: '%s')", toolID, domain, fingerprint))
	}

	// Step 5: canonicalize and hash.
	hash, err := canonical.Hash(schema)
	if err != nil {
		return failure(ErrSchemaCanonicalizationFailed, fmt.Sprintf("schema canonicalization failed: %v", err))
	}

	// Step 6: verify signature.
	valid, err := crypto.Verify(disc.PublicKeyPEM, hash[:], signatureB64)
	if err != nil {
		return failure(ErrSignatureInvalid, fmt.Sprintf("signature verification error: %v", err))
	}
	if !valid {
		return failure(ErrSignatureInvalid, "schema signature is invalid")
	}

	// Step 7: success.
	return success(domain, disc.DeveloperName, pinningStatus(pinResult, store, toolID, domain))
}

func pinningStatus(result pin.Outcome, store *pin.Store, toolID, domain string) KeyPinningStatus {
	switch result {
	case pin.FirstUse:
		return KeyPinningStatus{Status: "first_use", FirstSeen: strPtr(nowRFC3339())}
	case pin.Matched:
		status := KeyPinningStatus{Status: "pinned"}
		if tool, ok := store.GetTool(toolID, domain); ok && len(tool.PinnedKeys) > 0 {
			status.FirstSeen = strPtr(tool.PinnedKeys[0].FirstSeen)
		}
		return status
	default:
		// Changed is handled by the caller before this is ever reached.
		return KeyPinningStatus{Status: "first_use", FirstSeen: strPtr(nowRFC3339())}
	}
}

// VerifySchemaWithResolver resolves discovery and revocation documents via
// r, then delegates to VerifySchemaOffline. A revocation-resolution error
// is treated fail-closed — the verifier cannot prove non-revocation, so it
// rejects rather than proceeding without one.
func VerifySchemaWithResolver(ctx context.Context, schema []byte, signatureB64, domain, toolID string, r resolver.Resolver, store *pin.Store) VerificationResult {
	disc, err := r.ResolveDiscovery(ctx, domain)
	if err != nil {
		return failure(ErrDiscoveryFetchFailed, fmt.Sprintf("failed to resolve discovery document: %v", err))
	}

	revocation, err := r.ResolveRevocation(ctx, domain, disc)
	if err != nil {
		return failure(ErrDiscoveryFetchFailed, "revocation document unreachable (fail-closed)")
	}

	return VerifySchemaOffline(schema, signatureB64, domain, toolID, disc, revocation, store)
}
