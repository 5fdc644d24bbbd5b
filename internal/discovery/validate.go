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
package discovery

import (
	"fmt"
	"strings"
)

// WellKnownURL builds the conventional well-known discovery URL for domain.
func WellKnownURL(domain string) string {
	return fmt.Sprintf("https://%s/.well-known/schemapin.json", domain)
}

// ValidateWellKnownResponse runs the cheap, pre-crypto shape checks on a
// discovery document: a non-empty public_key_pem containing the PEM public
// key header, and a non-empty schema_version.
func ValidateWellKnownResponse(resp *WellKnownResponse) error {
	if resp.PublicKeyPEM == "" {
		return fmt.Errorf("public_key_pem must not be empty")
	}
	if !strings.Contains(resp.PublicKeyPEM, "-----BEGIN PUBLIC KEY-----") {
		return fmt.Errorf("public_key_pem must be a valid PEM public key")
	}
	if resp.SchemaVersion == "" {
		return fmt.Errorf("schema_version must not be empty")
	}

	return nil
}

// CheckKeyRevocation reports whether fingerprint appears in the simple
// revoked_keys list carried on a WellKnownResponse.
func CheckKeyRevocation(fingerprint string, revokedKeys []string) bool {
	for _, k := range revokedKeys {
		if k == fingerprint {
			return true
		}
	}
	return false
}

// CheckRevocationCombined is the pure function behind step 3 of the
// verification state machine: the simple revoked_keys list is checked
// first, then the standalone revocation document if one was resolved.
// The returned reason is the revoking entry's reason when the hit came from
// the standalone document, and empty when it came from the simple list.
func CheckRevocationCombined(simpleRevoked []string, doc *RevocationDocument, fingerprint string) (revoked bool, reason RevocationReason) {
	if CheckKeyRevocation(fingerprint, simpleRevoked) {
		return true, ""
	}

	if doc != nil {
		for _, rk := range doc.RevokedKeys {
			if rk.Fingerprint == fingerprint {
				return true, rk.Reason
			}
		}
	}

	return false, ""
}
