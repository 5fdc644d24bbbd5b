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

// Package verify implements the 7-step verification state machine for
// schemas and skills: validate discovery, fingerprint, revocation gate,
// pin gate, canonicalize, signature verify, report.
package verify

// ErrorCode is the closed, wire-stable verification error taxonomy. Every
// verification failure maps to exactly one code, chosen by the
// earliest-failing step.
type ErrorCode string

const (
	ErrSignatureInvalid             ErrorCode = "SIGNATURE_INVALID"
	ErrKeyNotFound                  ErrorCode = "KEY_NOT_FOUND"
	ErrKeyRevoked                   ErrorCode = "KEY_REVOKED"
	ErrKeyPinMismatch               ErrorCode = "KEY_PIN_MISMATCH"
	ErrDiscoveryFetchFailed         ErrorCode = "DISCOVERY_FETCH_FAILED"
	ErrDiscoveryInvalid             ErrorCode = "DISCOVERY_INVALID"
	ErrDomainMismatch               ErrorCode = "DOMAIN_MISMATCH"
	ErrSchemaCanonicalizationFailed ErrorCode = "SCHEMA_CANONICALIZATION_FAILED"
)
