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

// KeyPinningStatus reports how the verified key relates to the pin store:
// "first_use" the first time a tool@domain pair is observed, "pinned"
// thereafter.
type KeyPinningStatus struct {
	Status    string  `json:"status"`
	FirstSeen *string `json:"first_seen,omitempty"`
}

// VerificationResult is the outcome of running the orchestrator over a
// schema or a skill. Valid=true implies ErrorCode is absent and KeyPinning
// is present; Valid=false implies ErrorCode is present.
type VerificationResult struct {
	Valid          bool              `json:"valid"`
	Domain         *string           `json:"domain,omitempty"`
	DeveloperName  *string           `json:"developer_name,omitempty"`
	KeyPinning     *KeyPinningStatus `json:"key_pinning,omitempty"`
	ErrorCode      *ErrorCode        `json:"error_code,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	Warnings       []string          `json:"warnings"`
}

func strPtr(s string) *string { return &s }

// success builds a valid VerificationResult.
func success(domain string, developerName *string, pinStatus KeyPinningStatus) VerificationResult {
	return VerificationResult{
		Valid:         true,
		Domain:        strPtr(domain),
		DeveloperName: developerName,
		KeyPinning:    &pinStatus,
		Warnings:      []string{},
	}
}

// failure builds an invalid VerificationResult carrying exactly one error
// code and message.
func failure(code ErrorCode, message string) VerificationResult {
	return VerificationResult{
		Valid:        false,
		ErrorCode:    &code,
		ErrorMessage: strPtr(message),
		Warnings:     []string{},
	}
}
