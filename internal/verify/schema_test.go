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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapin/internal/canonical"
	"schemapin/internal/crypto"
	"schemapin/internal/discovery"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
)

const testSchemaJSON = `{"name":"calculate_sum","description":"Calculates the sum","parameters":{"a":"integer","b":"integer"}}`

func signSchema(t *testing.T, privatePEM string, schema []byte) string {
	t.Helper()
	hash, err := canonical.Hash(schema)
	require.NoError(t, err)
	sig, err := crypto.Sign(privatePEM, hash[:])
	require.NoError(t, err)
	return sig
}

func newTestDiscovery(t *testing.T, publicPEM string) *discovery.WellKnownResponse {
	t.Helper()
	name := "Acme Corp"
	return &discovery.WellKnownResponse{
		SchemaVersion: "1.2",
		DeveloperName: &name,
		PublicKeyPEM:  publicPEM,
		RevokedKeys:   []string{},
	}
}

func TestVerifySchemaOffline_HappyPathFirstUse(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)
	disc := newTestDiscovery(t, pub)
	store := pin.NewStore()

	result := VerifySchemaOffline(schema, sig, "example.com", "calculate_sum", disc, nil, store)

	require.True(t, result.Valid)
	assert.Equal(t, "example.com", *result.Domain)
	assert.Equal(t, "Acme Corp", *result.DeveloperName)
	require.NotNil(t, result.KeyPinning)
	assert.Equal(t, "first_use", result.KeyPinning.Status)
	assert.NotNil(t, result.KeyPinning.FirstSeen)
}

func TestVerifySchemaOffline_SecondCallIsPinned(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)
	disc := newTestDiscovery(t, pub)
	store := pin.NewStore()

	_ = VerifySchemaOffline(schema, sig, "example.com", "calculate_sum", disc, nil, store)
	result := VerifySchemaOffline(schema, sig, "example.com", "calculate_sum", disc, nil, store)

	require.True(t, result.Valid)
	assert.Equal(t, "pinned", result.KeyPinning.Status)
}

func TestVerifySchemaOffline_TamperedSchemaFailsSignature(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)
	disc := newTestDiscovery(t, pub)
	store := pin.NewStore()

	tampered := []byte(`{"name":"calculate_sum","description":"Tampered","parameters":{"a":"integer","b":"integer"}}`)
	result := VerifySchemaOffline(tampered, sig, "example.com", "calculate_sum", disc, nil, store)

	require.False(t, result.Valid)
	assert.Equal(t, ErrSignatureInvalid, *result.ErrorCode)
}

func TestVerifySchemaOffline_KeyRevokedViaSimpleList(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)

	fingerprint, err := crypto.Fingerprint(pub)
	require.NoError(t, err)

	disc := newTestDiscovery(t, pub)
	disc.RevokedKeys = []string{fingerprint}
	store := pin.NewStore()

	result := VerifySchemaOffline(schema, sig, "example.com", "calculate_sum", disc, nil, store)

	require.False(t, result.Valid)
	assert.Equal(t, ErrKeyRevoked, *result.ErrorCode)
}

func TestVerifySchemaOffline_KeyRevokedViaStandaloneDocument(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)

	fingerprint, err := crypto.Fingerprint(pub)
	require.NoError(t, err)

	disc := newTestDiscovery(t, pub)
	store := pin.NewStore()
	revocation := &discovery.RevocationDocument{
		SchemapinVersion: "1.2",
		Domain:           "example.com",
		RevokedKeys: []discovery.RevokedKey{
			{Fingerprint: fingerprint, Reason: discovery.ReasonKeyCompromise},
		},
	}

	result := VerifySchemaOffline(schema, sig, "example.com", "calculate_sum", disc, revocation, store)

	require.False(t, result.Valid)
	assert.Equal(t, ErrKeyRevoked, *result.ErrorCode)
}

func TestVerifySchemaOffline_PinMismatch(t *testing.T) {
	priv1, pub1, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	priv2, pub2, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	store := pin.NewStore()

	sig1 := signSchema(t, priv1, schema)
	disc1 := newTestDiscovery(t, pub1)
	first := VerifySchemaOffline(schema, sig1, "example.com", "calculate_sum", disc1, nil, store)
	require.True(t, first.Valid)

	sig2 := signSchema(t, priv2, schema)
	disc2 := newTestDiscovery(t, pub2)
	second := VerifySchemaOffline(schema, sig2, "example.com", "calculate_sum", disc2, nil, store)

	require.False(t, second.Valid)
	assert.Equal(t, ErrKeyPinMismatch, *second.ErrorCode)
}

func TestVerifySchemaOffline_InvalidDiscovery(t *testing.T) {
	store := pin.NewStore()
	disc := &discovery.WellKnownResponse{SchemaVersion: "1.2", PublicKeyPEM: ""}

	result := VerifySchemaOffline([]byte(testSchemaJSON), "bogus", "example.com", "calculate_sum", disc, nil, store)

	require.False(t, result.Valid)
	assert.Equal(t, ErrDiscoveryInvalid, *result.ErrorCode)
}

func TestVerifySchemaWithResolver_MissingDomain(t *testing.T) {
	bundle := discovery.SchemaPinTrustBundle{SchemapinBundleVersion: "1.2"}
	r := resolver.NewTrustBundle(&bundle)
	store := pin.NewStore()

	result := VerifySchemaWithResolver(context.Background(), []byte(testSchemaJSON), "sig", "missing.com", "tool", r, store)

	require.False(t, result.Valid)
	assert.Equal(t, ErrDiscoveryFetchFailed, *result.ErrorCode)
}

func TestVerifySchemaWithResolver_HappyPath(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	schema := []byte(testSchemaJSON)
	sig := signSchema(t, priv, schema)

	bundle := discovery.SchemaPinTrustBundle{
		SchemapinBundleVersion: "1.2",
		Documents: []discovery.BundledDiscovery{
			{Domain: "example.com", WellKnown: *newTestDiscovery(t, pub)},
		},
	}
	r := resolver.NewTrustBundle(&bundle)
	store := pin.NewStore()

	result := VerifySchemaWithResolver(context.Background(), schema, sig, "example.com", "calculate_sum", r, store)

	require.True(t, result.Valid)
}
