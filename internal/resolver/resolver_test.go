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
package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapin/internal/discovery"
)

func makeWellKnown(pem string) discovery.WellKnownResponse {
	name := "Test"
	return discovery.WellKnownResponse{
		SchemaVersion: "1.2",
		DeveloperName: &name,
		PublicKeyPEM:  pem,
		RevokedKeys:   []string{},
	}
}

func makeBundle(domain string) discovery.SchemaPinTrustBundle {
	return discovery.SchemaPinTrustBundle{
		SchemapinBundleVersion: "1.2",
		Documents: []discovery.BundledDiscovery{
			{Domain: domain, WellKnown: makeWellKnown("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----")},
		},
	}
}

func TestTrustBundleResolver_Hit(t *testing.T) {
	bundle := makeBundle("example.com")
	r := NewTrustBundle(&bundle)

	doc, err := r.ResolveDiscovery(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "1.2", doc.SchemaVersion)
}

func TestTrustBundleResolver_Miss(t *testing.T) {
	bundle := discovery.SchemaPinTrustBundle{SchemapinBundleVersion: "1.2"}
	r := NewTrustBundle(&bundle)

	_, err := r.ResolveDiscovery(context.Background(), "missing.com")
	assert.Error(t, err)
}

func TestTrustBundleResolver_Revocation(t *testing.T) {
	bundle := makeBundle("example.com")
	bundle.Revocations = []discovery.RevocationDocument{{Domain: "example.com"}}
	r := NewTrustBundle(&bundle)

	disc, err := r.ResolveDiscovery(context.Background(), "example.com")
	require.NoError(t, err)

	rev, err := r.ResolveRevocation(context.Background(), "example.com", disc)
	require.NoError(t, err)
	assert.NotNil(t, rev)
}

func TestTrustBundleResolver_RevocationMissIsNilNotError(t *testing.T) {
	bundle := makeBundle("example.com")
	r := NewTrustBundle(&bundle)

	rev, err := r.ResolveRevocation(context.Background(), "example.com", nil)
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestTrustBundleResolver_FromJSON(t *testing.T) {
	bundle := makeBundle("example.com")
	data, err := json.Marshal(bundle)
	require.NoError(t, err)

	r, err := NewTrustBundleFromJSON(data)
	require.NoError(t, err)

	_, err = r.ResolveDiscovery(context.Background(), "example.com")
	assert.NoError(t, err)
}

func TestLocalDirectoryResolver(t *testing.T) {
	dir := t.TempDir()
	wk := makeWellKnown("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----")
	data, err := json.Marshal(wk)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.example.com.json"), data, 0o644))

	r := NewLocalDirectory(dir, "")

	resolved, err := r.ResolveDiscovery(context.Background(), "local.example.com")
	require.NoError(t, err)
	assert.Equal(t, "1.2", resolved.SchemaVersion)
}

func TestLocalDirectoryResolver_Missing(t *testing.T) {
	dir := t.TempDir()
	r := NewLocalDirectory(dir, "")

	_, err := r.ResolveDiscovery(context.Background(), "missing.com")
	assert.Error(t, err)
}

func TestLocalDirectoryResolver_Revocation(t *testing.T) {
	dir := t.TempDir()
	wk := makeWellKnown("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----")
	wkData, err := json.Marshal(wk)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.example.com.json"), wkData, 0o644))

	rev := discovery.RevocationDocument{Domain: "local.example.com"}
	revData, err := json.Marshal(rev)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.example.com.revocations.json"), revData, 0o644))

	r := NewLocalDirectory(dir, "")

	resolved, err := r.ResolveRevocation(context.Background(), "local.example.com", &wk)
	require.NoError(t, err)
	assert.NotNil(t, resolved)
}

func TestLocalDirectoryResolver_RevocationAbsentIsNilNotError(t *testing.T) {
	dir := t.TempDir()
	r := NewLocalDirectory(dir, "")

	resolved, err := r.ResolveRevocation(context.Background(), "missing.com", nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestChainResolver_FirstWins(t *testing.T) {
	bundleA := makeBundle("a.com")
	bundleB := makeBundle("b.com")

	chain := NewChain(NewTrustBundle(&bundleA), NewTrustBundle(&bundleB))

	_, err := chain.ResolveDiscovery(context.Background(), "a.com")
	assert.NoError(t, err)
	_, err = chain.ResolveDiscovery(context.Background(), "b.com")
	assert.NoError(t, err)
	_, err = chain.ResolveDiscovery(context.Background(), "c.com")
	assert.Error(t, err)
}

func TestChainResolver_Fallthrough(t *testing.T) {
	empty := discovery.SchemaPinTrustBundle{SchemapinBundleVersion: "1.2"}
	hasDoc := makeBundle("example.com")

	chain := NewChain(NewTrustBundle(&empty), NewTrustBundle(&hasDoc))

	doc, err := chain.ResolveDiscovery(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "1.2", doc.SchemaVersion)
}

func TestChainResolver_RevocationSwallowsErrors(t *testing.T) {
	dir := t.TempDir() // malformed revocation file -> first resolver errors on lookup
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.com.revocations.json"), []byte("not json"), 0o644))
	bundleWithRev := makeBundle("example.com")
	bundleWithRev.Revocations = []discovery.RevocationDocument{{Domain: "example.com"}}

	chain := NewChain(NewLocalDirectory(dir, ""), NewTrustBundle(&bundleWithRev))

	rev, err := chain.ResolveRevocation(context.Background(), "example.com", nil)
	require.NoError(t, err)
	assert.NotNil(t, rev)
}

func TestHTTPSWellKnown_HappyPath(t *testing.T) {
	wk := makeWellKnown("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/schemapin.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wk)
	}))
	defer srv.Close()

	r := NewHTTPSWellKnown(5 * time.Second)

	url := discovery.WellKnownURL("example.com")
	assert.Equal(t, "https://example.com/.well-known/schemapin.json", url)

	body, err := r.get(context.Background(), srv.URL+"/.well-known/schemapin.json")
	require.NoError(t, err)

	var got discovery.WellKnownResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, wk.SchemaVersion, got.SchemaVersion)
}

func TestHTTPSWellKnown_RejectsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	r := NewHTTPSWellKnown(5 * time.Second)

	_, err := r.get(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPSWellKnown_RejectsNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPSWellKnown(5 * time.Second)

	_, err := r.get(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPSWellKnown_ResolveRevocation_AbsentEndpoint(t *testing.T) {
	r := NewHTTPSWellKnown(5 * time.Second)
	wk := makeWellKnown("key")

	doc, err := r.ResolveRevocation(context.Background(), "example.com", &wk)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
