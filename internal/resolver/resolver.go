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

// Package resolver implements the discovery/revocation resolver abstraction:
// a uniform contract over HTTPS well-known fetch, local file directories, an
// embedded trust bundle, and chained fallback between any of them.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"schemapin/internal/discovery"
)

// Resolver resolves discovery and revocation documents for a domain.
type Resolver interface {
	ResolveDiscovery(ctx context.Context, domain string) (*discovery.WellKnownResponse, error)
	ResolveRevocation(ctx context.Context, domain string, disc *discovery.WellKnownResponse) (*discovery.RevocationDocument, error)
}

// HTTPSWellKnown resolves documents from the standard
// https://{domain}/.well-known/schemapin.json endpoint. Redirects are
// forbidden; any 3xx or non-2xx response is an error.
type HTTPSWellKnown struct {
	client *http.Client
}

// NewHTTPSWellKnown returns an HTTPSWellKnown resolver with the given
// request timeout. Redirects are always rejected.
func NewHTTPSWellKnown(timeout time.Duration) *HTTPSWellKnown {
	return &HTTPSWellKnown{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (r *HTTPSWellKnown) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("redirect detected fetching %s (status %d); redirects are not allowed", url, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	return body, nil
}

// ResolveDiscovery fetches and validates the well-known document for domain.
func (r *HTTPSWellKnown) ResolveDiscovery(ctx context.Context, domain string) (*discovery.WellKnownResponse, error) {
	url := discovery.WellKnownURL(domain)

	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp discovery.WellKnownResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", url, err)
	}

	if err := discovery.ValidateWellKnownResponse(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ResolveRevocation fetches the standalone revocation document from
// disc.RevocationEndpoint, if present. Absent a revocation_endpoint, it
// returns (nil, nil).
func (r *HTTPSWellKnown) ResolveRevocation(ctx context.Context, domain string, disc *discovery.WellKnownResponse) (*discovery.RevocationDocument, error) {
	if disc.RevocationEndpoint == nil || *disc.RevocationEndpoint == "" {
		return nil, nil
	}

	body, err := r.get(ctx, *disc.RevocationEndpoint)
	if err != nil {
		return nil, err
	}

	var doc discovery.RevocationDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", *disc.RevocationEndpoint, err)
	}

	return &doc, nil
}

// LocalDirectory resolves discovery/revocation documents from files on disk:
// {discoveryDir}/{domain}.json and {revocationDir}/{domain}.revocations.json
// (revocationDir defaults to discoveryDir).
type LocalDirectory struct {
	discoveryDir  string
	revocationDir string
}

// NewLocalDirectory returns a LocalDirectory resolver. An empty
// revocationDir falls back to discoveryDir.
func NewLocalDirectory(discoveryDir, revocationDir string) *LocalDirectory {
	if revocationDir == "" {
		revocationDir = discoveryDir
	}

	return &LocalDirectory{discoveryDir: discoveryDir, revocationDir: revocationDir}
}

// ResolveDiscovery reads {discoveryDir}/{domain}.json.
func (r *LocalDirectory) ResolveDiscovery(_ context.Context, domain string) (*discovery.WellKnownResponse, error) {
	path := filepath.Join(r.discoveryDir, domain+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var resp discovery.WellKnownResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return &resp, nil
}

// ResolveRevocation reads {revocationDir}/{domain}.revocations.json, if it
// exists; absence is not an error.
func (r *LocalDirectory) ResolveRevocation(_ context.Context, domain string, _ *discovery.WellKnownResponse) (*discovery.RevocationDocument, error) {
	path := filepath.Join(r.revocationDir, domain+".revocations.json")

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var doc discovery.RevocationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return &doc, nil
}

// TrustBundle resolves discovery/revocation documents from an in-memory
// SchemaPinTrustBundle.
type TrustBundle struct {
	discovery   map[string]discovery.WellKnownResponse
	revocations map[string]discovery.RevocationDocument
}

// NewTrustBundle indexes bundle by domain.
func NewTrustBundle(bundle *discovery.SchemaPinTrustBundle) *TrustBundle {
	t := &TrustBundle{
		discovery:   make(map[string]discovery.WellKnownResponse, len(bundle.Documents)),
		revocations: make(map[string]discovery.RevocationDocument, len(bundle.Revocations)),
	}

	for _, doc := range bundle.Documents {
		t.discovery[doc.Domain] = doc.WellKnown
	}
	for _, rev := range bundle.Revocations {
		t.revocations[rev.Domain] = rev
	}

	return t
}

// NewTrustBundleFromJSON parses a SchemaPinTrustBundle from data and
// indexes it.
func NewTrustBundleFromJSON(data []byte) (*TrustBundle, error) {
	var bundle discovery.SchemaPinTrustBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("invalid trust bundle JSON: %w", err)
	}

	return NewTrustBundle(&bundle), nil
}

// ResolveDiscovery looks domain up in the bundle; a miss is an error.
func (t *TrustBundle) ResolveDiscovery(_ context.Context, domain string) (*discovery.WellKnownResponse, error) {
	resp, ok := t.discovery[domain]
	if !ok {
		return nil, fmt.Errorf("domain %q not in trust bundle", domain)
	}

	cp := resp
	return &cp, nil
}

// ResolveRevocation looks domain up in the bundle's revocations; a miss
// returns (nil, nil), never an error.
func (t *TrustBundle) ResolveRevocation(_ context.Context, domain string, _ *discovery.WellKnownResponse) (*discovery.RevocationDocument, error) {
	doc, ok := t.revocations[domain]
	if !ok {
		return nil, nil
	}

	cp := doc
	return &cp, nil
}

// Chain tries a sequence of resolvers in order. ResolveDiscovery returns
// the first success, or the last error if every resolver failed.
// ResolveRevocation returns the first non-nil hit; resolver errors and
// misses are swallowed in favor of trying the next resolver, so a missing
// revocation source never masks a successful discovery hit.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a Chain over resolvers, tried in the given order.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// ResolveDiscovery tries each resolver in order.
func (c *Chain) ResolveDiscovery(ctx context.Context, domain string) (*discovery.WellKnownResponse, error) {
	lastErr := fmt.Errorf("no resolvers configured")

	for _, r := range c.resolvers {
		doc, err := r.ResolveDiscovery(ctx, domain)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// ResolveRevocation tries each resolver in order, taking the first non-nil
// document. Errors and absent documents both fall through to the next
// resolver; if none produce a document the result is (nil, nil).
func (c *Chain) ResolveRevocation(ctx context.Context, domain string, disc *discovery.WellKnownResponse) (*discovery.RevocationDocument, error) {
	for _, r := range c.resolvers {
		doc, err := r.ResolveRevocation(ctx, domain, disc)
		if err != nil {
			continue
		}
		if doc != nil {
			return doc, nil
		}
	}

	return nil, nil
}
