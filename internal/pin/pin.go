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

// Package pin implements the trust-on-first-use key pin store: the only
// mutable shared state in the verification core. A Store is safe for
// concurrent use; each verification call serializes through its mutex.
package pin

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TrustLevel records how a pinned key came to be trusted.
type TrustLevel string

const (
	TrustTofu     TrustLevel = "tofu"
	TrustVerified TrustLevel = "verified"
	TrustPinned   TrustLevel = "pinned"
)

// PinnedKey is one accepted key fingerprint for a PinnedTool.
type PinnedKey struct {
	Fingerprint string     `json:"fingerprint"`
	FirstSeen   string     `json:"first_seen"`
	LastSeen    string     `json:"last_seen"`
	TrustLevel  TrustLevel `json:"trust_level"`
}

// PinnedTool is the record a verifier remembers per (tool_id, domain).
type PinnedTool struct {
	ToolID     string      `json:"tool_id"`
	Domain     string      `json:"domain"`
	PinnedKeys []PinnedKey `json:"pinned_keys"`
}

// Outcome is the result of checking a fingerprint against the pin store.
type Outcome int

const (
	// FirstUse: no record existed for tool_id@domain; one was created.
	FirstUse Outcome = iota
	// Matched: a record existed and fingerprint matched a pinned key.
	Matched
	// Changed: a record existed but no pinned key matched; the store was
	// left untouched.
	Changed
)

func (o Outcome) String() string {
	switch o {
	case FirstUse:
		return "first_use"
	case Matched:
		return "matched"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// nowFunc is overridable in tests; defaults to time.Now formatted RFC 3339.
var nowFunc = func() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Store is the in-memory TOFU pin store, keyed by "tool_id@domain".
type Store struct {
	mu    sync.RWMutex
	tools map[string]*PinnedTool
}

// NewStore returns an empty pin store.
func NewStore() *Store {
	return &Store{
		tools: make(map[string]*PinnedTool),
	}
}

func compositeKey(toolID, domain string) string {
	return toolID + "@" + domain
}

// CheckAndPin is the sole mutator. It returns FirstUse the first time
// tool_id@domain is observed (pinning fingerprint at trust_level=tofu),
// Matched when fingerprint is already pinned (bumping last_seen), and
// Changed when a record exists but fingerprint does not match any pinned
// key — in which case the store is left unmodified.
func (s *Store) CheckAndPin(toolID, domain, fingerprint string) Outcome {
	key := compositeKey(toolID, domain)
	now := nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	tool, ok := s.tools[key]
	if !ok {
		s.tools[key] = &PinnedTool{
			ToolID: toolID,
			Domain: domain,
			PinnedKeys: []PinnedKey{
				{
					Fingerprint: fingerprint,
					FirstSeen:   now,
					LastSeen:    now,
					TrustLevel:  TrustTofu,
				},
			},
		}
		return FirstUse
	}

	for i := range tool.PinnedKeys {
		if tool.PinnedKeys[i].Fingerprint == fingerprint {
			tool.PinnedKeys[i].LastSeen = now
			return Matched
		}
	}

	return Changed
}

// AddKey authorizes a key rotation: it appends fingerprint to tool_id@domain's
// pinned keys if not already present, creating the record if necessary.
// Unlike CheckAndPin, this always mutates (it is the explicit rotation path).
func (s *Store) AddKey(toolID, domain, fingerprint string) {
	key := compositeKey(toolID, domain)
	now := nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	tool, ok := s.tools[key]
	if !ok {
		tool = &PinnedTool{ToolID: toolID, Domain: domain}
		s.tools[key] = tool
	}

	for _, pk := range tool.PinnedKeys {
		if pk.Fingerprint == fingerprint {
			return
		}
	}

	tool.PinnedKeys = append(tool.PinnedKeys, PinnedKey{
		Fingerprint: fingerprint,
		FirstSeen:   now,
		LastSeen:    now,
		TrustLevel:  TrustTofu,
	})
}

// GetTool returns the pinned record for tool_id@domain, if any.
func (s *Store) GetTool(toolID, domain string) (*PinnedTool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tool, ok := s.tools[compositeKey(toolID, domain)]
	if !ok {
		return nil, false
	}

	cp := *tool
	cp.PinnedKeys = append([]PinnedKey(nil), tool.PinnedKeys...)

	return &cp, true
}

// Snapshot returns every pinned tool currently held, in no particular order.
func (s *Store) Snapshot() []PinnedTool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PinnedTool, 0, len(s.tools))
	for _, tool := range s.tools {
		out = append(out, *tool)
	}

	return out
}

// ToJSON serializes the store as a pretty-printed JSON array of PinnedTool.
// The composite key is not encoded; it is re-derived by FromJSON.
func (s *Store) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s.Snapshot(), "", "  ")
}

// FromJSON replaces the store's contents with the PinnedTool array decoded
// from data.
func (s *Store) FromJSON(data []byte) error {
	var tools []PinnedTool
	if err := json.Unmarshal(data, &tools); err != nil {
		return fmt.Errorf("failed to decode pin store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = make(map[string]*PinnedTool, len(tools))
	for i := range tools {
		t := tools[i]
		s.tools[compositeKey(t.ToolID, t.Domain)] = &t
	}

	return nil
}
