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
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SigFileName is the signature file every skill canonicalizer and signer
// excludes from its own manifest.
const SigFileName = ".schemapin.sig"

// Skill walks dir recursively and returns the root hash bytes and the
// path -> "sha256:<hex>" manifest. Directory entries are visited in
// OS-byte filename order at each level; symlinks are skipped entirely;
// .schemapin.sig is skipped wherever it occurs. An empty manifest is an
// error.
func Skill(dir string) (rootHash []byte, manifest map[string]string, err error) {
	manifest = make(map[string]string)

	if err := walkSorted(dir, dir, manifest); err != nil {
		return nil, nil, err
	}

	if len(manifest) == 0 {
		return nil, nil, fmt.Errorf("skill directory contains no files")
	}

	keys := make([]string, 0, len(manifest))
	for k := range manifest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var joined strings.Builder
	for _, k := range keys {
		joined.WriteString(strings.TrimPrefix(manifest[k], "sha256:"))
	}

	sum := sha256.Sum256([]byte(joined.String()))

	return sum[:], manifest, nil
}

func walkSorted(base, dir string, manifest map[string]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if info.IsDir() {
			if err := walkSorted(base, path, manifest); err != nil {
				return err
			}
			continue
		}

		if entry.Name() == SigFileName {
			continue
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		relSlash := filepath.ToSlash(rel)

		fileBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		h := sha256.New()
		h.Write([]byte(relSlash))
		h.Write(fileBytes)

		manifest[relSlash] = "sha256:" + hex.EncodeToString(h.Sum(nil))
	}

	return nil
}

// SortedManifestKeys returns the manifest's paths in ascending order, the
// order file_manifest is serialized in.
func SortedManifestKeys(manifest map[string]string) []string {
	keys := make([]string, 0, len(manifest))
	for k := range manifest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
