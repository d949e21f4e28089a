// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API credentials from a directory of plain-text
// files. Each file is one secret: the filename is the key name and the
// trimmed file contents are the value. Secrets never pass through flags or
// config files, which end up in shell history and commits.
//
// Key files consumed by the enrichment tiers: semantic-scholar-api-key,
// ncbi-api-key, crossref-mailto.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Key names recognized by Apply.
const (
	// KeySemanticScholar raises the Semantic Scholar Graph API quota.
	KeySemanticScholar = "semantic-scholar-api-key"

	// KeyNCBI raises the E-utilities quota from 3 to 10 requests per second.
	KeyNCBI = "ncbi-api-key"

	// KeyCrossRefMailto is the contact address for CrossRef's polite pool.
	KeyCrossRefMailto = "crossref-mailto"
)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory or missing files are not errors; Load
// returns an empty map. Unreadable files produce a warning on stderr but
// do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies recognized secrets into the enrichment configuration.
// Values already set, for example via environment variables, win over the
// secrets directory.
func Apply(secrets map[string]string, cfg *types.EnrichConfig) {
	if cfg.SemanticScholarAPIKey == "" {
		cfg.SemanticScholarAPIKey = secrets[KeySemanticScholar]
	}
	if cfg.NCBIAPIKey == "" {
		cfg.NCBIAPIKey = secrets[KeyNCBI]
	}
	if cfg.CrossRefMailto == "" {
		cfg.CrossRefMailto = secrets[KeyCrossRefMailto]
	}
}
