package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// publisherSeedDoc mirrors the shape of crypto-stream's watchlist YAML: a
// single top-level "publishers" key holding a list of authval/name entries,
// kept intentionally simple since this file is hand edited by operators.
type publisherSeedDoc struct {
	Publishers []publisherSeedEntry `yaml:"publishers"`
}

type publisherSeedEntry struct {
	AuthVal string `yaml:"authval"`
	Name    string `yaml:"name"`
}

// LoadPublisherSeed reads a YAML file of publisher tokens and idempotently
// upserts each into the auth store. A missing path is not an error: seeding
// is optional (SPEC_FULL.md §4.C).
func LoadPublisherSeed(ctx context.Context, a *AuthStore, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read seed file: %v", ErrInvalidInput, err)
	}

	var doc publisherSeedDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("%w: parse seed file: %v", ErrInvalidInput, err)
	}

	count := 0
	for _, entry := range doc.Publishers {
		if entry.AuthVal == "" {
			continue
		}
		if err := a.Upsert(ctx, entry.AuthVal, entry.Name); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
