package templates

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrIndexUnavailable = errors.New("template index not found; run the indexer first")

// Item is one indexed template bundle: derived metadata plus the content
// fingerprint, without the workflow document itself.
type Item struct {
	ID          string         `json:"id"`
	Path        string         `json:"path"`
	Name        string         `json:"name"`
	Intents     []string       `json:"intents"`
	Tags        []string       `json:"tags"`
	Inputs      Inputs         `json:"inputs"`
	Outputs     map[string]any `json:"outputs"`
	Secrets     []string       `json:"secrets"`
	Compat      Compat         `json:"compat"`
	Constraints Constraints    `json:"constraints"`
	Hash        string         `json:"hash"`
}

// Index is the derived, rebuildable catalog of template bundles. It is
// regenerated in full by the indexer and never mutated in place.
type Index struct {
	Count int    `json:"count"`
	Items []Item `json:"items"`
}

// LoadIndex reads the index document at path. Every call reads fresh from
// disk; the loaded snapshot is never cached across requests.
func LoadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Index{}, ErrIndexUnavailable
		}
		return Index{}, fmt.Errorf("read index %s: %w", path, err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("decode index %s: %w", path, err)
	}
	return idx, nil
}

// Fingerprint computes the SHA-256 digest of the canonical serialization of
// a workflow document. Object keys are emitted sorted, so documents that
// differ only in key order or whitespace share a fingerprint.
func Fingerprint(doc map[string]any) (string, error) {
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize workflow document: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
