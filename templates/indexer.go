package templates

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BuildIndex walks the store root and produces the index document. A
// directory qualifies as a bundle iff it directly contains both the
// metadata file and the workflow document. Any malformed bundle aborts the
// whole build so a partial index is never produced.
func BuildIndex(storeRoot string) (Index, error) {
	store := NewStore(storeRoot)
	items := make([]Item, 0)

	walkErr := filepath.WalkDir(storeRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() || !isBundleDir(path) {
			return nil
		}

		bundle, err := store.LoadBundle(path)
		if err != nil {
			return err
		}

		hash, err := Fingerprint(bundle.Workflow)
		if err != nil {
			return err
		}

		items = append(items, Item{
			ID:          bundle.Meta.ID,
			Path:        bundle.Path,
			Name:        bundle.Meta.Name,
			Intents:     bundle.Meta.Intents,
			Tags:        bundle.Meta.Tags,
			Inputs:      bundle.Meta.Inputs,
			Outputs:     bundle.Meta.Outputs,
			Secrets:     bundle.Meta.Secrets,
			Compat:      bundle.Meta.Compat,
			Constraints: bundle.Meta.Constraints,
			Hash:        hash,
		})
		return nil
	})
	if walkErr != nil {
		return Index{}, fmt.Errorf("index templates in %s: %w", storeRoot, walkErr)
	}

	return Index{Count: len(items), Items: items}, nil
}

// WriteIndex overwrites the index file at path, creating parent directories
// as needed.
func WriteIndex(idx Index, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	return nil
}

func isBundleDir(dir string) bool {
	for _, name := range []string{MetaFileName, WorkflowFileName} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}
