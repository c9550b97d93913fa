package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeCheckpointFile atomically writes payload as pretty-printed, key-sorted
// JSON to path: encoding/json already sorts map keys and struct fields
// keep declaration order, so callers pass ordered structs rather than maps
// where field order matters. The write lands in a ".tmp" sibling file first,
// then renames into place, so a reader never observes a partial write.
func writeCheckpointFile(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

func readCheckpointFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
