package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmpty is returned when a dataset file holds no records.
var ErrEmpty = errors.New("dataset: no records")

// ReadJSONArray decodes a JSON array of records from path. An empty array is
// an error because every consumer treats a zero-entry dataset as corrupt.
func ReadJSONArray[T any](path string) ([]T, error) {
	if path == "" {
		return nil, errors.New("dataset: path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("dataset: decode %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: %s: %w", path, ErrEmpty)
	}
	return records, nil
}

// WriteJSONArrayAtomic writes records to path via a temporary file in the same
// directory followed by a rename, so readers see either the old or the new
// file and never a partial one.
func WriteJSONArrayAtomic[T any](path string, records []T) error {
	if path == "" {
		return errors.New("dataset: path is required")
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: encode: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("dataset: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("dataset: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("dataset: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("dataset: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("dataset: replace %s: %w", path, err)
	}
	return nil
}
