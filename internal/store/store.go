// Package store persists the per-source dataset of processed items as a JSON
// array and rewrites it atomically on every commit.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
)

// Dataset is the persisted state of one source.
type Dataset struct {
	Source string
	// Elements are the persisted items, newest first, kept verbatim.
	Elements []json.RawMessage
	// Known holds the identity values found in Elements.
	Known keyset.Set
}

// Len returns the number of persisted items.
func (d *Dataset) Len() int {
	return len(d.Elements)
}

// Store reads and writes dataset files under a directory.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the dataset file of a source.
func (s *Store) Path(source string) string {
	return filepath.Join(s.dir, source+".json")
}

// Load reads the dataset of source and projects its identity values for
// keyField. A missing file is an empty dataset.
func (s *Store) Load(source, keyField string) (*Dataset, error) {
	ds := &Dataset{Source: source, Known: keyset.Set{}}

	data, err := os.ReadFile(s.Path(source))
	if errors.Is(err, fs.ErrNotExist) {
		return ds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %s: %w", source, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ds, nil
	}

	known, err := keyset.Project(data, keyField)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", source, err)
	}
	if err := json.Unmarshal(data, &ds.Elements); err != nil {
		return nil, fmt.Errorf("store: %s is not a JSON array: %w", source, err)
	}
	ds.Known = known
	return ds, nil
}

// Commit writes newItems followed by the persisted elements of ds as a single
// atomic rewrite of the dataset file. On error the previous file is left
// untouched and ds is unchanged. A cancelled ctx aborts before writing.
func (s *Store) Commit(ctx context.Context, ds *Dataset, newItems []item.Item, keyField string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store: commit %s aborted: %w", ds.Source, err)
	}

	merged := make([]json.RawMessage, 0, len(newItems)+len(ds.Elements))
	for _, it := range newItems {
		raw, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("store: failed to encode %q: %w", it.Title, err)
		}
		merged = append(merged, raw)
	}
	merged = append(merged, ds.Elements...)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to encode %s: %w", ds.Source, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: failed to create %s: %w", s.dir, err)
	}
	if err := writeAtomic(s.Path(ds.Source), data); err != nil {
		return fmt.Errorf("store: failed to write %s: %w", ds.Source, err)
	}

	ds.Elements = merged
	for v := range keyset.FromItems(newItems, keyField) {
		ds.Known.Add(v)
	}
	return nil
}

// rename is swapped in tests to simulate a failing filesystem.
var rename = os.Rename

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// best effort; not supported everywhere
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
