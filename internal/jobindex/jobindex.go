// Package jobindex implements the single-file JobIndex:
// a JSON mapping job_id → IndexEntry under the log root, read-modify-write
// as a whole on every mutation. It performs no locking itself — callers
// (the JobManager) are responsible for serializing access with their own
// mutex.
package jobindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

const fileName = "index.json"

// Index wraps the on-disk file at <logRoot>/index.json.
type Index struct {
	path string
}

// Open returns an Index rooted at logRoot, creating the directory if needed.
func Open(logRoot string) (*Index, error) {
	if err := os.MkdirAll(logRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create log root %s: %w", logRoot, err)
	}
	return &Index{path: filepath.Join(logRoot, fileName)}, nil
}

// Load reads the whole index file. A missing file is an empty index, not
// an error — this is the expected state before the first job is created.
func (idx *Index) Load() (map[string]jobtypes.IndexEntry, error) {
	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return map[string]jobtypes.IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", idx.path, err)
	}
	if len(data) == 0 {
		return map[string]jobtypes.IndexEntry{}, nil
	}

	var entries map[string]jobtypes.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", idx.path, err)
	}
	return entries, nil
}

// Save serializes the whole map and overwrites the file. There is no
// partial update: every mutation rewrites the full mapping.
func (idx *Index) Save(entries map[string]jobtypes.IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	return nil
}
