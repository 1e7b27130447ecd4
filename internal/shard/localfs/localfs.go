// Package localfs implements shard.Locator against a local directory of
// shard_<NNNNN>.txt files.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard"
)

// Locator lists shard_*.txt files directly under root.
type Locator struct {
	Root string
}

var _ shard.Locator = (*Locator)(nil)

// New returns a Locator rooted at dir.
func New(dir string) *Locator { return &Locator{Root: dir} }

// List implements shard.Locator.
func (l *Locator) List(ctx context.Context) ([]jobtypes.ShardRef, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root %s: %w", l.Root, err)
	}

	var refs []jobtypes.ShardRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".txt" {
			continue
		}
		idx, err := shard.ParseIndex(name)
		if err != nil {
			continue // not a shard file, ignore
		}
		refs = append(refs, jobtypes.ShardRef{Index: idx, Key: filepath.Join(l.Root, name)})
	}
	shard.SortByIndex(refs)
	return refs, nil
}

// Open implements shard.Locator.
func (l *Locator) Open(ctx context.Context, ref jobtypes.ShardRef) (io.ReadCloser, error) {
	return os.Open(ref.Key)
}
