// Package shard abstracts dataset shard provisioning: any storage backend
// honoring List/Open is acceptable. The local-filesystem implementation
// lives in localfs/; an S3-compatible one lives in s3shard/.
package shard

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

// Locator lists and opens shards for a dataset root.
type Locator interface {
	// List returns all shards, ordered by parsed shard index ascending.
	List(ctx context.Context) ([]jobtypes.ShardRef, error)
	// Open returns a line-readable stream for one shard.
	Open(ctx context.Context, ref jobtypes.ShardRef) (io.ReadCloser, error)
}

var shardPattern = regexp.MustCompile(`^shard_(\d+)\.`)

// ParseIndex extracts the shard index from a filename matching
// "shard_<NNNNN>.*".
func ParseIndex(name string) (int, error) {
	m := shardPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", jobtypes.ErrBadShardName, name)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", jobtypes.ErrBadShardName, name)
	}
	return n, nil
}

// SortByIndex sorts refs ascending by Index, as ShardAssignment requires.
func SortByIndex(refs []jobtypes.ShardRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
}
