// Package s3shard implements shard.Locator against an S3-compatible bucket
// using the AWS SDK for Go v2.
package s3shard

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard"
)

// Locator lists/reads shard_<NNNNN>.txt objects under a bucket prefix.
type Locator struct {
	Bucket   string
	Prefix   string // e.g. "shards/"
	Endpoint string // empty for real AWS S3; set for MinIO-style endpoints

	client *s3.Client
}

var _ shard.Locator = (*Locator)(nil)

// New builds a Locator. The AWS config is resolved from the standard
// credential chain (env vars, shared config, IAM role); Endpoint overrides
// the resolved endpoint for S3-compatible object stores.
func New(ctx context.Context, bucket, prefix, endpoint string) (*Locator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		}
	})

	return &Locator{Bucket: bucket, Prefix: prefix, Endpoint: endpoint, client: client}, nil
}

// List implements shard.Locator.
func (l *Locator) List(ctx context.Context) ([]jobtypes.ShardRef, error) {
	var refs []jobtypes.ShardRef

	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: &l.Bucket,
		Prefix: &l.Prefix,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list shards in s3://%s/%s: %w", l.Bucket, l.Prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".txt") {
				continue
			}
			idx, err := shard.ParseIndex(path.Base(*obj.Key))
			if err != nil {
				continue
			}
			refs = append(refs, jobtypes.ShardRef{Index: idx, Key: *obj.Key})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	return refs, nil
}

// Open implements shard.Locator, streaming the object body directly rather
// than staging it to a local path first.
func (l *Locator) Open(ctx context.Context, ref jobtypes.ShardRef) (io.ReadCloser, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &l.Bucket,
		Key:    &ref.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("get shard s3://%s/%s: %w", l.Bucket, ref.Key, err)
	}
	return out.Body, nil
}
