package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Archiver stores executions that reached a terminal status
	Archiver interface {
		Archive(ctx context.Context, exec *api.WorkflowExecution) error
	}

	// BucketWriter is the part of a blob bucket the archive writes through
	BucketWriter interface {
		WriteAll(context.Context, string, []byte, *blob.WriterOptions) error
	}

	// BlobArchive writes executions as JSON objects into a blob bucket
	BlobArchive struct {
		bucket BucketWriter
		prefix string
	}
)

const archivePrefix = "executions"

var (
	ErrBucketRequired    = errors.New("bucket is required")
	ErrExecutionRequired = errors.New("execution is required")
)

// NewBlobArchive creates an archive over bucket. Objects are keyed
// <prefix>/<workflow>/<execution>.json
func NewBlobArchive(bucket BucketWriter, prefix string) (*BlobArchive, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	if prefix == "" {
		prefix = archivePrefix
	}
	return &BlobArchive{
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

// OpenArchive opens the bucket at url (file:// and mem:// are supported)
// and returns an archive over it with a close function for the bucket
func OpenArchive(
	ctx context.Context, url string,
) (*BlobArchive, func() error, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", url, err)
	}
	a, err := NewBlobArchive(bucket, archivePrefix)
	if err != nil {
		_ = bucket.Close()
		return nil, nil, err
	}
	return a, bucket.Close, nil
}

// Archive writes the execution under its workflow and execution IDs
func (a *BlobArchive) Archive(
	ctx context.Context, exec *api.WorkflowExecution,
) error {
	if exec == nil {
		return ErrExecutionRequired
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, ArchiveKey(a.prefix, exec), data, nil)
}

// ArchiveKey returns the object key an execution is archived under
func ArchiveKey(prefix string, exec *api.WorkflowExecution) string {
	return fmt.Sprintf("%s/%s/%s.json", prefix, exec.WorkflowID, exec.ID)
}
