package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type Object struct {
	Name string
	Size int64
}

type ObjectIterator func(yield func(obj Object, err error) bool)

// ObjectStore holds model artifacts, the knowledge table, batch inputs and
// rendered explanations.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	IterObjects(ctx context.Context, bucket, prefix string) ObjectIterator

	DeleteObjects(ctx context.Context, bucket, prefix string) error

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}

const S3Scheme = "s3://"

// Location is a bucket and key prefix inside an object store.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return S3Scheme + l.Bucket + "/" + l.Key
}

// IsRemote reports whether path refers to the object store rather than the
// local filesystem.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, S3Scheme)
}

// ParseLocation splits s3://bucket/key into its parts.
func ParseLocation(uri string) (Location, error) {
	if !IsRemote(uri) {
		return Location{}, fmt.Errorf("expected %sbucket/key, found %q", S3Scheme, uri)
	}
	rest := strings.TrimPrefix(uri, S3Scheme)
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("missing bucket in %q", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}
