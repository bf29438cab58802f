// Package objectstore defines the Store interface for remote object storage
// backends.
//
// A Store wraps a cloud object-storage service (e.g., Google Cloud Storage)
// and presents the two operations the upload pipeline needs: resolving a
// bucket by name and streaming a local file into it. Implementations must be
// safe for concurrent use.
package objectstore

import (
	"context"
	"errors"
	"strings"
)

// Scheme is the locator scheme for objects in remote storage.
const Scheme = "gs"

// ErrBucketNotFound is returned (wrapped) by ResolveBucket when the named
// bucket does not exist or is not visible to the configured credentials.
var ErrBucketNotFound = errors.New("objectstore: bucket not found")

// ErrUpload is returned (wrapped) by Upload on transport or permission
// failure. Callers must not proceed to analysis when Upload fails.
var ErrUpload = errors.New("objectstore: upload failed")

// Bucket is a resolved bucket handle.
type Bucket struct {
	// Name is the normalized bucket name (no scheme, no trailing slash).
	Name string

	// Region is the bucket's reported geographic region, lower-cased.
	Region string

	// RegionMismatch is set when Region differs from the expected region
	// the Store was configured with. Advisory only; uploads still proceed.
	RegionMismatch bool
}

// Store is the abstraction over any remote object storage backend.
type Store interface {
	// ResolveBucket normalizes name (see [NormalizeBucketName]) and looks the
	// bucket up. The returned error wraps [ErrBucketNotFound] when the bucket
	// does not exist. A region mismatch is recorded on the returned Bucket and
	// logged as a warning but is never an error.
	ResolveBucket(ctx context.Context, name string) (Bucket, error)

	// Upload copies the local file's bytes to remotePath under bucket, setting
	// the object's content type, and returns the canonical locator. The
	// returned error wraps [ErrUpload] on transport or permission failure.
	Upload(ctx context.Context, bucket Bucket, localPath, remotePath, contentType string) (string, error)

	// Close releases the underlying client. Safe to call multiple times.
	Close() error
}

// NormalizeBucketName strips a "gs://" scheme prefix and any trailing
// slashes from a user-supplied bucket identifier. Interior path segments are
// not touched; "gs://my-bucket/" and "my-bucket" both normalize to
// "my-bucket".
func NormalizeBucketName(name string) string {
	name = strings.TrimPrefix(name, Scheme+"://")
	return strings.TrimRight(name, "/")
}

// Locator builds the canonical "gs://bucket/remotePath" locator string for
// an uploaded object.
func Locator(bucket, remotePath string) string {
	return Scheme + "://" + bucket + "/" + strings.TrimLeft(remotePath, "/")
}
