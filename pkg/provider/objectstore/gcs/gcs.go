// Package gcs provides a Google Cloud Storage-backed object store. It
// implements the objectstore.Store interface.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore"
)

// Option is a functional option for configuring the GCS Store.
type Option func(*Store)

// WithExpectedRegion sets the region the service expects its bucket to live
// in. ResolveBucket warns when the bucket reports a different region.
func WithExpectedRegion(region string) Option {
	return func(s *Store) { s.expectedRegion = strings.ToLower(region) }
}

// WithCredentialsFile points the client at a service-account key file
// instead of application default credentials.
func WithCredentialsFile(path string) Option {
	return func(s *Store) {
		s.clientOpts = append(s.clientOpts, option.WithCredentialsFile(path))
	}
}

// Store implements objectstore.Store backed by Google Cloud Storage.
type Store struct {
	client         *storage.Client
	projectID      string
	expectedRegion string
	clientOpts     []option.ClientOption
}

// Compile-time assertion that Store satisfies the objectstore.Store interface.
var _ objectstore.Store = (*Store)(nil)

// New creates a GCS Store for the given project. projectID must be non-empty;
// credentials are resolved via application default credentials unless
// overridden with [WithCredentialsFile].
func New(ctx context.Context, projectID string, opts ...Option) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("gcs: projectID must not be empty")
	}
	s := &Store{projectID: projectID}
	for _, o := range opts {
		o(s)
	}

	client, err := storage.NewClient(ctx, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	s.client = client
	return s, nil
}

// ResolveBucket normalizes name and fetches the bucket's attributes. A
// missing bucket wraps [objectstore.ErrBucketNotFound]. A bucket in a region
// other than the expected one is flagged and logged but not rejected.
func (s *Store) ResolveBucket(ctx context.Context, name string) (objectstore.Bucket, error) {
	normalized := objectstore.NormalizeBucketName(name)
	if normalized == "" {
		return objectstore.Bucket{}, fmt.Errorf("gcs: %w: empty bucket name", objectstore.ErrBucketNotFound)
	}

	attrs, err := s.client.Bucket(normalized).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return objectstore.Bucket{}, fmt.Errorf("gcs: %w: %q", objectstore.ErrBucketNotFound, normalized)
	}
	if err != nil {
		return objectstore.Bucket{}, fmt.Errorf("gcs: bucket attrs for %q: %w", normalized, err)
	}

	b := objectstore.Bucket{
		Name:   normalized,
		Region: strings.ToLower(attrs.Location),
	}
	if s.expectedRegion != "" && b.Region != s.expectedRegion {
		b.RegionMismatch = true
		slog.Warn("bucket is in an unexpected region",
			"bucket", b.Name,
			"region", b.Region,
			"expected", s.expectedRegion,
		)
	}
	return b, nil
}

// Upload streams the file at localPath to remotePath under bucket and
// returns the gs:// locator. Transport and permission failures wrap
// [objectstore.ErrUpload].
func (s *Store) Upload(ctx context.Context, bucket objectstore.Bucket, localPath, remotePath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("gcs: open %q: %w", localPath, err)
	}
	defer f.Close()

	w := s.client.Bucket(bucket.Name).Object(remotePath).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("gcs: %w: write %q: %v", objectstore.ErrUpload, remotePath, err)
	}
	// Close commits the object; most permission errors surface here.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: %w: commit %q: %v", objectstore.ErrUpload, remotePath, err)
	}

	return objectstore.Locator(bucket.Name, remotePath), nil
}

// Close releases the underlying GCS client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
