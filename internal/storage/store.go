package storage

import (
	"context"
	"io"
	"time"

	"github.com/snapbatch/backend/internal/models"
)

// Signed URL lifetimes used across the engine.
const (
	DisplayURLTTL  = time.Hour
	DownloadURLTTL = 60 * time.Second
)

// DerivedPrefix is the namespace the processing worker writes variants
// under. Originals must never be uploaded into it.
const DerivedPrefix = "processed/"

// ObjectStore is the remote key-addressed store the engine talks to.
// Head is the engine's only completion signal: the worker offers no
// push notification, so "exists" is how we learn a variant was made.
type ObjectStore interface {
	// Put uploads an object. Re-uploading a key overwrites it.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error

	// Head checks object presence without fetching content.
	// A missing object is (false, nil), not an error.
	Head(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited retrieval URL for the key.
	SignedURL(key string, ttl time.Duration) (string, error)
}

// DerivedKey returns the object key the worker writes a variant under.
func DerivedKey(v models.Variant, filename string) string {
	return DerivedPrefix + string(v) + "/" + filename
}
