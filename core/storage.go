package core

import (
	"context"
	"io"
	"time"
)

// DocumentStorage is any service that can store verification documents in a
// private bucket and hand out expiring read URLs for them.
type DocumentStorage interface {
	// Upload stores the content under the given object key and returns the key.
	Upload(ctx context.Context, key, contentType string, content io.Reader) (string, error)
	// SignedURL returns a pre-signed GET URL for the object, valid for expiry.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, keys ...string) error
}
