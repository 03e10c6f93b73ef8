package port

import (
	"context"
	"io"
)

type ObjectStorage interface {
	// DetectContentType reports the media type the store serves an object
	// starting with head as.
	DetectContentType(head []byte) string
	// Put stores the object and returns the URL clients can fetch it from.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}
