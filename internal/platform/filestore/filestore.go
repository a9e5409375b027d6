// Package filestore defines the attachment-upload collaborator contract
// and a local-disk implementation.
package filestore

import (
	"context"
	"errors"
	"io"
)

// ErrEmptyFile indicates an upload with no content.
var ErrEmptyFile = errors.New("filestore: empty file")

// File is an attachment to be uploaded.
type File struct {
	Name    string
	Content io.Reader
}

// Store uploads binary attachments and returns a retrievable URL. Uploads
// are not retried internally; retry policy belongs to the caller, so
// implementations must be safe to retry.
type Store interface {
	Upload(ctx context.Context, file File, scopeType, scopeID string) (string, error)
}
