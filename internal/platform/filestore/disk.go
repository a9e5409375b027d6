package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores attachments under a base directory, content-addressed so a
// retried upload of the same bytes lands on the same path.
type Disk struct {
	baseDir string
	baseURL string
}

// NewDisk constructs a disk-backed store. baseURL is the public path
// prefix returned in upload URLs, e.g. "/files".
func NewDisk(baseDir, baseURL string) *Disk {
	return &Disk{baseDir: baseDir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload implements Store.
func (d *Disk) Upload(ctx context.Context, file File, scopeType, scopeID string) (string, error) {
	if file.Content == nil {
		return "", ErrEmptyFile
	}
	content, err := io.ReadAll(file.Content)
	if err != nil {
		return "", fmt.Errorf("filestore: read upload: %w", err)
	}
	if len(content) == 0 {
		return "", ErrEmptyFile
	}

	sum := sha256.Sum256(content)
	name := hex.EncodeToString(sum[:8]) + "_" + sanitize(file.Name)
	dir := filepath.Join(d.baseDir, sanitize(scopeType), sanitize(scopeID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filestore: mkdir: %w", err)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		// Same content already stored; retry-safe no-op.
		return d.url(scopeType, scopeID, name), nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("filestore: write: %w", err)
	}
	return d.url(scopeType, scopeID, name), nil
}

func (d *Disk) url(scopeType, scopeID, name string) string {
	return d.baseURL + "/" + sanitize(scopeType) + "/" + sanitize(scopeID) + "/" + name
}

func sanitize(s string) string {
	s = filepath.Base(strings.TrimSpace(s))
	if s == "" || s == "." || s == string(filepath.Separator) {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
