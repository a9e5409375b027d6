// Package docstore defines the narrow document-store contract the
// procurement core talks through: typed documents addressed by
// (type, id), filtered listing, optimistic-concurrency updates, and
// in-process change notifications.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrExists indicates a create collided with an existing document.
	ErrExists = errors.New("docstore: document already exists")
	// ErrVersionConflict indicates the expected version no longer matches.
	ErrVersionConflict = errors.New("docstore: version conflict")
)

// AnyVersion disables the expected-version check on Update. The apply
// function still runs atomically and may enforce its own preconditions.
const AnyVersion int64 = -1

// Document is a loosely-typed stored record. Data holds the raw payload;
// callers decode it into domain views and must validate on every read
// since the store enforces no schema.
type Document struct {
	Type       string
	ID         string
	Version    int64
	Data       map[string]any
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Filter narrows List results. Eq entries match top-level fields by
// exact value; a zero Filter matches everything.
type Filter struct {
	Eq map[string]any
}

// Matches reports whether data satisfies the filter.
func (f Filter) Matches(data map[string]any) bool {
	for field, want := range f.Eq {
		if data[field] != want {
			return false
		}
	}
	return true
}

// ApplyFunc mutates a copy of the document payload inside an atomic
// read-modify-write. Returning an error aborts the update with no
// mutation; this is how status preconditions ride inside the patch.
type ApplyFunc func(data map[string]any) (map[string]any, error)

// Change describes a committed mutation delivered to subscribers.
type Change struct {
	Type    string
	ID      string
	Version int64
	Deleted bool
}

// ChangeHandler receives committed changes. Handlers run after the write
// has committed and must not block.
type ChangeHandler func(Change)

// CancelFunc detaches a subscription.
type CancelFunc func()

// Store is the document-store collaborator contract.
type Store interface {
	Get(ctx context.Context, typ, id string) (Document, error)
	List(ctx context.Context, typ string, filter Filter) ([]Document, error)
	Create(ctx context.Context, typ, id string, data map[string]any) (Document, error)
	// Update applies fn atomically. When expected != AnyVersion the write
	// only succeeds if the stored version still equals expected.
	Update(ctx context.Context, typ, id string, expected int64, fn ApplyFunc) (Document, error)
	Delete(ctx context.Context, typ, id string) error
	Subscribe(typ string, fn ChangeHandler) CancelFunc
}
