package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct {
	typ string
	id  string
}

// Memory is a mutex-guarded in-process Store used by tests and local
// development. Semantics mirror the Postgres implementation: atomic
// updates, version bumps, post-commit change fan-out.
type Memory struct {
	mu   sync.Mutex
	docs map[memKey]Document
	hub  *hub
	now  func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[memKey]Document),
		hub:  newHub(),
		now:  time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, typ, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[memKey{typ, id}]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List implements Store. Results are ordered by document ID for
// deterministic reads.
func (m *Memory) List(ctx context.Context, typ string, filter Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for key, doc := range m.docs {
		if key.typ != typ {
			continue
		}
		if !filter.Matches(doc.Data) {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, typ, id string, data map[string]any) (Document, error) {
	m.mu.Lock()
	key := memKey{typ, id}
	if _, ok := m.docs[key]; ok {
		m.mu.Unlock()
		return Document{}, ErrExists
	}
	now := m.now()
	doc := Document{
		Type:       typ,
		ID:         id,
		Version:    1,
		Data:       cloneMap(data),
		CreatedAt:  now,
		ModifiedAt: now,
	}
	m.docs[key] = doc
	m.mu.Unlock()

	m.hub.publish(Change{Type: typ, ID: id, Version: doc.Version})
	return cloneDocument(doc), nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, typ, id string, expected int64, fn ApplyFunc) (Document, error) {
	m.mu.Lock()
	key := memKey{typ, id}
	doc, ok := m.docs[key]
	if !ok {
		m.mu.Unlock()
		return Document{}, ErrNotFound
	}
	if expected != AnyVersion && doc.Version != expected {
		m.mu.Unlock()
		return Document{}, ErrVersionConflict
	}
	next, err := fn(cloneMap(doc.Data))
	if err != nil {
		m.mu.Unlock()
		return Document{}, err
	}
	doc.Data = cloneMap(next)
	doc.Version++
	doc.ModifiedAt = m.now()
	m.docs[key] = doc
	m.mu.Unlock()

	m.hub.publish(Change{Type: typ, ID: id, Version: doc.Version})
	return cloneDocument(doc), nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, typ, id string) error {
	m.mu.Lock()
	key := memKey{typ, id}
	doc, ok := m.docs[key]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.docs, key)
	m.mu.Unlock()

	m.hub.publish(Change{Type: typ, ID: id, Version: doc.Version, Deleted: true})
	return nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(typ string, fn ChangeHandler) CancelFunc {
	return m.hub.subscribe(typ, fn)
}

func cloneDocument(doc Document) Document {
	doc.Data = cloneMap(doc.Data)
	return doc
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
