package invoices

import (
	"context"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// Lookup resolves vendor and project names to display labels. It is
// injected rather than cached at module level so aggregation stays free
// of process-wide state. An empty result means "no label known" and the
// raw name is shown.
type Lookup interface {
	VendorLabel(ctx context.Context, name string) string
	ProjectLabel(ctx context.Context, name string) string
}

// StaticLookup resolves labels from fixed maps. Used in tests and
// wherever the caller already holds the dictionaries.
type StaticLookup struct {
	Vendors  map[string]string
	Projects map[string]string
}

// VendorLabel implements Lookup.
func (s StaticLookup) VendorLabel(_ context.Context, name string) string {
	return s.Vendors[name]
}

// ProjectLabel implements Lookup.
func (s StaticLookup) ProjectLabel(_ context.Context, name string) string {
	return s.Projects[name]
}

// StoreLookup reads labels from the vendor and project collections of
// the document store.
type StoreLookup struct {
	store docstore.Store
}

// NewStoreLookup constructs a document-store-backed lookup.
func NewStoreLookup(store docstore.Store) *StoreLookup {
	return &StoreLookup{store: store}
}

const labelField = "label"

// VendorLabel implements Lookup.
func (s *StoreLookup) VendorLabel(ctx context.Context, name string) string {
	return s.label(ctx, procure.VendorCollection, name)
}

// ProjectLabel implements Lookup.
func (s *StoreLookup) ProjectLabel(ctx context.Context, name string) string {
	return s.label(ctx, procure.ProjectCollection, name)
}

func (s *StoreLookup) label(ctx context.Context, collection, name string) string {
	doc, err := s.store.Get(ctx, collection, name)
	if err != nil {
		return ""
	}
	label, _ := doc.Data[labelField].(string)
	return label
}
