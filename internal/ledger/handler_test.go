package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// filterSpyStore records the filter the handler passes for payment
// listings, so the test can pin down that matching happens in the store
// rather than over the whole collection.
type filterSpyStore struct {
	docstore.Store
	lastPaymentFilter docstore.Filter
}

func (s *filterSpyStore) List(ctx context.Context, docType string, filter docstore.Filter) ([]docstore.Document, error) {
	if docType == procure.PaymentCollection {
		s.lastPaymentFilter = filter
	}
	return s.Store.List(ctx, docType, filter)
}

func newSummaryServer(t *testing.T) (*httptest.Server, *filterSpyStore) {
	t.Helper()
	ctx := context.Background()
	docs := docstore.NewMemory()

	_, err := docs.Create(ctx, "purchase_orders", "PO-001", map[string]any{
		"vendor": "acme-steel",
		"orderLines": []any{
			map[string]any{"rate": float64(100), "quantity": float64(2), "taxPercent": float64(18)},
		},
	})
	require.NoError(t, err)
	_, err = docs.Create(ctx, procure.PaymentCollection, "PAY-1", map[string]any{
		"documentName": "PO-001", "amount": float64(100), "status": "PAID",
	})
	require.NoError(t, err)
	_, err = docs.Create(ctx, procure.PaymentCollection, "PAY-2", map[string]any{
		"documentName": "PO-999", "amount": float64(9999), "status": "PAID",
	})
	require.NoError(t, err)

	spy := &filterSpyStore{Store: docs}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Route("/orders", NewHandler(logger, spy).MountRoutes)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, spy
}

func TestSummaryListsOnlyOwnPayments(t *testing.T) {
	server, spy := newSummaryServer(t)

	resp, err := http.Get(server.URL + "/orders/purchase_orders/PO-001/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		TotalIncTax   string `json:"totalIncTax"`
		AmountPaid    string `json:"amountPaid"`
		AmountPending string `json:"amountPending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	require.Equal(t, "236", summary.TotalIncTax)
	require.Equal(t, "100", summary.AmountPaid)
	require.Equal(t, "136", summary.AmountPending)

	// The payment listing is narrowed in the store, not in memory.
	require.Equal(t, map[string]any{procure.FieldDocumentName: "PO-001"}, spy.lastPaymentFilter.Eq)
}

func TestSummaryRejectsUnknownParentType(t *testing.T) {
	server, _ := newSummaryServer(t)

	resp, err := http.Get(server.URL + "/orders/invoices/PO-001/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
