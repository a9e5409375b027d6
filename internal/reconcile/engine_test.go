package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/filestore"
	"github.com/armature-build/armature/internal/procure"
)

type stubFiles struct {
	uploads int
	fail    error
}

func (s *stubFiles) Upload(ctx context.Context, file filestore.File, scopeType, scopeID string) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	s.uploads++
	return "/files/" + scopeType + "/" + scopeID + "/" + file.Name, nil
}

func seedOrder(t *testing.T, store docstore.Store, recon map[string]any) {
	t.Helper()
	invoice := map[string]any{
		"dateKey":   "2024-01-01_0",
		"invoiceNo": "AS/101",
		"date":      "2024-01-01",
		"amount":    float64(1000),
	}
	if recon != nil {
		invoice["reconciliation"] = recon
	}
	_, err := store.Create(context.Background(), "purchase_orders", "PO-001", map[string]any{
		"vendor":   "acme-steel",
		"invoices": []any{invoice},
	})
	require.NoError(t, err)
}

func proof(name string) *filestore.File {
	return &filestore.File{Name: name, Content: strings.NewReader("bytes")}
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func newEngine(store docstore.Store, files filestore.Store) *Engine {
	return NewEngine(store, files, nil)
}

func TestUpdateToPartial(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	files := &stubFiles{}
	seedOrder(t, store, nil)
	engine := newEngine(store, files)

	line, err := engine.Update(ctx, UpdateInput{
		ParentType:       procure.ParentPurchaseOrder,
		ParentID:         "PO-001",
		DateKey:          "2024-01-01_0",
		Status:           procure.ReconPartial,
		ReconciledDate:   "2024-02-01",
		Proof:            proof("gst.pdf"),
		ReconciledAmount: amount(600),
		Actor:            "accountant-1",
	})
	require.NoError(t, err)
	require.Equal(t, procure.ReconPartial, line.Reconciliation.Status)
	require.Equal(t, "2024-02-01", line.Reconciliation.ReconciledDate)
	require.True(t, decimal.NewFromInt(600).Equal(line.Reconciliation.ReconciledAmount))
	require.NotEmpty(t, line.Reconciliation.ProofAttachmentID)
	require.Equal(t, "accountant-1", line.Reconciliation.ReconciledBy)
	require.Equal(t, 1, files.uploads)
}

func TestUpdatePartialAmountOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)
	engine := newEngine(store, &stubFiles{})

	for _, amt := range []*decimal.Decimal{amount(1001), amount(0), amount(-5), nil} {
		_, err := engine.Update(ctx, UpdateInput{
			ParentType:       procure.ParentPurchaseOrder,
			ParentID:         "PO-001",
			DateKey:          "2024-01-01_0",
			Status:           procure.ReconPartial,
			ReconciledDate:   "2024-02-01",
			Proof:            proof("gst.pdf"),
			ReconciledAmount: amt,
		})
		reason, ok := IsValidation(err)
		require.True(t, ok)
		require.Equal(t, ReasonAmountOutOfRange, reason)
	}

	// Amount equal to the invoice amount is allowed.
	_, err := engine.Update(ctx, UpdateInput{
		ParentType:       procure.ParentPurchaseOrder,
		ParentID:         "PO-001",
		DateKey:          "2024-01-01_0",
		Status:           procure.ReconPartial,
		ReconciledDate:   "2024-02-01",
		Proof:            proof("gst.pdf"),
		ReconciledAmount: amount(1000),
	})
	require.NoError(t, err)
}

func TestUpdateToFullRequiresProof(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)
	engine := newEngine(store, &stubFiles{})

	_, err := engine.Update(ctx, UpdateInput{
		ParentType:     procure.ParentPurchaseOrder,
		ParentID:       "PO-001",
		DateKey:        "2024-01-01_0",
		Status:         procure.ReconFull,
		ReconciledDate: "2024-02-01",
	})
	reason, ok := IsValidation(err)
	require.True(t, ok)
	require.Equal(t, ReasonMissingProof, reason)
}

func TestUpdateUnchangedStatusWaivesProof(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, map[string]any{
		"status": "FULL", "reconciledDate": "2024-02-01", "proofAttachmentId": "proof-1",
	})
	engine := newEngine(store, &stubFiles{})

	line, err := engine.Update(ctx, UpdateInput{
		ParentType:     procure.ParentPurchaseOrder,
		ParentID:       "PO-001",
		DateKey:        "2024-01-01_0",
		Status:         procure.ReconFull,
		ReconciledDate: "2024-03-15",
		Actor:          "accountant-2",
	})
	require.NoError(t, err)
	require.Equal(t, "2024-03-15", line.Reconciliation.ReconciledDate)
	require.Equal(t, "proof-1", line.Reconciliation.ProofAttachmentID)
}

func TestUpdateChangedStatusStillRequiresProof(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, map[string]any{
		"status": "PARTIAL", "reconciledDate": "2024-02-01",
		"proofAttachmentId": "proof-1", "reconciledAmount": float64(400),
	})
	engine := newEngine(store, &stubFiles{})

	_, err := engine.Update(ctx, UpdateInput{
		ParentType:     procure.ParentPurchaseOrder,
		ParentID:       "PO-001",
		DateKey:        "2024-01-01_0",
		Status:         procure.ReconFull,
		ReconciledDate: "2024-03-15",
	})
	reason, ok := IsValidation(err)
	require.True(t, ok)
	require.Equal(t, ReasonMissingProof, reason)
}

func TestUpdateEditAmountKeepsProofAndDate(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, map[string]any{
		"status": "PARTIAL", "reconciledDate": "2024-02-01",
		"proofAttachmentId": "proof-1", "reconciledAmount": float64(400),
	})
	engine := newEngine(store, &stubFiles{})

	line, err := engine.Update(ctx, UpdateInput{
		ParentType:       procure.ParentPurchaseOrder,
		ParentID:         "PO-001",
		DateKey:          "2024-01-01_0",
		Status:           procure.ReconPartial,
		ReconciledAmount: amount(750),
	})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(750).Equal(line.Reconciliation.ReconciledAmount))
	require.Equal(t, "proof-1", line.Reconciliation.ProofAttachmentID)
	require.Equal(t, "2024-02-01", line.Reconciliation.ReconciledDate)
}

func TestUpdateClearingStates(t *testing.T) {
	ctx := context.Background()
	for _, status := range []procure.ReconStatus{procure.ReconNone, procure.ReconNotApplicable} {
		store := docstore.NewMemory()
		seedOrder(t, store, map[string]any{
			"status": "FULL", "reconciledDate": "2024-02-01", "proofAttachmentId": "proof-1",
		})
		engine := newEngine(store, &stubFiles{})

		line, err := engine.Update(ctx, UpdateInput{
			ParentType: procure.ParentPurchaseOrder,
			ParentID:   "PO-001",
			DateKey:    "2024-01-01_0",
			Status:     status,
			Actor:      "accountant-1",
		})
		require.NoError(t, err)
		require.Equal(t, status, line.Reconciliation.Status)
		require.Empty(t, line.Reconciliation.ReconciledDate)
		require.Empty(t, line.Reconciliation.ProofAttachmentID)
		require.True(t, line.Reconciliation.ReconciledAmount.IsZero())
	}
}

func TestUpdateUploadFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)
	boom := errors.New("storage unavailable")
	engine := newEngine(store, &stubFiles{fail: boom})

	_, err := engine.Update(ctx, UpdateInput{
		ParentType:       procure.ParentPurchaseOrder,
		ParentID:         "PO-001",
		DateKey:          "2024-01-01_0",
		Status:           procure.ReconPartial,
		ReconciledDate:   "2024-02-01",
		Proof:            proof("gst.pdf"),
		ReconciledAmount: amount(100),
	})
	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	require.ErrorIs(t, err, boom)

	// No partial mutation.
	doc, err := store.Get(ctx, "purchase_orders", "PO-001")
	require.NoError(t, err)
	line := procure.DecodeOrder(doc).Invoices[0]
	require.Equal(t, procure.ReconNone, line.Reconciliation.Status)
	require.Equal(t, int64(1), doc.Version)
}

func TestUpdateConcurrentEditConflicts(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)

	// Another writer touches the parent between read and write.
	engine := newEngine(&conflictingStore{Store: store}, &stubFiles{})

	_, err := engine.Update(ctx, UpdateInput{
		ParentType:       procure.ParentPurchaseOrder,
		ParentID:         "PO-001",
		DateKey:          "2024-01-01_0",
		Status:           procure.ReconPartial,
		ReconciledDate:   "2024-02-01",
		Proof:            proof("gst.pdf"),
		ReconciledAmount: amount(100),
	})
	require.ErrorIs(t, err, docstore.ErrVersionConflict)
}

// conflictingStore bumps the document version after every Get so the
// conditioned write always loses.
type conflictingStore struct {
	docstore.Store
}

func (c *conflictingStore) Get(ctx context.Context, typ, id string) (docstore.Document, error) {
	doc, err := c.Store.Get(ctx, typ, id)
	if err != nil {
		return doc, err
	}
	_, err = c.Store.Update(ctx, typ, id, docstore.AnyVersion, func(data map[string]any) (map[string]any, error) {
		return data, nil
	})
	return doc, err
}

func TestUpdateUnknownLine(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)
	engine := newEngine(store, &stubFiles{})

	_, err := engine.Update(ctx, UpdateInput{
		ParentType: procure.ParentPurchaseOrder,
		ParentID:   "PO-001",
		DateKey:    "2099-01-01_9",
		Status:     procure.ReconNone,
	})
	require.ErrorIs(t, err, procure.ErrInvoiceLineNotFound)
}

func TestUpdateInvalidInputs(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedOrder(t, store, nil)
	engine := newEngine(store, &stubFiles{})

	_, err := engine.Update(ctx, UpdateInput{ParentType: "invoices", ParentID: "PO-001", Status: procure.ReconNone})
	reason, ok := IsValidation(err)
	require.True(t, ok)
	require.Equal(t, ReasonInvalidParent, reason)

	_, err = engine.Update(ctx, UpdateInput{ParentType: procure.ParentPurchaseOrder, ParentID: "PO-001", Status: "WEIRD"})
	reason, ok = IsValidation(err)
	require.True(t, ok)
	require.Equal(t, ReasonInvalidStatus, reason)
}
