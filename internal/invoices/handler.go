package invoices

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/httpx"
	"github.com/armature-build/armature/internal/procure"
)

// Handler wires HTTP endpoints for the invoice registry.
type Handler struct {
	logger *slog.Logger
	docs   docstore.Store
	lookup Lookup
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, docs docstore.Store, lookup Lookup) *Handler {
	return &Handler{logger: logger, docs: docs, lookup: lookup}
}

// MountRoutes registers registry routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/registry", h.handleRegistry)
	r.Get("/registry/summary", h.handleSummary)
}

type entryResponse struct {
	Key             string `json:"key"`
	ParentType      string `json:"parentType"`
	ParentID        string `json:"parentId"`
	DateKey         string `json:"dateKey"`
	InvoiceNo       string `json:"invoiceNo"`
	Date            string `json:"date,omitempty"`
	Amount          string `json:"amount"`
	AttachmentID    string `json:"attachmentId,omitempty"`
	Vendor          string `json:"vendor"`
	VendorLabel     string `json:"vendorLabel"`
	Project         string `json:"project,omitempty"`
	ProjectLabel    string `json:"projectLabel,omitempty"`
	ReconStatus     string `json:"reconciliationStatus"`
	ReconciledDate  string `json:"reconciledDate,omitempty"`
	ProofAttachment string `json:"proofAttachmentId,omitempty"`
}

type registryResponse struct {
	Entries               []entryResponse `json:"entries"`
	TotalInvoices         int             `json:"totalInvoices"`
	TotalAmount           string          `json:"totalAmount"`
	TotalAmountDisplay    string          `json:"totalAmountDisplay"`
	TotalReconciled       int             `json:"totalReconciled"`
	PendingReconciliation int             `json:"pendingReconciliation"`
}

func (h *Handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	report, err := h.report(r)
	if err != nil {
		h.logger.Error("registry listing failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	entries := report.Entries
	if vendor := r.URL.Query().Get("vendor"); vendor != "" {
		entries = FilterByVendor(entries, vendor)
	}
	out := registryResponse{
		Entries:               make([]entryResponse, 0, len(entries)),
		TotalInvoices:         report.TotalInvoices,
		TotalAmount:           report.TotalAmount.String(),
		TotalAmountDisplay:    money.FormatINR(report.TotalAmount),
		TotalReconciled:       report.TotalReconciled,
		PendingReconciliation: report.PendingReconciliation,
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryResponse{
			Key:             e.Key,
			ParentType:      string(e.ParentType),
			ParentID:        e.ParentID,
			DateKey:         e.DateKey,
			InvoiceNo:       e.InvoiceNo,
			Date:            e.Date,
			Amount:          e.Amount.String(),
			AttachmentID:    e.AttachmentID,
			Vendor:          e.Vendor,
			VendorLabel:     e.VendorLabel,
			Project:         e.Project,
			ProjectLabel:    e.ProjectLabel,
			ReconStatus:     string(e.Reconciliation.Status),
			ReconciledDate:  e.Reconciliation.ReconciledDate,
			ProofAttachment: e.Reconciliation.ProofAttachmentID,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type summaryResponse struct {
	TotalInvoices         int       `json:"totalInvoices"`
	TotalAmount           string    `json:"totalAmount"`
	TotalAmountDisplay    string    `json:"totalAmountDisplay"`
	TotalReconciled       int       `json:"totalReconciled"`
	PendingReconciliation int       `json:"pendingReconciliation"`
	ComputedAt            time.Time `json:"computedAt"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.report(r)
	if err != nil {
		h.logger.Error("registry summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaryResponse{
		TotalInvoices:         report.TotalInvoices,
		TotalAmount:           report.TotalAmount.String(),
		TotalAmountDisplay:    money.FormatINR(report.TotalAmount),
		TotalReconciled:       report.TotalReconciled,
		PendingReconciliation: report.PendingReconciliation,
		ComputedAt:            time.Now().UTC(),
	})
}

func (h *Handler) report(r *http.Request) (Report, error) {
	ctx := r.Context()
	var orders []procure.Order
	for _, typ := range []procure.ParentType{procure.ParentPurchaseOrder, procure.ParentServiceRequest} {
		docs, err := h.docs.List(ctx, string(typ), docstore.Filter{})
		if err != nil {
			return Report{}, err
		}
		for _, doc := range docs {
			orders = append(orders, procure.DecodeOrder(doc))
		}
	}
	return GenerateEntries(ctx, orders, h.lookup), nil
}
