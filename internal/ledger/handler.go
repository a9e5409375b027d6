package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/httpx"
	"github.com/armature-build/armature/internal/procure"
)

// Handler wires HTTP endpoints for order ledger summaries.
type Handler struct {
	logger *slog.Logger
	docs   docstore.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, docs docstore.Store) *Handler {
	return &Handler{logger: logger, docs: docs}
}

// MountRoutes registers ledger routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{parentType}/{parentID}/summary", h.handleSummary)
}

type summaryResponse struct {
	TotalExTax           string `json:"totalExTax"`
	TotalIncTax          string `json:"totalIncTax"`
	TotalIncTaxDisplay   string `json:"totalIncTaxDisplay"`
	DeliveredValue       string `json:"deliveredValue,omitempty"`
	AmountPaid           string `json:"amountPaid"`
	AmountPaidDisplay    string `json:"amountPaidDisplay"`
	AmountPending        string `json:"amountPending"`
	AmountPendingDisplay string `json:"amountPendingDisplay"`
	RoundOff             string `json:"roundOff"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	parentType := procure.ParentType(chi.URLParam(r, "parentType"))
	if !parentType.Valid() {
		httpx.RespondError(w, fmt.Errorf("%w: unknown parent type %q", httpx.ErrValidation, parentType))
		return
	}

	ctx := r.Context()
	doc, err := h.docs.Get(ctx, string(parentType), chi.URLParam(r, "parentID"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: order", httpx.ErrNotFound))
			return
		}
		h.logger.Error("ledger summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	order := procure.DecodeOrder(doc)

	paymentDocs, err := h.docs.List(ctx, procure.PaymentCollection, docstore.Filter{
		Eq: map[string]any{procure.FieldDocumentName: order.ID},
	})
	if err != nil {
		h.logger.Error("ledger payments listing failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payments := make([]procure.Payment, 0, len(paymentDocs))
	for _, pd := range paymentDocs {
		payments = append(payments, procure.DecodePayment(pd))
	}

	summary := Summarize(order, payments)
	resp := summaryResponse{
		TotalExTax:           summary.TotalExTax.String(),
		TotalIncTax:          summary.TotalIncTax.String(),
		TotalIncTaxDisplay:   money.FormatINR(summary.TotalIncTax),
		AmountPaid:           summary.AmountPaid.String(),
		AmountPaidDisplay:    money.FormatINR(summary.AmountPaid),
		AmountPending:        summary.AmountPending.String(),
		AmountPendingDisplay: money.FormatINR(summary.AmountPending),
		RoundOff:             summary.RoundOff.String(),
	}
	if summary.HasDelivery {
		resp.DeliveredValue = summary.DeliveredValue.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}
