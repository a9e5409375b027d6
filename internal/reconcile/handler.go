package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/observability"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/filestore"
	"github.com/armature-build/armature/internal/platform/httpx"
	"github.com/armature-build/armature/internal/procure"
	"github.com/armature-build/armature/internal/shared"
)

// maxProofSize caps the multipart memory buffer for proof uploads.
const maxProofSize = 16 << 20

// Handler wires HTTP endpoints for reconciliation updates.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		engine:    engine,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers reconciliation routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/{parentType}/{parentID}/{dateKey}", h.handleUpdate)
}

type reconciliationForm struct {
	Status           string `validate:"required"`
	ReconciledDate   string `validate:"omitempty,datetime=2006-01-02"`
	ReconciledAmount string
}

type reconciliationResponse struct {
	DateKey          string `json:"dateKey"`
	InvoiceNumber    string `json:"invoiceNumber"`
	Status           string `json:"status"`
	ReconciledDate   string `json:"reconciledDate,omitempty"`
	ProofAttachment  string `json:"proofAttachmentId,omitempty"`
	ReconciledAmount string `json:"reconciledAmount,omitempty"`
	ReconciledBy     string `json:"reconciledBy,omitempty"`
}

// handleUpdate accepts a multipart form so the proof file rides the same
// request as the sub-state fields. The proof part is named "proof".
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
		return
	}
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: multipart form required", httpx.ErrValidation))
		return
	}

	form := reconciliationForm{
		Status:           r.PostFormValue("status"),
		ReconciledDate:   r.PostFormValue("reconciledDate"),
		ReconciledAmount: r.PostFormValue("reconciledAmount"),
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	input := UpdateInput{
		ParentType:     procure.ParentType(chi.URLParam(r, "parentType")),
		ParentID:       chi.URLParam(r, "parentID"),
		DateKey:        chi.URLParam(r, "dateKey"),
		Status:         procure.ReconStatus(form.Status),
		ReconciledDate: form.ReconciledDate,
		Actor:          actor,
	}
	if form.ReconciledAmount != "" {
		amount, err := decimal.NewFromString(form.ReconciledAmount)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: reconciledAmount must be a decimal number", httpx.ErrValidation))
			return
		}
		input.ReconciledAmount = &amount
	}

	if file, header, err := r.FormFile("proof"); err == nil {
		defer file.Close()
		input.Proof = &filestore.File{Name: header.Filename, Content: file}
	}

	started := time.Now()
	line, err := h.engine.Update(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.metrics.RecordReconciliation("applied")
	h.logger.Info("reconciliation request served",
		slog.String("parent", input.ParentID),
		slog.String("dateKey", input.DateKey),
		slog.Duration("took", time.Since(started)))

	resp := reconciliationResponse{
		DateKey:         line.DateKey,
		InvoiceNumber:   line.InvoiceNo,
		Status:          string(line.Reconciliation.Status),
		ReconciledDate:  line.Reconciliation.ReconciledDate,
		ProofAttachment: line.Reconciliation.ProofAttachmentID,
		ReconciledBy:    line.Reconciliation.ReconciledBy,
	}
	if !line.Reconciliation.ReconciledAmount.IsZero() {
		resp.ReconciledAmount = line.Reconciliation.ReconciledAmount.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	var uerr *UploadError
	switch {
	case errors.As(err, &verr):
		h.metrics.RecordReconciliation("rejected")
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, verr.Reason))
	case errors.As(err, &uerr):
		h.logger.Error("proof upload failed", slog.String("path", r.URL.Path), slog.Any("error", uerr.Err))
		httpx.RespondError(w, fmt.Errorf("%w: proof upload", httpx.ErrUpstream))
	case errors.Is(err, docstore.ErrVersionConflict):
		h.metrics.RecordReconciliation("conflict")
		httpx.RespondError(w, fmt.Errorf("%w: document changed during update, retry", httpx.ErrConflict))
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, procure.ErrInvoiceLineNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: invoice line", httpx.ErrNotFound))
	default:
		h.logger.Error("reconciliation handler failure", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
