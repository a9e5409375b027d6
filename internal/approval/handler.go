package approval

import (
	"context"
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
	"github.com/armature-build/armature/internal/platform/httpx"
	"github.com/armature-build/armature/internal/procure"
	"github.com/armature-build/armature/internal/shared"
)

// Handler wires HTTP endpoints for the approval task queue.
type Handler struct {
	logger    *slog.Logger
	queue     *Queue
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, queue *Queue, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		queue:     queue,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers approval routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/tasks", h.handleCreate)
	r.Get("/tasks/pending", h.handleListPending)
	r.Get("/tasks/history", h.handleListHistory)
	r.Get("/tasks/{taskID}", h.handleGet)
	r.Post("/tasks/{taskID}/approve", h.decide(StatusApproved))
	r.Post("/tasks/{taskID}/reject", h.decide(StatusRejected))
}

type createTaskRequest struct {
	ParentType     string `json:"parentType" validate:"required"`
	ParentID       string `json:"parentId" validate:"required"`
	InvoiceDateKey string `json:"invoiceDateKey" validate:"required"`
	InvoiceNumber  string `json:"invoiceNumber"`
	InvoiceAmount  string `json:"invoiceAmount" validate:"required"`
	AttachmentID   string `json:"attachmentId"`
	Owner          string `json:"owner"`
}

type taskResponse struct {
	ID             string    `json:"id"`
	ParentType     string    `json:"parentType"`
	ParentID       string    `json:"parentId"`
	InvoiceDateKey string    `json:"invoiceDateKey"`
	InvoiceNumber  string    `json:"invoiceNumber"`
	InvoiceAmount  string    `json:"invoiceAmount"`
	AttachmentID   string    `json:"attachmentId,omitempty"`
	Status         string    `json:"status"`
	Assignee       string    `json:"assignee,omitempty"`
	Owner          string    `json:"owner,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
}

func toTaskResponse(task Task) taskResponse {
	return taskResponse{
		ID:             task.ID,
		ParentType:     string(task.ParentType),
		ParentID:       task.ParentID,
		InvoiceDateKey: task.InvoiceDateKey,
		InvoiceNumber:  task.InvoiceNumber,
		InvoiceAmount:  task.InvoiceAmount.String(),
		AttachmentID:   task.AttachmentID,
		Status:         string(task.Status),
		Assignee:       task.Assignee,
		Owner:          task.Owner,
		CreatedAt:      task.CreatedAt,
		ModifiedAt:     task.ModifiedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.InvoiceAmount)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invoiceAmount must be a decimal number", httpx.ErrValidation))
		return
	}

	task, err := h.queue.Create(r.Context(), CreateInput{
		ParentType:     procure.ParentType(req.ParentType),
		ParentID:       req.ParentID,
		InvoiceDateKey: req.InvoiceDateKey,
		InvoiceNumber:  req.InvoiceNumber,
		InvoiceAmount:  amount,
		AttachmentID:   req.AttachmentID,
		Owner:          req.Owner,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTaskResponse(task))
}

func (h *Handler) decide(status Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		actor := shared.ActorFromContext(r.Context())
		if actor == "" {
			httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
			return
		}
		task, err := h.queue.Transition(r.Context(), taskID, status, actor)
		if err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		h.metrics.RecordDecision(string(task.Status))
		httpx.JSON(w, http.StatusOK, toTaskResponse(task))
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.queue.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.queue.ListPending)
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.queue.ListHistory)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, filter ListFilter) ([]Task, error)) {
	query := r.URL.Query()
	filter := ListFilter{
		ParentType: procure.ParentType(query.Get("parentType")),
		ParentID:   query.Get("parentId"),
		Assignee:   query.Get("assignee"),
	}
	tasks, err := list(r.Context(), filter)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrDuplicatePending), errors.Is(err, ErrInvalidTransition):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, docstore.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: task", httpx.ErrNotFound))
	default:
		h.logger.Error("approval handler failure", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
