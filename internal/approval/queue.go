package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// GuardCollection holds one guard document per invoice line with an
// open task. The guard's unique id is what makes duplicate-pending
// rejection atomic: creation races resolve inside the store, not in a
// list-then-create window.
const GuardCollection = "approval_task_guards"

// Task document field names.
const (
	fieldTaskID         = "taskId"
	fieldParentType     = "parentType"
	fieldParentID       = "parentId"
	fieldInvoiceDateKey = "invoiceDateKey"
	fieldInvoiceNumber  = "invoiceNumber"
	fieldInvoiceAmount  = "invoiceAmount"
	fieldAttachmentID   = "attachmentId"
	fieldStatus         = "status"
	fieldAssignee       = "assignee"
	fieldOwner          = "owner"
)

// Notifier is told about each terminal decision, exactly once per
// successful transition and never for a rejected attempt.
type Notifier interface {
	TaskDecided(ctx context.Context, task Task) error
}

// Queue is the approval task service.
type Queue struct {
	store    docstore.Store
	notifier Notifier
	logger   *slog.Logger
	newID    func() string
}

// NewQueue constructs the queue. notifier may be nil when decisions need
// no downstream side effect.
func NewQueue(store docstore.Store, notifier Notifier, logger *slog.Logger) *Queue {
	return &Queue{
		store:    store,
		notifier: notifier,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
	}
}

// CreateInput describes a new approval task.
type CreateInput struct {
	ParentType     procure.ParentType
	ParentID       string
	InvoiceDateKey string
	InvoiceNumber  string
	InvoiceAmount  decimal.Decimal
	AttachmentID   string
	Owner          string
}

// Create registers a Pending task for one invoice line. At most one
// non-terminal task may exist per (parentType, parentID, dateKey); the
// guard document's unique id enforces this atomically, so concurrent
// creates for the same triple resolve with exactly one success. The
// triple opens up again when the winning task reaches a terminal state.
func (q *Queue) Create(ctx context.Context, input CreateInput) (Task, error) {
	if !input.ParentType.Valid() {
		return Task{}, fmt.Errorf("%w: parent type %q", ErrValidation, input.ParentType)
	}
	if input.ParentID == "" || input.InvoiceDateKey == "" {
		return Task{}, fmt.Errorf("%w: parent id and invoice date key required", ErrValidation)
	}

	id := q.newID()
	guard := guardID(input.ParentType, input.ParentID, input.InvoiceDateKey)
	if _, err := q.store.Create(ctx, GuardCollection, guard, map[string]any{fieldTaskID: id}); err != nil {
		if errors.Is(err, docstore.ErrExists) {
			return Task{}, ErrDuplicatePending
		}
		return Task{}, err
	}

	doc, err := q.store.Create(ctx, Collection, id, map[string]any{
		fieldParentType:     string(input.ParentType),
		fieldParentID:       input.ParentID,
		fieldInvoiceDateKey: input.InvoiceDateKey,
		fieldInvoiceNumber:  input.InvoiceNumber,
		fieldInvoiceAmount:  input.InvoiceAmount.String(),
		fieldAttachmentID:   input.AttachmentID,
		fieldStatus:         string(StatusPending),
		fieldAssignee:       "",
		fieldOwner:          input.Owner,
	})
	if err != nil {
		// Release the guard so a failed create does not wedge the line.
		_ = q.store.Delete(ctx, GuardCollection, guard)
		return Task{}, err
	}

	if q.logger != nil {
		q.logger.Info("approval task created",
			slog.String("task", id),
			slog.String("parent", input.ParentID),
			slog.String("dateKey", input.InvoiceDateKey))
	}
	return decodeTask(doc), nil
}

// Transition moves a Pending task to Approved or Rejected. The Pending
// precondition rides inside the store patch, so two concurrent calls
// resolve with exactly one success and one ErrInvalidTransition. The
// decision notifier runs once after the successful write.
func (q *Queue) Transition(ctx context.Context, taskID string, status Status, actor string) (Task, error) {
	if !status.Terminal() {
		return Task{}, fmt.Errorf("%w: target status %q is not terminal", ErrValidation, status)
	}
	if actor == "" {
		return Task{}, fmt.Errorf("%w: actor required", ErrValidation)
	}

	doc, err := q.store.Update(ctx, Collection, taskID, docstore.AnyVersion,
		func(data map[string]any) (map[string]any, error) {
			if data[fieldStatus] != string(StatusPending) {
				return nil, ErrInvalidTransition
			}
			data[fieldStatus] = string(status)
			data[fieldAssignee] = actor
			return data, nil
		})
	if err != nil {
		return Task{}, err
	}
	task := decodeTask(doc)

	// The terminal write above has exactly one winner, so the guard is
	// released once; a fresh task for the triple may be created again.
	guard := guardID(task.ParentType, task.ParentID, task.InvoiceDateKey)
	if err := q.store.Delete(ctx, GuardCollection, guard); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		if q.logger != nil {
			q.logger.Warn("approval guard release failed",
				slog.String("task", taskID),
				slog.Any("error", err))
		}
	}

	if q.logger != nil {
		q.logger.Info("approval task decided",
			slog.String("task", taskID),
			slog.String("status", string(status)),
			slog.String("actor", actor))
	}
	if q.notifier != nil {
		if err := q.notifier.TaskDecided(ctx, task); err != nil {
			return task, fmt.Errorf("approval: notify decision: %w", err)
		}
	}
	return task, nil
}

// Get returns one task.
func (q *Queue) Get(ctx context.Context, taskID string) (Task, error) {
	doc, err := q.store.Get(ctx, Collection, taskID)
	if err != nil {
		return Task{}, err
	}
	return decodeTask(doc), nil
}

// ListFilter narrows task listings.
type ListFilter struct {
	ParentType procure.ParentType
	ParentID   string
	Assignee   string
}

// ListPending returns non-terminal tasks, newest first.
func (q *Queue) ListPending(ctx context.Context, filter ListFilter) ([]Task, error) {
	return q.list(ctx, filter, func(t Task) bool { return t.Status == StatusPending })
}

// ListHistory returns decided tasks, newest first. Tasks are never
// deleted, so this is the full audit trail.
func (q *Queue) ListHistory(ctx context.Context, filter ListFilter) ([]Task, error) {
	return q.list(ctx, filter, func(t Task) bool { return t.Status != StatusPending })
}

func (q *Queue) list(ctx context.Context, filter ListFilter, keep func(Task) bool) ([]Task, error) {
	eq := map[string]any{}
	if filter.ParentType != "" {
		eq[fieldParentType] = string(filter.ParentType)
	}
	if filter.ParentID != "" {
		eq[fieldParentID] = filter.ParentID
	}
	if filter.Assignee != "" {
		eq[fieldAssignee] = filter.Assignee
	}
	docs, err := q.store.List(ctx, Collection, docstore.Filter{Eq: eq})
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, doc := range docs {
		task := decodeTask(doc)
		if keep(task) {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func guardID(parentType procure.ParentType, parentID, dateKey string) string {
	return string(parentType) + "_" + parentID + "_" + dateKey
}

func decodeTask(doc docstore.Document) Task {
	data := doc.Data
	str := func(field string) string {
		s, _ := data[field].(string)
		return s
	}
	status := Status(str(fieldStatus))
	if !status.Valid() {
		status = StatusPending
	}
	return Task{
		ID:             doc.ID,
		ParentType:     procure.ParentType(str(fieldParentType)),
		ParentID:       str(fieldParentID),
		InvoiceDateKey: str(fieldInvoiceDateKey),
		InvoiceNumber:  str(fieldInvoiceNumber),
		InvoiceAmount:  money.ParseAmount(data[fieldInvoiceAmount]),
		AttachmentID:   str(fieldAttachmentID),
		Status:         status,
		Assignee:       str(fieldAssignee),
		Owner:          str(fieldOwner),
		CreatedAt:      doc.CreatedAt,
		ModifiedAt:     doc.ModifiedAt,
	}
}
