// Package approval owns the task queue that routes vendor invoices
// through human approve/reject decisions. Tasks live in the document
// store and transition exactly once from Pending to a terminal state.
package approval

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/procure"
)

// Collection is the document-store collection holding approval tasks.
const Collection = "approval_tasks"

// Status is the task lifecycle status.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether the status is a known variant.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Task drives one human approval decision for one embedded invoice
// line. Invoice fields are a denormalized snapshot taken at creation so
// lists render without re-joining the parent document.
type Task struct {
	ID             string
	ParentType     procure.ParentType
	ParentID       string
	InvoiceDateKey string
	InvoiceNumber  string
	InvoiceAmount  decimal.Decimal
	AttachmentID   string
	Status         Status
	Assignee       string
	Owner          string
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

var (
	// ErrDuplicatePending indicates a non-terminal task already exists
	// for the same (parentType, parentID, invoiceDateKey) triple.
	ErrDuplicatePending = errors.New("approval: pending task already exists for invoice line")
	// ErrInvalidTransition indicates the task is no longer Pending;
	// terminal states are immutable.
	ErrInvalidTransition = errors.New("approval: task is not pending")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("approval: invalid input")
)
