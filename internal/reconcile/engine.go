// Package reconcile owns the per-invoice tax-reconciliation state
// machine: status, date, proof attachment, and reconciled amount, with
// the validation matrix that depends on which state is being entered.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/platform/filestore"
	"github.com/armature-build/armature/internal/procure"
)

// Reason identifies why a reconciliation update was rejected.
type Reason string

const (
	ReasonMissingProof     Reason = "missing proof"
	ReasonAmountOutOfRange Reason = "reconciled amount out of range"
	ReasonMissingDate      Reason = "missing reconciled date"
	ReasonInvalidStatus    Reason = "invalid reconciliation status"
	ReasonInvalidParent    Reason = "invalid parent type"
)

// ValidationError carries the specific rejection reason; callers surface
// it to the actor rather than a generic failure.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "reconcile: " + string(e.Reason)
}

// UploadError wraps a proof-upload failure. The enclosing update is
// aborted with no document mutation.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "reconcile: proof upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Engine applies reconciliation updates as single atomic
// read-modify-write operations against the document store.
type Engine struct {
	docs   docstore.Store
	files  filestore.Store
	logger *slog.Logger
}

// NewEngine constructs the engine.
func NewEngine(docs docstore.Store, files filestore.Store, logger *slog.Logger) *Engine {
	return &Engine{docs: docs, files: files, logger: logger}
}

// UpdateInput describes one reconciliation update. Proof and
// ReconciledAmount are optional; absent fields keep their stored values
// where the matrix allows it.
type UpdateInput struct {
	ParentType       procure.ParentType
	ParentID         string
	DateKey          string
	Status           procure.ReconStatus
	ReconciledDate   string
	Proof            *filestore.File
	ReconciledAmount *decimal.Decimal
	Actor            string
}

// Update validates the transition, uploads the proof when supplied, and
// writes the new sub-state. The write is conditioned on the document
// version read during validation, so a concurrent edit surfaces as
// docstore.ErrVersionConflict instead of a silent double-apply. Nothing
// is retried here; retry policy belongs to the caller.
func (e *Engine) Update(ctx context.Context, input UpdateInput) (procure.InvoiceLine, error) {
	if !input.ParentType.Valid() {
		return procure.InvoiceLine{}, &ValidationError{Reason: ReasonInvalidParent}
	}
	if !input.Status.Valid() {
		return procure.InvoiceLine{}, &ValidationError{Reason: ReasonInvalidStatus}
	}

	doc, err := e.docs.Get(ctx, string(input.ParentType), input.ParentID)
	if err != nil {
		return procure.InvoiceLine{}, err
	}
	raw, ordinal, err := procure.FindInvoiceLine(doc.Data, input.DateKey)
	if err != nil {
		return procure.InvoiceLine{}, err
	}
	line := procure.DecodeInvoiceLine(raw, ordinal)

	next, err := buildNextState(line, input)
	if err != nil {
		return procure.InvoiceLine{}, err
	}

	// The proof must be fully uploaded (or failed) before the owning
	// write is attempted; no write goes out with a dangling upload.
	if input.Proof != nil {
		url, err := e.files.Upload(ctx, *input.Proof, string(input.ParentType), input.ParentID)
		if err != nil {
			return procure.InvoiceLine{}, &UploadError{Err: err}
		}
		next.ProofAttachmentID = url
	}

	updated, err := e.docs.Update(ctx, string(input.ParentType), input.ParentID, doc.Version,
		func(data map[string]any) (map[string]any, error) {
			target, _, err := procure.FindInvoiceLine(data, input.DateKey)
			if err != nil {
				return nil, err
			}
			target[procure.FieldReconciliation] = next.Encode()
			target[procure.FieldUpdatedBy] = input.Actor
			return data, nil
		})
	if err != nil {
		return procure.InvoiceLine{}, err
	}

	if e.logger != nil {
		e.logger.Info("reconciliation updated",
			slog.String("parent", input.ParentID),
			slog.String("dateKey", input.DateKey),
			slog.String("status", string(next.Status)),
			slog.String("actor", input.Actor))
	}

	raw, ordinal, err = procure.FindInvoiceLine(updated.Data, input.DateKey)
	if err != nil {
		return procure.InvoiceLine{}, err
	}
	return procure.DecodeInvoiceLine(raw, ordinal), nil
}

// buildNextState runs the transition matrix against the current line
// state and returns the sub-state to persist.
func buildNextState(line procure.InvoiceLine, input UpdateInput) (procure.Reconciliation, error) {
	current := line.Reconciliation

	if input.Status.Clearing() {
		return procure.Reconciliation{Status: input.Status}, nil
	}

	next := procure.Reconciliation{Status: input.Status, ReconciledBy: input.Actor}
	statusUnchanged := current.Status == input.Status && current.Status.Reconciled()

	// Proof: a new file always satisfies the requirement. Without one,
	// only an unchanged reconciled status with an existing proof passes.
	if input.Proof == nil {
		if !statusUnchanged || current.ProofAttachmentID == "" {
			return procure.Reconciliation{}, &ValidationError{Reason: ReasonMissingProof}
		}
		next.ProofAttachmentID = current.ProofAttachmentID
	}

	next.ReconciledDate = input.ReconciledDate
	if next.ReconciledDate == "" && statusUnchanged {
		next.ReconciledDate = current.ReconciledDate
	}
	if next.ReconciledDate == "" {
		return procure.Reconciliation{}, &ValidationError{Reason: ReasonMissingDate}
	}

	if input.Status == procure.ReconPartial {
		amount := current.ReconciledAmount
		if input.ReconciledAmount != nil {
			amount = *input.ReconciledAmount
		} else if !statusUnchanged {
			return procure.Reconciliation{}, &ValidationError{Reason: ReasonAmountOutOfRange}
		}
		if !amount.IsPositive() || amount.GreaterThan(line.Amount) {
			return procure.Reconciliation{}, &ValidationError{Reason: ReasonAmountOutOfRange}
		}
		next.ReconciledAmount = amount
	}

	return next, nil
}

// IsValidation reports whether err is a reconciliation validation
// failure and returns its reason.
func IsValidation(err error) (Reason, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason, true
	}
	return "", false
}
