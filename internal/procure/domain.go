// Package procure defines typed views over the loosely-typed parent
// documents (purchase orders and service requests) stored in the
// document store, including their embedded order and invoice lines.
package procure

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ParentType identifies which collection a parent document lives in. The
// two literal values are persistence keys shared with downstream reports
// and must not change.
type ParentType string

const (
	// ParentPurchaseOrder is the purchase-order collection.
	ParentPurchaseOrder ParentType = "purchase_orders"
	// ParentServiceRequest is the service-request collection.
	ParentServiceRequest ParentType = "service_requests"
)

// Valid reports whether the parent type is one of the two known
// collections.
func (p ParentType) Valid() bool {
	return p == ParentPurchaseOrder || p == ParentServiceRequest
}

// ReconStatus is the per-invoice tax-reconciliation state.
type ReconStatus string

const (
	ReconNone          ReconStatus = "NONE"
	ReconPartial       ReconStatus = "PARTIAL"
	ReconFull          ReconStatus = "FULL"
	ReconNotApplicable ReconStatus = "NOT_APPLICABLE"
)

// Valid reports whether the status is a known variant.
func (s ReconStatus) Valid() bool {
	switch s {
	case ReconNone, ReconPartial, ReconFull, ReconNotApplicable:
		return true
	}
	return false
}

// Reconciled reports whether the status counts as reconciled.
func (s ReconStatus) Reconciled() bool {
	return s == ReconPartial || s == ReconFull
}

// Clearing reports whether entering the status clears the sub-state.
func (s ReconStatus) Clearing() bool {
	return s == ReconNone || s == ReconNotApplicable
}

// PaymentStatus is the lifecycle status of an external payment record.
type PaymentStatus string

const (
	PaymentPaid      PaymentStatus = "PAID"
	PaymentRequested PaymentStatus = "REQUESTED"
	PaymentApproved  PaymentStatus = "APPROVED"
	PaymentRejected  PaymentStatus = "REJECTED"
)

// Reconciliation is the per-invoice tax-reconciliation sub-state.
type Reconciliation struct {
	Status            ReconStatus
	ReconciledDate    string
	ProofAttachmentID string
	ReconciledAmount  decimal.Decimal
	ReconciledBy      string
}

// InvoiceLine is one vendor invoice embedded in a parent document,
// addressed by (parent id, date key) rather than a standalone id.
type InvoiceLine struct {
	DateKey        string
	InvoiceNo      string
	Date           string
	Amount         decimal.Decimal
	AttachmentID   string
	UpdatedBy      string
	Reconciliation Reconciliation
}

// OrderLine is one item line embedded in a parent document. Rate carries
// the unit price; service requests store it under "quote" and have no
// delivery concept.
type OrderLine struct {
	Quantity          decimal.Decimal
	Rate              decimal.Decimal
	TaxPercent        decimal.Decimal
	DeliveredQuantity decimal.Decimal
}

// Order is a decoded parent document.
type Order struct {
	Type       ParentType
	ID         string
	Vendor     string
	Project    string
	Lines      []OrderLine
	Invoices   []InvoiceLine
	ModifiedAt time.Time
}

// Payment is an external payment record, read-only to this core.
type Payment struct {
	DocumentName string
	Amount       decimal.Decimal
	TDS          decimal.Decimal
	Status       PaymentStatus
}

// Collection names for collaborator documents.
const (
	PaymentCollection = "payments"
	VendorCollection  = "vendors"
	ProjectCollection = "projects"
)

// ErrInvoiceLineNotFound indicates no invoice line matches the date key.
var ErrInvoiceLineNotFound = errors.New("procure: invoice line not found")
