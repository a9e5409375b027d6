// Package invoices flattens the invoice lines embedded across purchase
// orders and service requests into one normalized registry view with
// vendor/project display labels and reconciliation roll-ups.
package invoices

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/armature-build/armature/internal/procure"
)

// Entry is one row of the invoice registry: one embedded invoice line,
// keyed stably so repeated renders of the same order set never collide.
type Entry struct {
	// Key is parentID + "_" + invoiceNo + "_" + ordinal. Invoice lines
	// have no standalone id; the ordinal is the in-document array
	// position, fixed at decode time.
	Key            string
	ParentType     procure.ParentType
	ParentID       string
	DateKey        string
	InvoiceNo      string
	Date           string
	Amount         decimal.Decimal
	AttachmentID   string
	UpdatedBy      string
	Vendor         string
	VendorLabel    string
	Project        string
	ProjectLabel   string
	Reconciliation procure.Reconciliation
}

// Report is the registry plus its summary-card counters.
type Report struct {
	Entries               []Entry
	TotalInvoices         int
	TotalAmount           decimal.Decimal
	TotalReconciled       int
	PendingReconciliation int
}

// GenerateEntries flattens the given orders into registry entries,
// resolving display labels through lookup. Output ordering follows the
// input order set and each order's own invoice array, so unchanged input
// yields identical output.
func GenerateEntries(ctx context.Context, orders []procure.Order, lookup Lookup) Report {
	report := Report{TotalAmount: decimal.Zero}
	for _, order := range orders {
		vendorLabel := resolveVendor(ctx, lookup, order.Vendor)
		projectLabel := resolveProject(ctx, lookup, order.Project)
		for ordinal, line := range order.Invoices {
			entry := Entry{
				Key:            order.ID + "_" + line.InvoiceNo + "_" + strconv.Itoa(ordinal),
				ParentType:     order.Type,
				ParentID:       order.ID,
				DateKey:        line.DateKey,
				InvoiceNo:      line.InvoiceNo,
				Date:           line.Date,
				Amount:         line.Amount,
				AttachmentID:   line.AttachmentID,
				UpdatedBy:      line.UpdatedBy,
				Vendor:         order.Vendor,
				VendorLabel:    vendorLabel,
				Project:        order.Project,
				ProjectLabel:   projectLabel,
				Reconciliation: line.Reconciliation,
			}
			report.Entries = append(report.Entries, entry)
			report.TotalInvoices++
			report.TotalAmount = report.TotalAmount.Add(line.Amount)
			if line.Reconciliation.Status.Reconciled() {
				report.TotalReconciled++
			}
		}
	}
	report.PendingReconciliation = report.TotalInvoices - report.TotalReconciled
	return report
}

// FilterByVendor returns the entries belonging to vendor. Linear scan;
// the registry is small enough that no index is kept.
func FilterByVendor(entries []Entry, vendor string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Vendor == vendor {
			out = append(out, e)
		}
	}
	return out
}

func resolveVendor(ctx context.Context, lookup Lookup, name string) string {
	if lookup == nil || name == "" {
		return name
	}
	if label := lookup.VendorLabel(ctx, name); label != "" {
		return label
	}
	return name
}

func resolveProject(ctx context.Context, lookup Lookup, name string) string {
	if lookup == nil || name == "" {
		return name
	}
	if label := lookup.ProjectLabel(ctx, name); label != "" {
		return label
	}
	return name
}
