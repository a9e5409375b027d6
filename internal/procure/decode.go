package procure

import (
	"strings"

	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/platform/docstore"
)

// Document payload field names. The store enforces no schema, so every
// read goes through lenient decoding.
const (
	FieldVendor       = "vendor"
	FieldProject      = "project"
	FieldOrderLines   = "orderLines"
	FieldInvoices     = "invoices"
	FieldQuantity     = "quantity"
	FieldRate         = "rate"
	FieldQuote        = "quote"
	FieldTaxPercent   = "taxPercent"
	FieldDeliveredQty = "deliveredQuantity"

	FieldDateKey        = "dateKey"
	FieldInvoiceNo      = "invoiceNo"
	FieldDate           = "date"
	FieldAmount         = "amount"
	FieldAttachmentID   = "attachmentId"
	FieldUpdatedBy      = "updatedBy"
	FieldReconciliation = "reconciliation"

	FieldReconStatus  = "status"
	FieldReconDate    = "reconciledDate"
	FieldReconProof   = "proofAttachmentId"
	FieldReconAmount  = "reconciledAmount"
	FieldReconBy      = "reconciledBy"
	FieldDocumentName = "documentName"
	FieldTDS          = "tds"
	FieldStatus       = "status"
)

// DecodeOrder converts a raw parent document into a typed Order.
// Malformed or missing fields degrade to zero values rather than errors.
func DecodeOrder(doc docstore.Document) Order {
	order := Order{
		Type:       ParentType(doc.Type),
		ID:         doc.ID,
		Vendor:     str(doc.Data[FieldVendor]),
		Project:    str(doc.Data[FieldProject]),
		ModifiedAt: doc.ModifiedAt,
	}
	for _, raw := range items(doc.Data[FieldOrderLines]) {
		order.Lines = append(order.Lines, decodeOrderLine(raw, order.Type))
	}
	for i, raw := range items(doc.Data[FieldInvoices]) {
		order.Invoices = append(order.Invoices, DecodeInvoiceLine(raw, i))
	}
	return order
}

func decodeOrderLine(raw map[string]any, typ ParentType) OrderLine {
	rate := money.ParseAmount(raw[FieldRate])
	if typ == ParentServiceRequest && rate.IsZero() {
		rate = money.ParseAmount(raw[FieldQuote])
	}
	return OrderLine{
		Quantity:          money.ParseAmount(raw[FieldQuantity]),
		Rate:              rate,
		TaxPercent:        money.ParseAmount(raw[FieldTaxPercent]),
		DeliveredQuantity: money.ParseAmount(raw[FieldDeliveredQty]),
	}
}

// DecodeInvoiceLine converts one embedded invoice entry. ordinal is the
// in-document array position and backs the synthesized aggregator key.
func DecodeInvoiceLine(raw map[string]any, ordinal int) InvoiceLine {
	line := InvoiceLine{
		DateKey:      str(raw[FieldDateKey]),
		InvoiceNo:    str(raw[FieldInvoiceNo]),
		Date:         str(raw[FieldDate]),
		Amount:       money.ParseAmount(raw[FieldAmount]),
		AttachmentID: str(raw[FieldAttachmentID]),
		UpdatedBy:    str(raw[FieldUpdatedBy]),
	}
	if sub, ok := raw[FieldReconciliation].(map[string]any); ok {
		line.Reconciliation = DecodeReconciliation(sub)
	} else {
		line.Reconciliation = Reconciliation{Status: ReconNone}
	}
	return line
}

// DecodeReconciliation normalizes the reconciliation sub-state. Unknown
// status strings fall back to NONE, and clearing states drop any stray
// date/proof/amount fields so the invariants hold on read, not just on
// write.
func DecodeReconciliation(raw map[string]any) Reconciliation {
	status := ReconStatus(strings.ToUpper(strings.TrimSpace(str(raw[FieldReconStatus]))))
	if !status.Valid() {
		status = ReconNone
	}
	rec := Reconciliation{Status: status}
	if status.Clearing() {
		return rec
	}
	rec.ReconciledDate = str(raw[FieldReconDate])
	rec.ProofAttachmentID = str(raw[FieldReconProof])
	rec.ReconciledBy = str(raw[FieldReconBy])
	if status == ReconPartial {
		rec.ReconciledAmount = money.ParseAmount(raw[FieldReconAmount])
	}
	return rec
}

// Encode returns the sub-state in document form.
func (r Reconciliation) Encode() map[string]any {
	out := map[string]any{FieldReconStatus: string(r.Status)}
	if r.Status.Clearing() {
		return out
	}
	out[FieldReconDate] = r.ReconciledDate
	out[FieldReconProof] = r.ProofAttachmentID
	out[FieldReconBy] = r.ReconciledBy
	if r.Status == ReconPartial {
		out[FieldReconAmount] = r.ReconciledAmount.String()
	}
	return out
}

// FindInvoiceLine locates the embedded invoice entry for dateKey inside
// a raw parent payload. The returned map aliases the payload, so edits
// to it are edits to the document.
func FindInvoiceLine(data map[string]any, dateKey string) (map[string]any, int, error) {
	for i, raw := range items(data[FieldInvoices]) {
		if str(raw[FieldDateKey]) == dateKey {
			return raw, i, nil
		}
	}
	return nil, 0, ErrInvoiceLineNotFound
}

// DecodePayment converts a raw payment document.
func DecodePayment(doc docstore.Document) Payment {
	return Payment{
		DocumentName: str(doc.Data[FieldDocumentName]),
		Amount:       money.ParseAmount(doc.Data[FieldAmount]),
		TDS:          money.ParseAmount(doc.Data[FieldTDS]),
		Status:       PaymentStatus(strings.ToUpper(str(doc.Data[FieldStatus]))),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func items(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
