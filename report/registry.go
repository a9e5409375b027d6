// Package report renders printable exports through a Gotenberg
// sidecar.
package report

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armature-build/armature/internal/invoices"
	"github.com/armature-build/armature/internal/money"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

var registryTemplate = template.Must(template.New("registry").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice Registry</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
tfoot td { font-weight: bold; }
</style>
</head>
<body>
<h1>Invoice Registry</h1>
<p>Generated at {{.GeneratedAt}}</p>
<table>
<thead>
<tr><th>Invoice</th><th>Date</th><th>Vendor</th><th>Project</th><th>Amount</th><th>Reconciliation</th></tr>
</thead>
<tbody>
{{range .Entries}}<tr>
<td>{{.InvoiceNo}}</td><td>{{.Date}}</td><td>{{.VendorLabel}}</td><td>{{.ProjectLabel}}</td>
<td>{{.Amount}}</td><td>{{.ReconStatus}}</td>
</tr>
{{end}}</tbody>
<tfoot>
<tr><td colspan="4">Total ({{.TotalInvoices}} invoices, {{.PendingReconciliation}} pending)</td><td colspan="2">{{.TotalAmount}}</td></tr>
</tfoot>
</table>
</body>
</html>`))

type registryRow struct {
	InvoiceNo    string
	Date         string
	VendorLabel  string
	ProjectLabel string
	Amount       string
	ReconStatus  string
}

type registryPage struct {
	GeneratedAt           string
	Entries               []registryRow
	TotalInvoices         int
	PendingReconciliation int
	TotalAmount           string
}

// Handler manages report endpoints.
type Handler struct {
	client *Client
	docs   docstore.Store
	lookup invoices.Lookup
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, docs docstore.Store, lookup invoices.Lookup, logger *slog.Logger) *Handler {
	return &Handler{client: client, docs: docs, lookup: lookup, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/registry.pdf", h.registry)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) registry(w http.ResponseWriter, r *http.Request) {
	html, err := h.renderRegistryHTML(r.Context())
	if err != nil {
		h.logger.Error("build registry html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render registry pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=invoice-registry.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) renderRegistryHTML(ctx context.Context) (string, error) {
	var orders []procure.Order
	for _, typ := range []procure.ParentType{procure.ParentPurchaseOrder, procure.ParentServiceRequest} {
		docs, err := h.docs.List(ctx, string(typ), docstore.Filter{})
		if err != nil {
			return "", err
		}
		for _, doc := range docs {
			orders = append(orders, procure.DecodeOrder(doc))
		}
	}
	rep := invoices.GenerateEntries(ctx, orders, h.lookup)

	page := registryPage{
		GeneratedAt:           time.Now().Format(time.RFC1123),
		TotalInvoices:         rep.TotalInvoices,
		PendingReconciliation: rep.PendingReconciliation,
		TotalAmount:           money.FormatINR(rep.TotalAmount),
	}
	for _, e := range rep.Entries {
		page.Entries = append(page.Entries, registryRow{
			InvoiceNo:    e.InvoiceNo,
			Date:         e.Date,
			VendorLabel:  e.VendorLabel,
			ProjectLabel: e.ProjectLabel,
			Amount:       money.FormatINR(e.Amount),
			ReconStatus:  string(e.Reconciliation.Status),
		})
	}

	var sb strings.Builder
	if err := registryTemplate.Execute(&sb, page); err != nil {
		return "", err
	}
	return sb.String(), nil
}
