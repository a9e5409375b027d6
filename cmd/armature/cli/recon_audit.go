package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// ReconAuditCLI scans stored parent documents for reconciliation data
// drift, typically left behind by legacy imports that bypassed the
// validation matrix.
type ReconAuditCLI struct {
	docs docstore.Store
}

// NewReconAuditCLI constructs the helper over the given document store.
func NewReconAuditCLI(docs docstore.Store) (*ReconAuditCLI, error) {
	if docs == nil {
		return nil, fmt.Errorf("recon audit: document store required")
	}
	return &ReconAuditCLI{docs: docs}, nil
}

// ReconAuditOptions defines available flags for the recon audit command.
type ReconAuditOptions struct {
	ParentTypes []string
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// ReconAuditSummary describes the JSON response for recon audit.
type ReconAuditSummary struct {
	OK       bool              `json:"ok"`
	Scanned  int               `json:"scanned"`
	Findings []ReconAuditIssue `json:"findings"`
}

// ReconAuditIssue captures one inconsistent invoice line.
type ReconAuditIssue struct {
	ParentType string `json:"parentType"`
	ParentID   string `json:"parentId"`
	DateKey    string `json:"dateKey"`
	Issue      string `json:"issue"`
}

// AuditCommand executes the recon audit workflow and prints the outcome.
// Exit code 0 means clean, 10 means findings, anything else is an
// execution failure.
func (c *ReconAuditCLI) AuditCommand(ctx context.Context, opts ReconAuditOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	parentTypes := opts.ParentTypes
	if len(parentTypes) == 0 {
		parentTypes = []string{string(procure.ParentPurchaseOrder), string(procure.ParentServiceRequest)}
	}
	for _, typ := range parentTypes {
		if !procure.ParentType(typ).Valid() {
			_, _ = fmt.Fprintf(opts.Stderr, "recon audit: unknown parent type %q\n", typ)
			return 1
		}
	}

	summary := ReconAuditSummary{Findings: []ReconAuditIssue{}}
	for _, typ := range parentTypes {
		docs, err := c.docs.List(ctx, typ, docstore.Filter{})
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recon audit: list %s: %v\n", typ, err)
			return 1
		}
		for _, doc := range docs {
			order := procure.DecodeOrder(doc)
			summary.Scanned++
			for _, line := range order.Invoices {
				for _, issue := range auditLine(line) {
					summary.Findings = append(summary.Findings, ReconAuditIssue{
						ParentType: typ,
						ParentID:   doc.ID,
						DateKey:    line.DateKey,
						Issue:      issue,
					})
				}
			}
		}
	}
	summary.OK = len(summary.Findings) == 0

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recon audit: encode summary: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "scanned %d documents, %d findings\n", summary.Scanned, len(summary.Findings))
		for _, f := range summary.Findings {
			_, _ = fmt.Fprintf(opts.Stdout, "  %s/%s %s: %s\n", f.ParentType, f.ParentID, f.DateKey, f.Issue)
		}
	}

	if !summary.OK {
		return 10
	}
	return 0
}

func auditLine(line procure.InvoiceLine) []string {
	recon := line.Reconciliation
	if !recon.Status.Reconciled() {
		return nil
	}
	var issues []string
	if recon.ProofAttachmentID == "" {
		issues = append(issues, "reconciled without proof attachment")
	}
	if recon.ReconciledDate == "" {
		issues = append(issues, "reconciled without date")
	}
	if recon.Status == procure.ReconPartial {
		if !recon.ReconciledAmount.IsPositive() || recon.ReconciledAmount.GreaterThan(line.Amount) {
			issues = append(issues, "partial amount out of range")
		}
	}
	return issues
}
