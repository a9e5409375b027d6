// Package jobs wires background work through Asynq: propagating
// approval decisions onto parent documents and refreshing the nightly
// reconciliation digest.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceDecision marks an invoice approved/rejected on its
	// parent document after a task decision.
	TaskInvoiceDecision = "invoice:decision"
	// TaskReconDigest recomputes the reconciliation roll-up counters.
	TaskReconDigest = "reconciliation:digest"
)

// InvoiceDecisionPayload describes one decided approval task.
type InvoiceDecisionPayload struct {
	TaskID         string `json:"taskId"`
	ParentType     string `json:"parentType"`
	ParentID       string `json:"parentId"`
	InvoiceDateKey string `json:"invoiceDateKey"`
	Status         string `json:"status"`
	Actor          string `json:"actor"`
}

// NewInvoiceDecisionTask constructs an Asynq task for a decision.
func NewInvoiceDecisionTask(payload InvoiceDecisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceDecision, data, asynq.Queue(QueueDefault)), nil
}

// ReconDigestPayload selects which parent collections to scan.
type ReconDigestPayload struct {
	ParentTypes []string `json:"parentTypes"`
}

// NewReconDigestTask constructs the digest task.
func NewReconDigestTask(parentTypes ...string) (*asynq.Task, error) {
	data, err := json.Marshal(ReconDigestPayload{ParentTypes: parentTypes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconDigest, data, asynq.Queue(QueueDefault)), nil
}
