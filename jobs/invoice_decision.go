package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/armature-build/armature/internal/approval"
	jobmetrics "github.com/armature-build/armature/internal/jobs"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// Invoice-line fields written when a decision is propagated.
const (
	fieldApprovalStatus = "approvalStatus"
	fieldApprovedBy     = "approvedBy"
)

// DecisionJob stamps the approval outcome onto the parent document's
// invoice line once the human decision has been made.
type DecisionJob struct {
	docs    docstore.Store
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewDecisionJob constructs the job.
func NewDecisionJob(docs docstore.Store, logger *slog.Logger) *DecisionJob {
	return &DecisionJob{docs: docs, logger: logger}
}

// WithMetrics attaches job instrumentation.
func (j *DecisionJob) WithMetrics(metrics *jobmetrics.Metrics) *DecisionJob {
	j.metrics = metrics
	return j
}

// Handle processes TaskInvoiceDecision tasks. Stamping is idempotent,
// so Asynq redelivery is harmless.
func (j *DecisionJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskInvoiceDecision)
	var payload InvoiceDecisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.metrics.AddSkip(TaskInvoiceDecision, "bad payload")
		return asynq.SkipRetry
	}
	if !procure.ParentType(payload.ParentType).Valid() {
		j.metrics.AddSkip(TaskInvoiceDecision, "unknown parent type")
		return asynq.SkipRetry
	}

	_, err := j.docs.Update(ctx, payload.ParentType, payload.ParentID, docstore.AnyVersion,
		func(data map[string]any) (map[string]any, error) {
			line, _, err := procure.FindInvoiceLine(data, payload.InvoiceDateKey)
			if err != nil {
				return nil, err
			}
			line[fieldApprovalStatus] = strings.ToUpper(payload.Status)
			line[fieldApprovedBy] = payload.Actor
			return data, nil
		})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, procure.ErrInvoiceLineNotFound) {
			// The parent or line is gone; redelivery cannot help.
			if j.logger != nil {
				j.logger.Warn("decision target missing",
					slog.String("parent", payload.ParentID),
					slog.String("dateKey", payload.InvoiceDateKey))
			}
			j.metrics.AddSkip(TaskInvoiceDecision, "target missing")
			return asynq.SkipRetry
		}
		return tracker.End(err)
	}

	if j.logger != nil {
		j.logger.Info("decision propagated",
			slog.String("task", payload.TaskID),
			slog.String("parent", payload.ParentID),
			slog.String("status", payload.Status))
	}
	return tracker.End(nil)
}

// DecisionNotifier satisfies approval.Notifier by enqueueing a
// propagation job for each decided task.
type DecisionNotifier struct {
	client *Client
}

// NewDecisionNotifier constructs the notifier.
func NewDecisionNotifier(client *Client) *DecisionNotifier {
	return &DecisionNotifier{client: client}
}

// TaskDecided implements approval.Notifier.
func (n *DecisionNotifier) TaskDecided(ctx context.Context, task approval.Task) error {
	_, err := n.client.EnqueueInvoiceDecision(ctx, InvoiceDecisionPayload{
		TaskID:         task.ID,
		ParentType:     string(task.ParentType),
		ParentID:       task.ParentID,
		InvoiceDateKey: task.InvoiceDateKey,
		Status:         string(task.Status),
		Actor:          task.Assignee,
	})
	return err
}
