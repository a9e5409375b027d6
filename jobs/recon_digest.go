package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/armature-build/armature/internal/invoices"
	jobmetrics "github.com/armature-build/armature/internal/jobs"
	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

// reconDigestKey is where the latest roll-up snapshot is cached.
const reconDigestKey = "recon:digest"

// ReconDigest is the cached roll-up snapshot served by summary cards
// between recomputations.
type ReconDigest struct {
	TotalInvoices         int       `json:"totalInvoices"`
	TotalAmount           string    `json:"totalAmount"`
	TotalReconciled       int       `json:"totalReconciled"`
	PendingReconciliation int       `json:"pendingReconciliation"`
	ComputedAt            time.Time `json:"computedAt"`
}

// ReconDigestJob scans the parent collections and caches fresh
// reconciliation counters.
type ReconDigestJob struct {
	docs    docstore.Store
	redis   *redis.Client
	lookup  invoices.Lookup
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewReconDigestJob constructs the job.
func NewReconDigestJob(docs docstore.Store, redisClient *redis.Client, lookup invoices.Lookup, logger *slog.Logger) *ReconDigestJob {
	return &ReconDigestJob{docs: docs, redis: redisClient, lookup: lookup, logger: logger}
}

// WithMetrics attaches job instrumentation.
func (j *ReconDigestJob) WithMetrics(metrics *jobmetrics.Metrics) *ReconDigestJob {
	j.metrics = metrics
	return j
}

// Handle processes TaskReconDigest tasks.
func (j *ReconDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskReconDigest)
	var payload ReconDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.metrics.AddSkip(TaskReconDigest, "bad payload")
		return asynq.SkipRetry
	}
	parentTypes := payload.ParentTypes
	if len(parentTypes) == 0 {
		parentTypes = []string{string(procure.ParentPurchaseOrder), string(procure.ParentServiceRequest)}
	}

	var orders []procure.Order
	for _, typ := range parentTypes {
		docs, err := j.docs.List(ctx, typ, docstore.Filter{})
		if err != nil {
			return tracker.End(err)
		}
		for _, doc := range docs {
			orders = append(orders, procure.DecodeOrder(doc))
		}
	}

	report := invoices.GenerateEntries(ctx, orders, j.lookup)
	digest := ReconDigest{
		TotalInvoices:         report.TotalInvoices,
		TotalAmount:           report.TotalAmount.String(),
		TotalReconciled:       report.TotalReconciled,
		PendingReconciliation: report.PendingReconciliation,
		ComputedAt:            time.Now().UTC(),
	}
	raw, err := json.Marshal(digest)
	if err != nil {
		return tracker.End(err)
	}
	if j.redis != nil {
		if err := j.redis.Set(ctx, reconDigestKey, raw, 0).Err(); err != nil {
			return tracker.End(err)
		}
	}

	if j.logger != nil {
		j.logger.Info("reconciliation digest refreshed",
			slog.Int("invoices", digest.TotalInvoices),
			slog.Int("pending", digest.PendingReconciliation))
	}
	return tracker.End(nil)
}

// LoadReconDigest reads the cached snapshot; ok is false when no digest
// has been computed yet.
func LoadReconDigest(ctx context.Context, redisClient *redis.Client, dest *ReconDigest) (bool, error) {
	if redisClient == nil {
		return false, nil
	}
	raw, err := redisClient.Get(ctx, reconDigestKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}
