package approval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/armature-build/armature/internal/platform/docstore"
	"github.com/armature-build/armature/internal/procure"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Task
	fail  error
}

func (n *recordingNotifier) TaskDecided(ctx context.Context, task Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.calls = append(n.calls, task)
	return nil
}

func newTestQueue(t *testing.T) (*Queue, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	queue := NewQueue(docstore.NewMemory(), notifier, nil)
	seq := 0
	queue.newID = func() string {
		seq++
		return "T-" + string(rune('0'+seq))
	}
	return queue, notifier
}

func createInput() CreateInput {
	return CreateInput{
		ParentType:     procure.ParentPurchaseOrder,
		ParentID:       "PO-001",
		InvoiceDateKey: "2024-01-01_0",
		InvoiceNumber:  "AS/101",
		InvoiceAmount:  decimal.NewFromInt(1000),
		AttachmentID:   "att-1",
		Owner:          "site-engineer",
	}
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	task, err := queue.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.Empty(t, task.Assignee)
	require.Equal(t, "site-engineer", task.Owner)
	require.True(t, decimal.NewFromInt(1000).Equal(task.InvoiceAmount))
	require.False(t, task.CreatedAt.IsZero())
}

func TestCreateDuplicatePendingRejected(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	first, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	_, err = queue.Create(ctx, createInput())
	require.ErrorIs(t, err, ErrDuplicatePending)

	// A different invoice line on the same parent is fine.
	other := createInput()
	other.InvoiceDateKey = "2024-01-15_0"
	_, err = queue.Create(ctx, other)
	require.NoError(t, err)

	// Once the first task is decided, the triple opens up again.
	_, err = queue.Transition(ctx, first.ID, StatusRejected, "reviewer-1")
	require.NoError(t, err)
	_, err = queue.Create(ctx, createInput())
	require.NoError(t, err)
}

func TestCreateConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(docstore.NewMemory(), &recordingNotifier{}, nil)

	const writers = 4
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = queue.Create(ctx, createInput())
		}()
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			require.ErrorIs(t, err, ErrDuplicatePending)
		}
	}
	require.Equal(t, 1, created)

	pending, err := queue.ListPending(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	queue, notifier := newTestQueue(t)
	task, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	decided, err := queue.Transition(ctx, task.ID, StatusApproved, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, decided.Status)
	require.Equal(t, "reviewer-1", decided.Assignee)
	require.True(t, decided.ModifiedAt.After(decided.CreatedAt) || decided.ModifiedAt.Equal(decided.CreatedAt))
	require.Len(t, notifier.calls, 1)
	require.Equal(t, task.ID, notifier.calls[0].ID)

	// Terminal states are immutable and trigger no second notification.
	_, err = queue.Transition(ctx, task.ID, StatusRejected, "reviewer-2")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, notifier.calls, 1)

	got, err := queue.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "reviewer-1", got.Assignee)
}

func TestTransitionValidation(t *testing.T) {
	ctx := context.Background()
	queue, notifier := newTestQueue(t)
	task, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	_, err = queue.Transition(ctx, task.ID, StatusPending, "reviewer-1")
	require.ErrorIs(t, err, ErrValidation)
	_, err = queue.Transition(ctx, task.ID, StatusApproved, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = queue.Transition(ctx, "T-404", StatusApproved, "reviewer-1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.Empty(t, notifier.calls)
}

func TestTransitionConcurrentAtMostOnce(t *testing.T) {
	ctx := context.Background()
	queue, notifier := newTestQueue(t)
	task, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	results := make([]Task, 2)
	for i, status := range []Status{StatusApproved, StatusRejected} {
		i, status := i, status
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = queue.Transition(ctx, task.ID, status, "reviewer")
		}()
	}
	wg.Wait()

	var winners int
	for i, err := range errs {
		if err == nil {
			winners++
			require.True(t, results[i].Status.Terminal())
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	require.Equal(t, 1, winners)
	require.Len(t, notifier.calls, 1)

	got, err := queue.Get(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, got.Status.Terminal())
}

func TestNotifierFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	queue, notifier := newTestQueue(t)
	task, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	boom := errors.New("queue unavailable")
	notifier.fail = boom
	decided, err := queue.Transition(ctx, task.ID, StatusApproved, "reviewer-1")
	require.ErrorIs(t, err, boom)
	// The decision itself committed.
	require.Equal(t, StatusApproved, decided.Status)
	got, err := queue.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
}

func TestListPendingAndHistory(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	a, err := queue.Create(ctx, createInput())
	require.NoError(t, err)

	b := createInput()
	b.InvoiceDateKey = "2024-01-15_0"
	taskB, err := queue.Create(ctx, b)
	require.NoError(t, err)

	c := createInput()
	c.ParentType = procure.ParentServiceRequest
	c.ParentID = "SR-001"
	_, err = queue.Create(ctx, c)
	require.NoError(t, err)

	pending, err := queue.ListPending(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 3)

	pending, err = queue.ListPending(ctx, ListFilter{ParentType: procure.ParentPurchaseOrder, ParentID: "PO-001"})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	history, err := queue.ListHistory(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, history)

	_, err = queue.Transition(ctx, a.ID, StatusApproved, "reviewer-1")
	require.NoError(t, err)
	_, err = queue.Transition(ctx, taskB.ID, StatusRejected, "reviewer-2")
	require.NoError(t, err)

	pending, err = queue.ListPending(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	history, err = queue.ListHistory(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)

	history, err = queue.ListHistory(ctx, ListFilter{Assignee: "reviewer-2"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, taskB.ID, history[0].ID)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	bad := createInput()
	bad.ParentType = "invoices"
	_, err := queue.Create(ctx, bad)
	require.ErrorIs(t, err, ErrValidation)

	bad = createInput()
	bad.InvoiceDateKey = ""
	_, err = queue.Create(ctx, bad)
	require.ErrorIs(t, err, ErrValidation)
}
