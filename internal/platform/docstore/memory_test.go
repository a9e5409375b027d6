package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	doc, err := store.Create(ctx, "purchase_orders", "PO-001", map[string]any{"vendor": "acme"})
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Version)

	_, err = store.Create(ctx, "purchase_orders", "PO-001", map[string]any{})
	require.ErrorIs(t, err, ErrExists)

	got, err := store.Get(ctx, "purchase_orders", "PO-001")
	require.NoError(t, err)
	require.Equal(t, "acme", got.Data["vendor"])

	_, err = store.Get(ctx, "purchase_orders", "PO-404")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for _, spec := range []struct {
		id     string
		vendor string
	}{
		{"PO-002", "acme"},
		{"PO-001", "acme"},
		{"PO-003", "globex"},
	} {
		_, err := store.Create(ctx, "purchase_orders", spec.id, map[string]any{"vendor": spec.vendor})
		require.NoError(t, err)
	}

	docs, err := store.List(ctx, "purchase_orders", Filter{Eq: map[string]any{"vendor": "acme"}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "PO-001", docs[0].ID)
	require.Equal(t, "PO-002", docs[1].ID)
}

func TestMemoryUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, "approval_tasks", "T-1", map[string]any{"status": "PENDING"})
	require.NoError(t, err)

	doc, err := store.Update(ctx, "approval_tasks", "T-1", 1, func(data map[string]any) (map[string]any, error) {
		data["status"] = "APPROVED"
		return data, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Version)

	_, err = store.Update(ctx, "approval_tasks", "T-1", 1, func(data map[string]any) (map[string]any, error) {
		data["status"] = "REJECTED"
		return data, nil
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	got, err := store.Get(ctx, "approval_tasks", "T-1")
	require.NoError(t, err)
	require.Equal(t, "APPROVED", got.Data["status"])
}

func TestMemoryUpdateApplyErrorAborts(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, "approval_tasks", "T-1", map[string]any{"status": "PENDING"})
	require.NoError(t, err)

	boom := errors.New("precondition failed")
	_, err = store.Update(ctx, "approval_tasks", "T-1", AnyVersion, func(data map[string]any) (map[string]any, error) {
		data["status"] = "APPROVED"
		return data, boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "approval_tasks", "T-1")
	require.NoError(t, err)
	require.Equal(t, "PENDING", got.Data["status"])
	require.Equal(t, int64(1), got.Version)
}

func TestMemoryConcurrentConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, "approval_tasks", "T-1", map[string]any{"status": "PENDING"})
	require.NoError(t, err)

	claim := func(next string) error {
		_, err := store.Update(ctx, "approval_tasks", "T-1", AnyVersion, func(data map[string]any) (map[string]any, error) {
			if data["status"] != "PENDING" {
				return nil, ErrVersionConflict
			}
			data["status"] = next
			return data, nil
		})
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, next := range []string{"APPROVED", "REJECTED"} {
		i, next := i, next
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = claim(next)
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			losses++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	got, err := store.Get(ctx, "approval_tasks", "T-1")
	require.NoError(t, err)
	require.NotEqual(t, "PENDING", got.Data["status"])
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	var mu sync.Mutex
	var seen []Change
	cancel := store.Subscribe("purchase_orders", func(c Change) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})
	defer cancel()

	_, err := store.Create(ctx, "purchase_orders", "PO-001", map[string]any{})
	require.NoError(t, err)
	_, err = store.Create(ctx, "payments", "PAY-1", map[string]any{})
	require.NoError(t, err)
	_, err = store.Update(ctx, "purchase_orders", "PO-001", AnyVersion, func(data map[string]any) (map[string]any, error) {
		data["note"] = "updated"
		return data, nil
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.Equal(t, int64(1), seen[0].Version)
	require.Equal(t, int64(2), seen[1].Version)

	cancel()
}
