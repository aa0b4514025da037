package pending

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegate/internal/storage/snapshot"
	"codegate/pkg/platform/sentinel"
)

func newTestRegistry(t *testing.T) *MemoryRegistry {
	t.Helper()
	r, err := NewMemory(snapshot.Discard{})
	require.NoError(t, err)
	return r
}

func TestIntakeLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	req := Request{OrderID: "1001", ChatID: 7, Stage: StageAwaitingAccount, CreatedAt: time.Now()}
	require.NoError(t, r.PutIntake(ctx, req))

	got, err := r.GetIntake(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	// New order submission overwrites the intake entry for the same chat.
	req2 := req
	req2.OrderID = "1002"
	require.NoError(t, r.PutIntake(ctx, req2))
	got, err = r.GetIntake(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "1002", got.OrderID)

	_, err = r.GetIntake(ctx, 8)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCompleteRemovesIntakeEntry(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.PutIntake(ctx, Request{OrderID: "1001", ChatID: 7, Stage: StageAwaitingAccount}))
	require.NoError(t, r.Complete(ctx, "steamfan77", Request{
		OrderID: "1001", ChatID: 7, Account: "SteamFan77", Stage: StageAwaitingCode,
	}))

	_, err := r.GetIntake(ctx, 7)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	got, err := r.Get(ctx, "steamfan77")
	require.NoError(t, err)
	assert.Equal(t, "SteamFan77", got.Account)
	assert.Equal(t, StageAwaitingCode, got.Stage)
}

func TestListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Complete(ctx, "alpha", Request{ChatID: 1, Stage: StageAwaitingCode}))
	require.NoError(t, r.Complete(ctx, "beta", Request{ChatID: 2, Stage: StageAwaitingCode}))
	require.NoError(t, r.Complete(ctx, "gamma", Request{ChatID: 3, Stage: StageAwaitingCode}))

	entries, err := r.List(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, keys)

	// Re-completing an existing key keeps its original position.
	require.NoError(t, r.Complete(ctx, "alpha", Request{ChatID: 4, Stage: StageAwaitingCode}))
	entries, err = r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", entries[0].Key)
	assert.Equal(t, int64(4), entries[0].Request.ChatID)
	assert.Len(t, entries, 3)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Complete(ctx, "alpha", Request{ChatID: 1, Stage: StageAwaitingCode}))
	require.NoError(t, r.Complete(ctx, "beta", Request{ChatID: 2, Stage: StageAwaitingCode}))

	require.NoError(t, r.Remove(ctx, "alpha"))
	_, err := r.Get(ctx, "alpha")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "beta", entries[0].Key)

	// Removing an absent key is a no-op.
	assert.NoError(t, r.Remove(ctx, "alpha"))
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now()

	require.NoError(t, r.PutIntake(ctx, Request{ChatID: 1, Stage: StageAwaitingAccount, CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, r.Complete(ctx, "old", Request{ChatID: 2, Stage: StageAwaitingCode, CreatedAt: now.Add(-3 * time.Hour)}))
	require.NoError(t, r.Complete(ctx, "fresh", Request{ChatID: 3, Stage: StageAwaitingCode, CreatedAt: now}))

	deleted, err := r.DeleteExpired(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Key)
	_, err = r.GetIntake(ctx, 1)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := snapshot.NewFile(filepath.Join(t.TempDir(), "pending.json"))

	r, err := NewMemory(backend)
	require.NoError(t, err)
	require.NoError(t, r.PutIntake(ctx, Request{OrderID: "1001", ChatID: 7, Stage: StageAwaitingAccount}))
	require.NoError(t, r.Complete(ctx, "beta", Request{OrderID: "1002", ChatID: 8, Account: "Beta", Stage: StageAwaitingCode}))
	require.NoError(t, r.Complete(ctx, "alpha", Request{OrderID: "1003", ChatID: 9, Account: "Alpha", Stage: StageAwaitingCode}))

	reloaded, err := NewMemory(backend)
	require.NoError(t, err)

	entries, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "beta", entries[0].Key)
	assert.Equal(t, "alpha", entries[1].Key)
}

type failingBackend struct {
	fail bool
}

func (f *failingBackend) Load(any) (bool, error) { return false, nil }
func (f *failingBackend) Save(any) error {
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestFailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{}
	r, err := NewMemory(backend)
	require.NoError(t, err)

	require.NoError(t, r.Complete(ctx, "alpha", Request{ChatID: 1, Stage: StageAwaitingCode}))

	backend.fail = true
	assert.Error(t, r.Complete(ctx, "beta", Request{ChatID: 2, Stage: StageAwaitingCode}))
	assert.Error(t, r.Remove(ctx, "alpha"))
	assert.Error(t, r.PutIntake(ctx, Request{ChatID: 3, Stage: StageAwaitingAccount}))

	// State is exactly what the last successful save left behind.
	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha", entries[0].Key)
	_, err = r.GetIntake(ctx, 3)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
