package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/memory"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

func newPendingJob(t *testing.T, target string) *scan.Job {
	t.Helper()
	job, err := scan.NewJob(target, []string{"ssl", "headers"}, "ru")
	require.NoError(t, err)
	return job
}

func TestStoreSaveAndFindByID(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	job := newPendingJob(t, "https://example.com")

	require.NoError(t, store.Save(context.Background(), job))

	got, err := store.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, job.ID(), got.ID())
	require.Equal(t, job.Target(), got.Target())
	require.Equal(t, scan.StatusPending, got.Status())
}

func TestStoreFindByIDUnknown(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	_, err := store.FindByID(context.Background(), "no-such-job")
	require.ErrorIs(t, err, sharederrors.ErrJobNotFound)
}

func TestStoreSaveStoresSnapshot(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	job := newPendingJob(t, "https://example.com")
	require.NoError(t, store.Save(context.Background(), job))

	// Mutating the original after Save must not leak into the store.
	require.NoError(t, job.Start())

	got, err := store.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, scan.StatusPending, got.Status())
}

func TestStoreReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	job := newPendingJob(t, "https://example.com")
	require.NoError(t, store.Save(context.Background(), job))

	first, err := store.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	require.NoError(t, first.Start())

	second, err := store.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, scan.StatusPending, second.Status())
}

func TestStoreSaveOverwrites(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	job := newPendingJob(t, "https://example.com")
	require.NoError(t, store.Save(context.Background(), job))

	require.NoError(t, job.Start())
	require.NoError(t, store.Save(context.Background(), job))

	got, err := store.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, scan.StatusRunning, got.Status())
	require.Equal(t, 1, store.Len())
}

func TestStoreFindAllNewestFirst(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	older := newPendingJob(t, "https://old.example.com")
	require.NoError(t, store.Save(context.Background(), older))

	time.Sleep(5 * time.Millisecond)

	newer := newPendingJob(t, "https://new.example.com")
	require.NoError(t, store.Save(context.Background(), newer))

	jobs, err := store.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, newer.ID(), jobs[0].ID())
	require.Equal(t, older.ID(), jobs[1].ID())
}

func TestStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	job := newPendingJob(t, "https://example.com")
	require.NoError(t, store.Save(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, store.Save(ctx, job))
	_, err := store.FindByID(ctx, job.ID())
	require.Error(t, err)
	_, err = store.FindAll(ctx)
	require.Error(t, err)
}
