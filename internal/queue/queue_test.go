package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sortJob() *Job {
	return &Job{Algorithm: "sort", Strategy: "B", BitWidth: 6, Size: 4, Slots: 2, Seed: 42}
}

func TestJobValidate(t *testing.T) {
	require.NoError(t, sortJob().Validate())

	bad := sortJob()
	bad.Algorithm = "matmul"
	require.ErrorIs(t, bad.Validate(), ErrInvalidJob)

	bad = sortJob()
	bad.Slots = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidJob)
}

func TestJobComputeID(t *testing.T) {
	a, b := sortJob(), sortJob()
	require.Equal(t, a.ComputeID(), b.ComputeID())
	require.Len(t, a.ComputeID(), 32)

	b.Seed = 7
	require.NotEqual(t, a.ComputeID(), b.ComputeID())

	// Status and timestamps do not enter the ID.
	b = sortJob()
	b.Status = StatusFailed
	b.CreatedAt = time.Now()
	require.Equal(t, a.ComputeID(), b.ComputeID())
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	defer q.Close()

	job := sortJob()
	require.NoError(t, q.Push(ctx, job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, StatusPending, job.Status)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)

	got.Status = StatusCompleted
	got.ResultHandle = "abc"
	require.NoError(t, q.Update(ctx, got))

	stored, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, "abc", stored.ResultHandle)

	_, err = q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	require.ErrorIs(t, q.Push(ctx, &Job{Algorithm: "sort"}), ErrInvalidJob)
}

func TestMemoryQueueResubmit(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	defer q.Close()

	first := sortJob()
	require.NoError(t, q.Push(ctx, first))
	got, err := q.Pop(ctx)
	require.NoError(t, err)
	got.Status = StatusCompleted
	got.ResultHandle = "abc"
	require.NoError(t, q.Update(ctx, got))

	// same request again: answered from the completed record
	again := sortJob()
	require.NoError(t, q.Push(ctx, again))
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, StatusCompleted, again.Status)
	require.Equal(t, "abc", again.ResultHandle)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	stored, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "abc", stored.ResultHandle)

	// a pending duplicate is not queued twice
	require.NoError(t, q.Push(ctx, sortJobWithSeed(7)))
	require.NoError(t, q.Push(ctx, sortJobWithSeed(7)))
	n, err = q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// failed runs are retried
	failed, err := q.Pop(ctx)
	require.NoError(t, err)
	failed.Status = StatusFailed
	failed.Error = "boom"
	require.NoError(t, q.Update(ctx, failed))
	retry := sortJobWithSeed(7)
	require.NoError(t, q.Push(ctx, retry))
	require.Equal(t, StatusPending, retry.Status)
	n, err = q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func sortJobWithSeed(seed uint64) *Job {
	j := sortJob()
	j.Seed = seed
	return j
}

func TestMemoryQueuePopCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	_, err = q.Pop(context.Background())
	require.ErrorIs(t, err, ErrConnectionLost)
}
