package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &Queue{client: client}
}

func TestEnqueueDequeue_RoundTrip(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{URL: "https://e.com/a", Markdown: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "https://e.com/a", job.URL)
	require.Equal(t, id, job.ID)
}

func TestDequeue_TimesOutWithNilJob(t *testing.T) {
	q := setupTestQueue(t)

	job, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestEnqueueBatch_PreservesOrderAndIDs(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	jobs := []Job{
		{URL: "https://e.com/1"},
		{URL: "https://e.com/2"},
		{URL: "https://e.com/3"},
	}
	ids, errs := q.EnqueueBatch(ctx, jobs)
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, ids, 3)

	for _, want := range jobs {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.Equal(t, want.URL, job.URL)
	}
}
