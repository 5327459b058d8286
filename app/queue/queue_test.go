package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableMarker(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Retryable(nil))
	})

	t.Run("plain errors are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.New("boom")))
	})

	t.Run("marked errors are retryable", func(t *testing.T) {
		err := Retryable(errors.New("boom"))
		assert.True(t, IsRetryable(err))
	})

	t.Run("marker survives wrapping", func(t *testing.T) {
		inner := Retryable(errors.New("boom"))
		wrapped := errors.Join(errors.New("context"), inner)
		assert.True(t, IsRetryable(wrapped))
	})

	t.Run("original error stays reachable", func(t *testing.T) {
		sentinel := errors.New("credential rejected")
		assert.ErrorIs(t, Retryable(sentinel), sentinel)
	})
}

func TestTaskEnvelopeRoundTrip(t *testing.T) {
	args, err := json.Marshal(PlaylistJobArgs{UserID: uuid.New(), PlaylistID: 7})
	require.NoError(t, err)

	task := Task{
		ID:         uuid.NewString(),
		Job:        JobTakeSnapshot,
		Args:       args,
		Attempt:    2,
		EnqueuedAt: time.Date(2026, time.August, 30, 8, 0, 0, 0, time.UTC),
	}

	envelope, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(envelope, &decoded))
	assert.Equal(t, task, decoded)
}

func TestMemoryQueueEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	userID := uuid.New()

	require.NoError(t, q.Enqueue(ctx, JobDiffLibrary, PlaylistJobArgs{UserID: userID, PlaylistID: 3}, 5*time.Minute))
	require.NoError(t, q.Enqueue(ctx, JobSendDigest, UserJobArgs{UserID: userID}, 0))

	tasks := q.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, JobDiffLibrary, tasks[0].Job)
	assert.Equal(t, 5*time.Minute, tasks[0].Delay)

	var args PlaylistJobArgs
	require.NoError(t, json.Unmarshal(tasks[0].Args, &args))
	assert.Equal(t, userID, args.UserID)
	assert.Equal(t, uint(3), args.PlaylistID)
}
