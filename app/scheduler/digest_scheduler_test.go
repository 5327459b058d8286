package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/models"
	testingutil "github.com/gdmurray/trackkeeper/testing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestSchedulerRunOnce(t *testing.T) {
	ctx := context.Background()
	settingsRepo := testingutil.NewFakeUserSettingsRepository()
	tasks := queue.NewMemoryQueue()
	s := NewDigestScheduler(settingsRepo, tasks, 7*24*time.Hour, testLogger())

	optedIn := uuid.New()
	require.NoError(t, settingsRepo.Save(ctx, &models.UserSettings{
		UserID:              optedIn,
		Email:               "listener@example.com",
		PlaylistPersistence: models.PersistenceForever,
		SuggestionEmails:    true,
	}))
	require.NoError(t, settingsRepo.Save(ctx, &models.UserSettings{
		UserID:              uuid.New(),
		Email:               "quiet@example.com",
		PlaylistPersistence: models.PersistenceForever,
		SuggestionEmails:    false,
	}))

	s.runOnce(ctx)

	enqueued := tasks.Tasks()
	require.Len(t, enqueued, 1)
	assert.Equal(t, queue.JobSendDigest, enqueued[0].Job)
	var args queue.UserJobArgs
	require.NoError(t, json.Unmarshal(enqueued[0].Args, &args))
	assert.Equal(t, optedIn, args.UserID)
}

func TestDigestSchedulerIgnoresOptedOutUsers(t *testing.T) {
	ctx := context.Background()
	settingsRepo := testingutil.NewFakeUserSettingsRepository()
	tasks := queue.NewMemoryQueue()
	s := NewDigestScheduler(settingsRepo, tasks, 7*24*time.Hour, testLogger())

	require.NoError(t, settingsRepo.Save(ctx, &models.UserSettings{
		UserID:              uuid.New(),
		Email:               "quiet@example.com",
		PlaylistPersistence: models.PersistenceForever,
		SuggestionEmails:    false,
	}))

	s.runOnce(ctx)
	assert.Empty(t, tasks.Tasks())
}

func TestNextDigestTime(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "midweek rolls to next monday",
			now:  time.Date(2026, time.September, 2, 15, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "monday before nine fires the same day",
			now:  time.Date(2026, time.September, 7, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "monday after nine waits a full week",
			now:  time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.September, 14, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDigestTime(tt.now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.Monday, got.Weekday())
			assert.True(t, got.After(tt.now))
		})
	}
}
