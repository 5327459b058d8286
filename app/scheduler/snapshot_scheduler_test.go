package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/config"
	"github.com/gdmurray/trackkeeper/models"
	testingutil "github.com/gdmurray/trackkeeper/testing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func makeUserIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestPartitionUsers(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, PartitionUsers(nil, 10, 5*time.Minute, 1*time.Hour))
	})

	t.Run("simple chunking", func(t *testing.T) {
		users := makeUserIDs(10)
		subsets := PartitionUsers(users, 3, 5*time.Minute, 1*time.Hour)
		require.Len(t, subsets, 4)
		assert.Len(t, subsets[0], 3)
		assert.Len(t, subsets[3], 1)
	})

	t.Run("subset size grows to fit the execution window", func(t *testing.T) {
		// 13 users at 1 per subset would need 13 slots of 5m, past the 1h
		// window; the size is recomputed to 2 so 7 subsets fit
		users := makeUserIDs(13)
		subsets := PartitionUsers(users, 1, 5*time.Minute, 1*time.Hour)
		require.Len(t, subsets, 7)
		for i := 0; i < 6; i++ {
			assert.Len(t, subsets[i], 2)
		}
		assert.Len(t, subsets[6], 1)
	})

	t.Run("dispatch always completes inside the execution window", func(t *testing.T) {
		subsetWindow := 5 * time.Minute
		executionWindow := 1 * time.Hour
		for _, n := range []int{1, 5, 13, 100, 999} {
			users := makeUserIDs(n)
			subsets := PartitionUsers(users, 1, subsetWindow, executionWindow)
			assert.LessOrEqual(t, time.Duration(len(subsets))*subsetWindow, executionWindow,
				"n=%d produced %d subsets", n, len(subsets))
		}
	})

	t.Run("every user appears exactly once", func(t *testing.T) {
		users := makeUserIDs(57)
		subsets := PartitionUsers(users, 4, 5*time.Minute, 30*time.Minute)
		seen := make(map[uuid.UUID]int)
		for _, subset := range subsets {
			for _, id := range subset {
				seen[id]++
			}
		}
		assert.Len(t, seen, 57)
		for id, count := range seen {
			assert.Equal(t, 1, count, "user %s", id)
		}
	})

	t.Run("zero subset size is treated as one", func(t *testing.T) {
		users := makeUserIDs(3)
		subsets := PartitionUsers(users, 0, 5*time.Minute, 1*time.Hour)
		require.Len(t, subsets, 3)
	})
}

func TestSnapshotSchedulerRunOnce(t *testing.T) {
	ctx := context.Background()
	cfg := config.SchedulerConfig{
		SnapshotInterval:  24 * time.Hour,
		MaxUsersPerSubset: 1,
		SubsetWindow:      5 * time.Minute,
		ExecutionWindow:   1 * time.Hour,
	}

	setup := func(t *testing.T) (*testingutil.FakeUserSettingsRepository, *testingutil.FakeTrackedPlaylistRepository, *queue.MemoryQueue, *SnapshotScheduler) {
		settingsRepo := testingutil.NewFakeUserSettingsRepository()
		playlistRepo := testingutil.NewFakeTrackedPlaylistRepository()
		tasks := queue.NewMemoryQueue()
		s := NewSnapshotScheduler(settingsRepo, playlistRepo, tasks, cfg, testLogger())
		return settingsRepo, playlistRepo, tasks, s
	}

	addUser := func(t *testing.T, settingsRepo *testingutil.FakeUserSettingsRepository, enabled bool) uuid.UUID {
		t.Helper()
		userID := uuid.New()
		require.NoError(t, settingsRepo.Save(ctx, &models.UserSettings{
			UserID:              userID,
			Email:               "listener@example.com",
			PlaylistPersistence: models.PersistenceForever,
			SnapshotsEnabled:    enabled,
		}))
		return userID
	}

	addPlaylist := func(t *testing.T, playlistRepo *testingutil.FakeTrackedPlaylistRepository, userID uuid.UUID, active bool) *models.TrackedPlaylist {
		t.Helper()
		playlist := &models.TrackedPlaylist{
			UserID:       userID,
			PlaylistID:   "spotify-playlist",
			PlaylistName: "Mix",
			Active:       active,
		}
		require.NoError(t, playlistRepo.Save(ctx, playlist))
		return playlist
	}

	t.Run("dispatches one job per tracked playlist", func(t *testing.T) {
		settingsRepo, playlistRepo, tasks, s := setup(t)
		user1 := addUser(t, settingsRepo, true)
		user2 := addUser(t, settingsRepo, true)
		p1 := addPlaylist(t, playlistRepo, user1, true)
		p2 := addPlaylist(t, playlistRepo, user1, true)
		p3 := addPlaylist(t, playlistRepo, user2, true)

		s.runOnce(ctx)

		enqueued := tasks.Tasks()
		require.Len(t, enqueued, 3)
		wanted := map[uint]bool{p1.ID: false, p2.ID: false, p3.ID: false}
		for _, task := range enqueued {
			assert.Equal(t, queue.JobTakeSnapshot, task.Job)
			var args queue.PlaylistJobArgs
			require.NoError(t, json.Unmarshal(task.Args, &args))
			wanted[args.PlaylistID] = true
		}
		for id, seen := range wanted {
			assert.True(t, seen, "playlist %d never dispatched", id)
		}
	})

	t.Run("staggers subsets by the subset window", func(t *testing.T) {
		settingsRepo, playlistRepo, tasks, s := setup(t)
		for i := 0; i < 3; i++ {
			userID := addUser(t, settingsRepo, true)
			addPlaylist(t, playlistRepo, userID, true)
		}

		s.runOnce(ctx)

		enqueued := tasks.Tasks()
		require.Len(t, enqueued, 3)
		delays := make(map[time.Duration]int)
		for _, task := range enqueued {
			delays[task.Delay]++
			assert.Zero(t, task.Delay%(5*time.Minute))
			assert.Less(t, task.Delay, 1*time.Hour)
		}
		assert.Len(t, delays, 3)
	})

	t.Run("skips disabled users and inactive playlists", func(t *testing.T) {
		settingsRepo, playlistRepo, tasks, s := setup(t)
		enabled := addUser(t, settingsRepo, true)
		disabled := addUser(t, settingsRepo, false)
		addPlaylist(t, playlistRepo, enabled, true)
		addPlaylist(t, playlistRepo, enabled, false)
		addPlaylist(t, playlistRepo, disabled, true)

		s.runOnce(ctx)

		enqueued := tasks.Tasks()
		require.Len(t, enqueued, 1)
		var args queue.PlaylistJobArgs
		require.NoError(t, json.Unmarshal(enqueued[0].Args, &args))
		assert.Equal(t, enabled, args.UserID)
	})

	t.Run("no eligible work dispatches nothing", func(t *testing.T) {
		settingsRepo, _, tasks, s := setup(t)
		addUser(t, settingsRepo, true)

		s.runOnce(ctx)
		assert.Empty(t, tasks.Tasks())
	})
}
