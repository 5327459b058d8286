package businessflow

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	testingutil "github.com/gdmurray/trackkeeper/testing"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSnapshotBackoff(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name      string
		songCount int
		expected  time.Duration
	}{
		{name: "empty library", songCount: 0, expected: 0},
		{name: "just under first threshold", songCount: 999, expected: 0},
		{name: "first threshold", songCount: 1000, expected: 1 * day},
		{name: "just under second threshold", songCount: 1999, expected: 1 * day},
		{name: "second threshold", songCount: 2000, expected: 2 * day},
		{name: "just under third threshold", songCount: 3999, expected: 2 * day},
		{name: "third threshold", songCount: 4000, expected: 3 * day},
		{name: "just under fourth threshold", songCount: 5999, expected: 3 * day},
		{name: "fourth threshold", songCount: 6000, expected: 4 * day},
		{name: "very large library", songCount: 50000, expected: 4 * day},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SnapshotBackoff(tt.songCount))
		})
	}
}

type snapshotFlowFixture struct {
	playlistRepo *testingutil.FakeTrackedPlaylistRepository
	snapshotRepo *testingutil.FakeSnapshotRepository
	accessRepo   *testingutil.FakeSpotifyAccessRepository
	client       *testingutil.FakePlaylistClient
	store        *testingutil.FakeBlobStore
	tasks        *queue.MemoryQueue
	flow         SnapshotFlow
}

func newSnapshotFlowFixture() *snapshotFlowFixture {
	f := &snapshotFlowFixture{
		playlistRepo: testingutil.NewFakeTrackedPlaylistRepository(),
		snapshotRepo: testingutil.NewFakeSnapshotRepository(),
		accessRepo:   testingutil.NewFakeSpotifyAccessRepository(),
		client:       testingutil.NewFakePlaylistClient(),
		store:        testingutil.NewFakeBlobStore(),
		tasks:        queue.NewMemoryQueue(),
	}
	f.flow = NewSnapshotFlow(f.playlistRepo, f.snapshotRepo, f.accessRepo, f.client, f.store, f.tasks, testLogger())
	return f
}

func (f *snapshotFlowFixture) addPlaylist(t *testing.T, userID uuid.UUID) *models.TrackedPlaylist {
	t.Helper()
	playlist := &models.TrackedPlaylist{
		UserID:       userID,
		PlaylistID:   "spotify-playlist-1",
		PlaylistName: "Road Trip",
		Active:       true,
	}
	require.NoError(t, f.playlistRepo.Save(context.Background(), playlist))
	return playlist
}

func (f *snapshotFlowFixture) addCredential(t *testing.T, userID uuid.UUID, expiresAt time.Time) *models.SpotifyAccess {
	t.Helper()
	cred := &models.SpotifyAccess{
		UserID:       userID,
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    expiresAt,
	}
	require.NoError(t, f.accessRepo.Save(context.Background(), cred))
	return cred
}

func TestTakeSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("takes snapshot and chains diff job", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		f.client.PlaylistTracks[playlist.PlaylistID] = testingutil.RandomSnapshotTracks(3)

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.NoError(t, err)
		assert.True(t, taken)

		require.Len(t, f.snapshotRepo.Snapshots, 1)
		snapshot := f.snapshotRepo.Snapshots[0]
		assert.Equal(t, 3, snapshot.SongCount)
		assert.Equal(t, playlist.ID, snapshot.PlaylistID)

		// The blob must be decodable back to the fetched track list
		data, err := f.store.Download(ctx, snapshot.SnapshotID)
		require.NoError(t, err)
		tracks, err := services.DecodeSnapshot(data)
		require.NoError(t, err)
		assert.Len(t, tracks, 3)

		tasks := f.tasks.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, queue.JobDiffLibrary, tasks[0].Job)
		var args queue.PlaylistJobArgs
		require.NoError(t, json.Unmarshal(tasks[0].Args, &args))
		assert.Equal(t, userID, args.UserID)
		assert.Equal(t, playlist.ID, args.PlaylistID)
	})

	t.Run("liked songs playlist uses the liked tracks endpoint", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := &models.TrackedPlaylist{
			UserID:       userID,
			PlaylistID:   models.LikedSongsPlaylistID,
			PlaylistName: "Liked Songs",
			LikedSongs:   true,
			Active:       true,
		}
		require.NoError(t, f.playlistRepo.Save(ctx, playlist))
		f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		f.client.LikedTracks = testingutil.RandomSnapshotTracks(5)

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.NoError(t, err)
		assert.True(t, taken)
		require.Len(t, f.snapshotRepo.Snapshots, 1)
		assert.Equal(t, 5, f.snapshotRepo.Snapshots[0].SongCount)
	})

	t.Run("backoff skips a recently snapshotted large library", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		require.NoError(t, f.snapshotRepo.Save(ctx, &models.Snapshot{
			UserID:     userID,
			PlaylistID: playlist.ID,
			SongCount:  1500,
			SnapshotID: "existing",
			CreatedAt:  utils.UTCNow().Add(-2 * time.Hour),
		}))

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.NoError(t, err)
		assert.False(t, taken)
		assert.Len(t, f.snapshotRepo.Snapshots, 1)
		assert.Empty(t, f.tasks.Tasks())
	})

	t.Run("small library snapshots again immediately", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		f.client.PlaylistTracks[playlist.PlaylistID] = testingutil.RandomSnapshotTracks(2)
		require.NoError(t, f.snapshotRepo.Save(ctx, &models.Snapshot{
			UserID:     userID,
			PlaylistID: playlist.ID,
			SongCount:  100,
			SnapshotID: "existing",
			CreatedAt:  utils.UTCNow().Add(-1 * time.Hour),
		}))

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.NoError(t, err)
		assert.True(t, taken)
		assert.Len(t, f.snapshotRepo.Snapshots, 2)
	})

	t.Run("same-second snapshots never share an object path", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		f.client.PlaylistTracks[playlist.PlaylistID] = testingutil.RandomSnapshotTracks(2)

		for i := 0; i < 2; i++ {
			taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
			require.NoError(t, err)
			assert.True(t, taken)
		}

		require.Len(t, f.snapshotRepo.Snapshots, 2)
		assert.NotEqual(t, f.snapshotRepo.Snapshots[0].SnapshotID, f.snapshotRepo.Snapshots[1].SnapshotID)
		assert.Len(t, f.store.Objects, 2)
	})

	t.Run("missing playlist is a hard error", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()

		taken, err := f.flow.TakeSnapshot(ctx, userID, 42)
		assert.False(t, taken)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlaylistNotTracked)
	})

	t.Run("inactive playlist is a hard error", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := &models.TrackedPlaylist{
			UserID:       userID,
			PlaylistID:   "spotify-playlist-1",
			PlaylistName: "Archived",
			Active:       false,
		}
		require.NoError(t, f.playlistRepo.Save(ctx, playlist))

		_, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		assert.ErrorIs(t, err, ErrPlaylistNotTracked)
	})

	t.Run("missing credential is a hard error", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)

		_, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.Error(t, err)
		assert.True(t, IsNoCredential(err))
	})

	t.Run("expired credential is refreshed before fetching", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		cred := f.addCredential(t, userID, utils.UTCNow().Add(-1*time.Hour))
		f.client.PlaylistTracks[playlist.PlaylistID] = testingutil.RandomSnapshotTracks(1)

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		require.NoError(t, err)
		assert.True(t, taken)

		updated, err := f.accessRepo.ByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-token", updated.AccessToken)
		assert.False(t, updated.IsExpired(utils.UTCNow()))
	})

	t.Run("upstream auth failure force-expires the credential and is retryable", func(t *testing.T) {
		f := newSnapshotFlowFixture()
		userID := uuid.New()
		playlist := f.addPlaylist(t, userID)
		cred := f.addCredential(t, userID, utils.UTCNow().Add(1*time.Hour))
		f.client.ListErr = services.ErrUpstreamAuth

		taken, err := f.flow.TakeSnapshot(ctx, userID, playlist.ID)
		assert.False(t, taken)
		require.Error(t, err)
		assert.True(t, IsCredentialRejected(err))

		expired, lookupErr := f.accessRepo.ByID(ctx, cred.ID)
		require.NoError(t, lookupErr)
		assert.True(t, expired.IsExpired(utils.UTCNow().Add(1*time.Second)))
		assert.Empty(t, f.snapshotRepo.Snapshots)
		assert.Empty(t, f.tasks.Tasks())
	})
}
