package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUserSettings creates settings for a fresh user with everything enabled
func (tf *TestFixtures) CreateTestUserSettings(persistence string) (*models.UserSettings, error) {
	userID := uuid.New()
	settings := &models.UserSettings{
		UserID:              userID,
		Email:               fmt.Sprintf("user.%s@example.com", userID.String()[:8]),
		PlaylistPersistence: persistence,
		SnapshotsEnabled:    true,
		SuggestionEmails:    true,
		RemoveFromPlaylist:  false,
	}
	if err := tf.DB.DB.Create(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user settings: %w", err)
	}
	return settings, nil
}

// CreateTestTrackedPlaylist creates an active tracked playlist for the user
func (tf *TestFixtures) CreateTestTrackedPlaylist(userID uuid.UUID, likedSongs bool) (*models.TrackedPlaylist, error) {
	playlist := &models.TrackedPlaylist{
		UserID:       userID,
		PlaylistID:   fmt.Sprintf("pl%09d", rand.Intn(1000000000)),
		PlaylistName: "Test Playlist",
		LikedSongs:   likedSongs,
		Active:       true,
	}
	if likedSongs {
		playlist.PlaylistID = models.LikedSongsPlaylistID
		playlist.PlaylistName = "Liked Songs"
	}
	if err := tf.DB.DB.Create(playlist).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tracked playlist: %w", err)
	}
	return playlist, nil
}

// CreateTestSpotifyAccess creates a credential row valid for one hour
func (tf *TestFixtures) CreateTestSpotifyAccess(userID uuid.UUID) (*models.SpotifyAccess, error) {
	access := &models.SpotifyAccess{
		UserID:       userID,
		AccessToken:  fmt.Sprintf("access-%d", rand.Intn(1000000000)),
		RefreshToken: fmt.Sprintf("refresh-%d", rand.Intn(1000000000)),
		ExpiresAt:    utils.UTCNowAdd(1 * time.Hour),
	}
	if err := tf.DB.DB.Create(access).Error; err != nil {
		return nil, fmt.Errorf("failed to create test credential: %w", err)
	}
	return access, nil
}

// CreateTestSnapshot creates a snapshot row referencing an arbitrary blob path
func (tf *TestFixtures) CreateTestSnapshot(userID uuid.UUID, playlistID uint, songCount int, createdAt time.Time) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{
		UserID:     userID,
		PlaylistID: playlistID,
		SongCount:  songCount,
		SnapshotID: fmt.Sprintf("%s/snapshot_test_%d.json.gz", userID, createdAt.Unix()),
		CreatedAt:  createdAt,
	}
	if err := tf.DB.DB.Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to create test snapshot: %w", err)
	}
	return snapshot, nil
}

// CreateTestDeletedSong creates an active removal record
func (tf *TestFixtures) CreateTestDeletedSong(userID uuid.UUID, playlistID uint, trackID string, removedAt time.Time) (*models.DeletedSong, error) {
	song := &models.DeletedSong{
		UserID:     userID,
		TrackID:    trackID,
		PlaylistID: playlistID,
		RemovedAt:  removedAt,
		Active:     true,
	}
	if err := tf.DB.DB.Create(song).Error; err != nil {
		return nil, fmt.Errorf("failed to create test deleted song: %w", err)
	}
	return song, nil
}

// RandomSnapshotTracks builds n distinct snapshot entries
func RandomSnapshotTracks(n int) []models.SnapshotTrack {
	tracks := make([]models.SnapshotTrack, 0, n)
	for i := 0; i < n; i++ {
		tracks = append(tracks, models.SnapshotTrack{
			ID:      fmt.Sprintf("track-%04d", i),
			Name:    fmt.Sprintf("Track %d", i),
			Artist:  fmt.Sprintf("Artist %d", i%7),
			Album:   fmt.Sprintf("Album %d", i%11),
			AddedAt: utils.UTCNow().Format(time.RFC3339),
		})
	}
	return tracks
}
