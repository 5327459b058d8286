package businessflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// SnapshotBackoff returns the minimum wait between snapshots for a library of
// the given size. Larger libraries are snapshotted less often to bound API
// cost.
func SnapshotBackoff(songCount int) time.Duration {
	day := 24 * time.Hour
	switch {
	case songCount < 1000:
		return 0
	case songCount < 2000:
		return 1 * day
	case songCount < 4000:
		return 2 * day
	case songCount < 6000:
		return 3 * day
	default:
		return 4 * day
	}
}

// SnapshotFlow takes point-in-time snapshots of tracked playlists
type SnapshotFlow interface {
	// TakeSnapshot snapshots one tracked playlist. It reports whether a
	// snapshot was actually taken: a backoff skip is a no-op success.
	TakeSnapshot(ctx context.Context, userID uuid.UUID, playlistID uint) (bool, error)
}

// SnapshotFlowImpl implements SnapshotFlow
type SnapshotFlowImpl struct {
	playlistRepo repository.TrackedPlaylistRepository
	snapshotRepo repository.SnapshotRepository
	accessRepo   repository.SpotifyAccessRepository
	client       services.PlaylistClient
	store        services.BlobStore
	tasks        queue.TaskQueue
	logger       *log.Logger
}

// NewSnapshotFlow creates a new snapshot flow instance
func NewSnapshotFlow(
	playlistRepo repository.TrackedPlaylistRepository,
	snapshotRepo repository.SnapshotRepository,
	accessRepo repository.SpotifyAccessRepository,
	client services.PlaylistClient,
	store services.BlobStore,
	tasks queue.TaskQueue,
	logger *log.Logger,
) SnapshotFlow {
	return &SnapshotFlowImpl{
		playlistRepo: playlistRepo,
		snapshotRepo: snapshotRepo,
		accessRepo:   accessRepo,
		client:       client,
		store:        store,
		tasks:        tasks,
		logger:       logger,
	}
}

// TakeSnapshot fetches the playlist's full track list, persists it as a
// compressed blob plus a Snapshot row, and chains the differ
func (s *SnapshotFlowImpl) TakeSnapshot(ctx context.Context, userID uuid.UUID, playlistID uint) (bool, error) {
	playlist, err := s.playlistRepo.ByUserAndID(ctx, userID, playlistID)
	if err != nil {
		return false, NewBusinessError("PLAYLIST_LOOKUP_FAILED", "Failed to lookup tracked playlist", err)
	}
	if playlist == nil || !playlist.Active {
		return false, NewBusinessError("PLAYLIST_NOT_TRACKED", "Tracked playlist missing or inactive", ErrPlaylistNotTracked)
	}

	// Backoff check against the most recent snapshot
	latest, err := s.snapshotRepo.Latest(ctx, userID, playlistID)
	if err != nil {
		return false, NewBusinessError("SNAPSHOT_LOOKUP_FAILED", "Failed to lookup latest snapshot", err)
	}
	if latest != nil {
		nextDue := latest.CreatedAt.Add(SnapshotBackoff(latest.SongCount))
		if utils.UTCNow().Before(nextDue) {
			s.logger.Printf("snapshot: skipping playlist %d for user %s, next due %s",
				playlistID, userID, nextDue.Format(time.RFC3339))
			return false, nil
		}
	}

	cred, err := resolveCredential(ctx, s.accessRepo, s.client, userID)
	if err != nil {
		return false, err
	}

	tracks, err := s.fetchTracks(ctx, cred.AccessToken, playlist)
	if err != nil {
		if services.IsUpstreamAuthError(err) || IsCredentialRejected(err) {
			if expireErr := forceExpireCredential(ctx, s.accessRepo, cred); expireErr != nil {
				s.logger.Printf("snapshot: failed to force-expire credential for user %s: %v", userID, expireErr)
			}
			return false, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
		}
		return false, NewBusinessError("TRACK_FETCH_FAILED", "Failed to fetch playlist tracks", err)
	}

	payload, err := services.EncodeSnapshot(tracks)
	if err != nil {
		return false, NewBusinessError("SNAPSHOT_ENCODE_FAILED", "Failed to encode snapshot", err)
	}

	// Timestamp plus a random suffix: two snapshots of the same playlist in
	// the same second must not share an object path, the store upserts
	path := fmt.Sprintf("%s/snapshot_%s_%d_%s.json.gz",
		userID, playlist.PlaylistID, utils.UTCNow().Unix(), uuid.NewString()[:8])
	if err := s.store.Upload(ctx, path, payload); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSnapshotUpload, err)
	}

	snapshot := &models.Snapshot{
		UserID:     userID,
		PlaylistID: playlist.ID,
		SongCount:  len(tracks),
		SnapshotID: path,
	}
	if err := s.snapshotRepo.Save(ctx, snapshot); err != nil {
		return false, NewBusinessError("SNAPSHOT_SAVE_FAILED", "Failed to save snapshot record", err)
	}
	s.logger.Printf("snapshot: saved %d tracks for user %s playlist %d at %s",
		len(tracks), userID, playlistID, path)

	// Chain the differ only after the row is confirmed written
	args := queue.PlaylistJobArgs{UserID: userID, PlaylistID: playlist.ID}
	if err := s.tasks.Enqueue(ctx, queue.JobDiffLibrary, args, 0); err != nil {
		return true, NewBusinessError("DIFF_ENQUEUE_FAILED", "Failed to enqueue diff job", err)
	}
	return true, nil
}

func (s *SnapshotFlowImpl) fetchTracks(ctx context.Context, accessToken string, playlist *models.TrackedPlaylist) ([]models.SnapshotTrack, error) {
	if playlist.IsLikedSongs() {
		return s.client.ListLikedTracks(ctx, accessToken)
	}
	return s.client.ListPlaylistTracks(ctx, accessToken, playlist.PlaylistID)
}
