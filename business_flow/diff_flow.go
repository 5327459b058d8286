package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// DiffRemoved computes the tracks present in the previous snapshot but absent
// from the latest one. Pure set difference on track id: reappearing tracks are
// simply not in the result, they do not reopen earlier removal records.
func DiffRemoved(previous, latest []models.SnapshotTrack) []models.SnapshotTrack {
	current := make(map[string]struct{}, len(latest))
	for _, t := range latest {
		current[t.ID] = struct{}{}
	}
	var removed []models.SnapshotTrack
	for _, t := range previous {
		if _, ok := current[t.ID]; !ok {
			removed = append(removed, t)
		}
	}
	return removed
}

// DiffFlow detects removals between the two most recent snapshots of a
// tracked playlist
type DiffFlow interface {
	// DiffSnapshots returns the number of removals recorded this run
	DiffSnapshots(ctx context.Context, userID uuid.UUID, playlistID uint) (int, error)
}

// DiffFlowImpl implements DiffFlow
type DiffFlowImpl struct {
	playlistRepo repository.TrackedPlaylistRepository
	snapshotRepo repository.SnapshotRepository
	cachedRepo   repository.CachedTrackRepository
	deletedRepo  repository.DeletedSongRepository
	accessRepo   repository.SpotifyAccessRepository
	client       services.PlaylistClient
	store        services.BlobStore
	tasks        queue.TaskQueue
	tx           repository.Transactor
	logger       *log.Logger
}

// NewDiffFlow creates a new diff flow instance
func NewDiffFlow(
	playlistRepo repository.TrackedPlaylistRepository,
	snapshotRepo repository.SnapshotRepository,
	cachedRepo repository.CachedTrackRepository,
	deletedRepo repository.DeletedSongRepository,
	accessRepo repository.SpotifyAccessRepository,
	client services.PlaylistClient,
	store services.BlobStore,
	tasks queue.TaskQueue,
	tx repository.Transactor,
	logger *log.Logger,
) DiffFlow {
	return &DiffFlowImpl{
		playlistRepo: playlistRepo,
		snapshotRepo: snapshotRepo,
		cachedRepo:   cachedRepo,
		deletedRepo:  deletedRepo,
		accessRepo:   accessRepo,
		client:       client,
		store:        store,
		tasks:        tasks,
		tx:           tx,
		logger:       logger,
	}
}

// DiffSnapshots loads the two most recent snapshots, records every track that
// disappeared between them, mirrors the removals into the removed-tracks
// playlist, and chains the expiry checker
func (s *DiffFlowImpl) DiffSnapshots(ctx context.Context, userID uuid.UUID, playlistID uint) (int, error) {
	playlist, err := s.playlistRepo.ByUserAndID(ctx, userID, playlistID)
	if err != nil {
		return 0, NewBusinessError("PLAYLIST_LOOKUP_FAILED", "Failed to lookup tracked playlist", err)
	}
	if playlist == nil {
		return 0, NewBusinessError("PLAYLIST_NOT_TRACKED", "Tracked playlist missing", ErrPlaylistNotTracked)
	}

	snapshots, err := s.snapshotRepo.LatestN(ctx, userID, playlistID, 2)
	if err != nil {
		return 0, NewBusinessError("SNAPSHOT_LOOKUP_FAILED", "Failed to load snapshots", err)
	}
	if len(snapshots) < 2 {
		s.logger.Printf("diff: only %d snapshot(s) for user %s playlist %d, nothing to diff",
			len(snapshots), userID, playlistID)
		return 0, nil
	}
	latest, previous := snapshots[0], snapshots[1]

	latestTracks, err := s.loadSnapshot(ctx, latest)
	if err != nil {
		return 0, err
	}
	previousTracks, err := s.loadSnapshot(ctx, previous)
	if err != nil {
		return 0, err
	}

	removed := DiffRemoved(previousTracks, latestTracks)
	if len(removed) == 0 {
		s.logger.Printf("diff: no removals for user %s playlist %d", userID, playlistID)
		return 0, s.chainExpiry(ctx, userID, playlistID)
	}

	now := utils.UTCNow()
	cached := make([]*models.CachedTrack, 0, len(removed))
	deleted := make([]*models.DeletedSong, 0, len(removed))
	trackIDs := make([]string, 0, len(removed))
	for _, t := range removed {
		track := t
		var image *string
		if track.Image != "" {
			image = utils.ToPtr(track.Image)
		}
		cached = append(cached, &models.CachedTrack{
			TrackID: track.ID,
			Name:    track.Name,
			Artist:  track.Artist,
			Album:   track.Album,
			Image:   image,
		})
		deleted = append(deleted, &models.DeletedSong{
			UserID:     userID,
			TrackID:    track.ID,
			PlaylistID: playlist.ID,
			RemovedAt:  now,
			Active:     true,
		})
		trackIDs = append(trackIDs, track.ID)
	}

	// Use transaction for atomicity
	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.cachedRepo.UpsertBatch(txCtx, cached); err != nil {
			return err
		}
		return s.deletedRepo.UpsertBatch(txCtx, deleted)
	})
	if err != nil {
		return 0, NewBusinessError("REMOVAL_PERSIST_FAILED", "Failed to persist removal records", err)
	}
	s.logger.Printf("diff: recorded %d removals for user %s playlist %d", len(removed), userID, playlistID)

	if err := s.mirrorRemovals(ctx, playlist, trackIDs); err != nil {
		// Best-effort: the removal records are already durable
		s.logger.Printf("diff: mirror playlist update failed for playlist %d: %v", playlistID, err)
	}

	return len(removed), s.chainExpiry(ctx, userID, playlistID)
}

func (s *DiffFlowImpl) loadSnapshot(ctx context.Context, snapshot *models.Snapshot) ([]models.SnapshotTrack, error) {
	data, err := s.store.Download(ctx, snapshot.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrSnapshotFetch, snapshot.SnapshotID, err)
	}
	tracks, err := services.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrSnapshotFetch, snapshot.SnapshotID, err)
	}
	return tracks, nil
}

// mirrorRemovals creates the removed-tracks playlist on first use and copies
// the removed tracks into it
func (s *DiffFlowImpl) mirrorRemovals(ctx context.Context, playlist *models.TrackedPlaylist, trackIDs []string) error {
	cred, err := resolveCredential(ctx, s.accessRepo, s.client, playlist.UserID)
	if err != nil {
		return err
	}

	mirrorID := ""
	if playlist.HasMirrorPlaylist() {
		mirrorID = *playlist.RemovedPlaylistID
	} else {
		name := fmt.Sprintf("Removed from %s", playlist.PlaylistName)
		description := fmt.Sprintf("Tracks removed from %s, kept by TrackKeeper", playlist.PlaylistName)
		mirrorID, err = s.client.CreatePlaylist(ctx, cred.AccessToken, name, playlist.Public, description)
		if err != nil {
			return fmt.Errorf("failed to create mirror playlist: %w", err)
		}
		if err := s.playlistRepo.SetMirrorPlaylist(ctx, playlist.ID, mirrorID, name); err != nil {
			return err
		}
	}

	return s.client.AddTracks(ctx, cred.AccessToken, mirrorID, trackIDs)
}

func (s *DiffFlowImpl) chainExpiry(ctx context.Context, userID uuid.UUID, playlistID uint) error {
	args := queue.PlaylistJobArgs{UserID: userID, PlaylistID: playlistID}
	if err := s.tasks.Enqueue(ctx, queue.JobExpireSongs, args, 0); err != nil {
		return NewBusinessError("EXPIRY_ENQUEUE_FAILED", "Failed to enqueue expiry job", err)
	}
	return nil
}
