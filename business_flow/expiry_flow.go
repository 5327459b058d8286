package businessflow

import (
	"context"
	"log"

	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// ExpiryFlow closes removal records older than the user's retention window
type ExpiryFlow interface {
	// CheckSongExpiry returns the number of records deactivated this run
	CheckSongExpiry(ctx context.Context, userID uuid.UUID, playlistID uint) (int, error)
}

// ExpiryFlowImpl implements ExpiryFlow
type ExpiryFlowImpl struct {
	settingsRepo repository.UserSettingsRepository
	playlistRepo repository.TrackedPlaylistRepository
	deletedRepo  repository.DeletedSongRepository
	accessRepo   repository.SpotifyAccessRepository
	client       services.PlaylistClient
	logger       *log.Logger
}

// NewExpiryFlow creates a new expiry flow instance
func NewExpiryFlow(
	settingsRepo repository.UserSettingsRepository,
	playlistRepo repository.TrackedPlaylistRepository,
	deletedRepo repository.DeletedSongRepository,
	accessRepo repository.SpotifyAccessRepository,
	client services.PlaylistClient,
	logger *log.Logger,
) ExpiryFlow {
	return &ExpiryFlowImpl{
		settingsRepo: settingsRepo,
		playlistRepo: playlistRepo,
		deletedRepo:  deletedRepo,
		accessRepo:   accessRepo,
		client:       client,
		logger:       logger,
	}
}

// CheckSongExpiry deactivates every active removal record whose age exceeds
// the user's retention window. Records are soft-closed, never deleted.
func (s *ExpiryFlowImpl) CheckSongExpiry(ctx context.Context, userID uuid.UUID, playlistID uint) (int, error) {
	settings, err := s.settingsRepo.ByUserID(ctx, userID)
	if err != nil {
		return 0, NewBusinessError("SETTINGS_LOOKUP_FAILED", "Failed to load user settings", err)
	}
	if settings == nil {
		return 0, NewBusinessError("SETTINGS_MISSING", "User settings not found", ErrUserSettingsMissing)
	}

	window, expires := settings.RetentionWindow()
	if !expires {
		return 0, nil
	}

	playlist, err := s.playlistRepo.ByUserAndID(ctx, userID, playlistID)
	if err != nil {
		return 0, NewBusinessError("PLAYLIST_LOOKUP_FAILED", "Failed to lookup tracked playlist", err)
	}
	if playlist == nil {
		return 0, NewBusinessError("PLAYLIST_NOT_TRACKED", "Tracked playlist missing", ErrPlaylistNotTracked)
	}

	active, err := s.deletedRepo.ListActive(ctx, userID, playlistID)
	if err != nil {
		return 0, NewBusinessError("REMOVAL_LOOKUP_FAILED", "Failed to list active removal records", err)
	}

	threshold := utils.UTCNow().Add(-window)
	var expired []*models.DeletedSong
	for _, song := range active {
		if song.IsExpired(threshold) {
			expired = append(expired, song)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	// Mirror removal runs before local deactivation so a mid-failure retry
	// can safely re-attempt both
	if settings.RemoveFromPlaylist && playlist.HasMirrorPlaylist() {
		cred, err := resolveCredential(ctx, s.accessRepo, s.client, userID)
		if err != nil {
			return 0, err
		}
		trackIDs := make([]string, 0, len(expired))
		for _, song := range expired {
			trackIDs = append(trackIDs, song.TrackID)
		}
		if err := s.client.RemoveTracks(ctx, cred.AccessToken, *playlist.RemovedPlaylistID, trackIDs); err != nil {
			return 0, NewBusinessError("MIRROR_REMOVE_FAILED", "Failed to remove expired tracks from mirror playlist", err)
		}
	}

	count := 0
	for _, song := range expired {
		if err := s.deletedRepo.Deactivate(ctx, song.ID); err != nil {
			s.logger.Printf("expiry: failed to deactivate removal %d for user %s: %v", song.ID, userID, err)
			continue
		}
		count++
	}
	s.logger.Printf("expiry: deactivated %d of %d expired removals for user %s playlist %d",
		count, len(expired), userID, playlistID)
	return count, nil
}
