// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// TrackedPlaylistRepository defines operations for tracked playlists
type TrackedPlaylistRepository interface {
	Repository[models.TrackedPlaylist, models.TrackedPlaylistFilter]
	ByUserAndID(ctx context.Context, userID uuid.UUID, id uint) (*models.TrackedPlaylist, error)
	ListActiveByUsers(ctx context.Context, userIDs []uuid.UUID) ([]*models.TrackedPlaylist, error)
	SetMirrorPlaylist(ctx context.Context, id uint, mirrorID, mirrorName string) error
}

// SnapshotRepository defines operations for library snapshots
type SnapshotRepository interface {
	Repository[models.Snapshot, models.SnapshotFilter]
	Latest(ctx context.Context, userID uuid.UUID, playlistID uint) (*models.Snapshot, error)
	LatestN(ctx context.Context, userID uuid.UUID, playlistID uint, n int) ([]*models.Snapshot, error)
}

// CachedTrackRepository defines operations for the shared track metadata cache
type CachedTrackRepository interface {
	Repository[models.CachedTrack, models.CachedTrackFilter]
	ByTrackID(ctx context.Context, trackID string) (*models.CachedTrack, error)
	ByTrackIDs(ctx context.Context, trackIDs []string) ([]*models.CachedTrack, error)
	UpsertBatch(ctx context.Context, tracks []*models.CachedTrack) error
}

// DeletedSongRepository defines operations for removal records
type DeletedSongRepository interface {
	Repository[models.DeletedSong, models.DeletedSongFilter]
	UpsertBatch(ctx context.Context, songs []*models.DeletedSong) error
	ListActive(ctx context.Context, userID uuid.UUID, playlistID uint) ([]*models.DeletedSong, error)
	ListRemovedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.DeletedSong, error)
	Deactivate(ctx context.Context, id uint) error
}

// UserSettingsRepository defines operations for per-user settings
type UserSettingsRepository interface {
	Repository[models.UserSettings, models.UserSettingsFilter]
	ByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
	ListSnapshotsEnabled(ctx context.Context) ([]*models.UserSettings, error)
	ListSuggestionOptIn(ctx context.Context) ([]*models.UserSettings, error)
}

// SpotifyAccessRepository defines operations for Spotify credentials
type SpotifyAccessRepository interface {
	Repository[models.SpotifyAccess, models.SpotifyAccessFilter]
	LatestByUser(ctx context.Context, userID uuid.UUID) (*models.SpotifyAccess, error)
	UpdateTokens(ctx context.Context, id uint, accessToken string, expiresAt time.Time) error
	ForceExpire(ctx context.Context, id uint, now time.Time) error
}
