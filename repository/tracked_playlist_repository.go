package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackedPlaylistRepositoryImpl implements TrackedPlaylistRepository interface
type TrackedPlaylistRepositoryImpl struct {
	*BaseRepository[models.TrackedPlaylist, models.TrackedPlaylistFilter]
}

// NewTrackedPlaylistRepository creates a new tracked playlist repository
func NewTrackedPlaylistRepository(db *gorm.DB) TrackedPlaylistRepository {
	return &TrackedPlaylistRepositoryImpl{
		BaseRepository: NewBaseRepository[models.TrackedPlaylist, models.TrackedPlaylistFilter](db),
	}
}

// ByUserAndID finds a tracked playlist by internal id scoped to its owner
func (r *TrackedPlaylistRepositoryImpl) ByUserAndID(ctx context.Context, userID uuid.UUID, id uint) (*models.TrackedPlaylist, error) {
	db := r.getDB(ctx)
	var playlist models.TrackedPlaylist
	err := db.Where("user_id = ? AND id = ?", userID, id).Last(&playlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &playlist, nil
}

// ListActiveByUsers returns all active tracked playlists owned by the given users
func (r *TrackedPlaylistRepositoryImpl) ListActiveByUsers(ctx context.Context, userIDs []uuid.UUID) ([]*models.TrackedPlaylist, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var playlists []*models.TrackedPlaylist
	err := db.Where("user_id IN ? AND active = ?", userIDs, true).
		Order("user_id, id").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tracked playlists: %w", err)
	}
	return playlists, nil
}

// SetMirrorPlaylist persists the lazily created removed-tracks playlist reference
func (r *TrackedPlaylistRepositoryImpl) SetMirrorPlaylist(ctx context.Context, id uint, mirrorID, mirrorName string) error {
	db := r.getDB(ctx)
	result := db.Model(&models.TrackedPlaylist{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"removed_playlist_id":   mirrorID,
			"removed_playlist_name": mirrorName,
			"updated_at":            utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set mirror playlist for tracked playlist %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("tracked playlist %d not found", id)
	}
	return nil
}
