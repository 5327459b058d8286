package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SpotifyAccessRepositoryImpl implements SpotifyAccessRepository interface
type SpotifyAccessRepositoryImpl struct {
	*BaseRepository[models.SpotifyAccess, models.SpotifyAccessFilter]
}

// NewSpotifyAccessRepository creates a new Spotify credential repository
func NewSpotifyAccessRepository(db *gorm.DB) SpotifyAccessRepository {
	return &SpotifyAccessRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SpotifyAccess, models.SpotifyAccessFilter](db),
	}
}

// LatestByUser returns the most recently created credential row for a user.
// Older rows may exist after re-authorization; only the newest is authoritative.
func (r *SpotifyAccessRepositoryImpl) LatestByUser(ctx context.Context, userID uuid.UUID) (*models.SpotifyAccess, error) {
	db := r.getDB(ctx)
	var access models.SpotifyAccess
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&access).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch spotify access: %w", err)
	}
	return &access, nil
}

// UpdateTokens rotates the access token in place after a refresh
func (r *SpotifyAccessRepositoryImpl) UpdateTokens(ctx context.Context, id uint, accessToken string, expiresAt time.Time) error {
	db := r.getDB(ctx)
	result := db.Model(&models.SpotifyAccess{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": accessToken,
			"expires_at":   expiresAt,
			"updated_at":   utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update spotify tokens for credential %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("spotify credential %d not found", id)
	}
	return nil
}

// ForceExpire marks the credential as expired so the next user forces a refresh
func (r *SpotifyAccessRepositoryImpl) ForceExpire(ctx context.Context, id uint, now time.Time) error {
	db := r.getDB(ctx)
	result := db.Model(&models.SpotifyAccess{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"expires_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to force-expire spotify credential %d: %w", id, result.Error)
	}
	return nil
}
