package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SnapshotRepositoryImpl implements SnapshotRepository interface
type SnapshotRepositoryImpl struct {
	*BaseRepository[models.Snapshot, models.SnapshotFilter]
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &SnapshotRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Snapshot, models.SnapshotFilter](db),
	}
}

// Latest returns the most recent snapshot for a (user, playlist) pair
func (r *SnapshotRepositoryImpl) Latest(ctx context.Context, userID uuid.UUID, playlistID uint) (*models.Snapshot, error) {
	db := r.getDB(ctx)
	var snapshot models.Snapshot
	err := db.Where("user_id = ? AND playlist_id = ?", userID, playlistID).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// LatestN returns the n most recent snapshots for a (user, playlist) pair, newest first
func (r *SnapshotRepositoryImpl) LatestN(ctx context.Context, userID uuid.UUID, playlistID uint, n int) ([]*models.Snapshot, error) {
	db := r.getDB(ctx)
	var snapshots []*models.Snapshot
	err := db.Where("user_id = ? AND playlist_id = ?", userID, playlistID).
		Order("created_at DESC").
		Limit(n).
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest %d snapshots: %w", n, err)
	}
	return snapshots, nil
}
