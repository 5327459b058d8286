package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdmurray/trackkeeper/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CachedTrackRepositoryImpl implements CachedTrackRepository interface
type CachedTrackRepositoryImpl struct {
	*BaseRepository[models.CachedTrack, models.CachedTrackFilter]
}

// NewCachedTrackRepository creates a new cached track repository
func NewCachedTrackRepository(db *gorm.DB) CachedTrackRepository {
	return &CachedTrackRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CachedTrack, models.CachedTrackFilter](db),
	}
}

// ByTrackID finds a cached track by its external track id
func (r *CachedTrackRepositoryImpl) ByTrackID(ctx context.Context, trackID string) (*models.CachedTrack, error) {
	db := r.getDB(ctx)
	var track models.CachedTrack
	err := db.Where("track_id = ?", trackID).Last(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// ByTrackIDs returns cached metadata for the given external track ids
func (r *CachedTrackRepositoryImpl) ByTrackIDs(ctx context.Context, trackIDs []string) ([]*models.CachedTrack, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var tracks []*models.CachedTrack
	err := db.Where("track_id IN ?", trackIDs).Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cached tracks: %w", err)
	}
	return tracks, nil
}

// UpsertBatch inserts or refreshes cached track metadata keyed by track_id.
// Safe to run repeatedly for the same tracks.
func (r *CachedTrackRepositoryImpl) UpsertBatch(ctx context.Context, tracks []*models.CachedTrack) error {
	if len(tracks) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "artist", "album", "image", "updated_at"}),
	}).CreateInBatches(tracks, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cached tracks: %w", err)
	}

	return nil
}
