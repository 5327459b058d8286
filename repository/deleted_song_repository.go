package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeletedSongRepositoryImpl implements DeletedSongRepository interface
type DeletedSongRepositoryImpl struct {
	*BaseRepository[models.DeletedSong, models.DeletedSongFilter]
}

// NewDeletedSongRepository creates a new deleted song repository
func NewDeletedSongRepository(db *gorm.DB) DeletedSongRepository {
	return &DeletedSongRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeletedSong, models.DeletedSongFilter](db),
	}
}

// UpsertBatch inserts removal records keyed by (track_id, user_id, playlist_id).
// Conflicts are ignored: a re-run of the same diff creates no duplicates, and a
// previously expired (active=false) row is not reactivated.
func (r *DeletedSongRepositoryImpl) UpsertBatch(ctx context.Context, songs []*models.DeletedSong) error {
	if len(songs) == 0 {
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
		Columns:   []clause.Column{{Name: "track_id"}, {Name: "user_id"}, {Name: "playlist_id"}},
		DoNothing: true,
	}).CreateInBatches(songs, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert deleted songs: %w", err)
	}

	return nil
}

// ListActive returns all open removal records for a (user, playlist) pair
func (r *DeletedSongRepositoryImpl) ListActive(ctx context.Context, userID uuid.UUID, playlistID uint) ([]*models.DeletedSong, error) {
	db := r.getDB(ctx)
	var songs []*models.DeletedSong
	err := db.Where("user_id = ? AND playlist_id = ? AND active = ?", userID, playlistID, true).
		Order("removed_at").
		Find(&songs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active deleted songs: %w", err)
	}
	return songs, nil
}

// ListRemovedSince returns the user's removal records newer than the given time,
// with the owning tracked playlist preloaded for digest assembly
func (r *DeletedSongRepositoryImpl) ListRemovedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.DeletedSong, error) {
	db := r.getDB(ctx)
	var songs []*models.DeletedSong
	err := db.Preload("TrackedPlaylist").
		Where("user_id = ? AND removed_at >= ?", userID, since).
		Order("removed_at").
		Find(&songs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list removed songs since %s: %w", since, err)
	}
	return songs, nil
}

// Deactivate soft-closes one removal record. The row is kept for history.
func (r *DeletedSongRepositoryImpl) Deactivate(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	result := db.Model(&models.DeletedSong{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate deleted song %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("deleted song %d not found", id)
	}
	return nil
}
