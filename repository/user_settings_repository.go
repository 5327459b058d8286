package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSettingsRepositoryImpl implements UserSettingsRepository interface
type UserSettingsRepositoryImpl struct {
	*BaseRepository[models.UserSettings, models.UserSettingsFilter]
}

// NewUserSettingsRepository creates a new user settings repository
func NewUserSettingsRepository(db *gorm.DB) UserSettingsRepository {
	return &UserSettingsRepositoryImpl{
		BaseRepository: NewBaseRepository[models.UserSettings, models.UserSettingsFilter](db),
	}
}

// ByUserID finds the settings row for a user
func (r *UserSettingsRepositoryImpl) ByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	db := r.getDB(ctx)
	var settings models.UserSettings
	err := db.Where("user_id = ?", userID).Last(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// ListSnapshotsEnabled returns settings for every user with snapshotting on
func (r *UserSettingsRepositoryImpl) ListSnapshotsEnabled(ctx context.Context) ([]*models.UserSettings, error) {
	db := r.getDB(ctx)
	var settings []*models.UserSettings
	err := db.Where("snapshots_enabled = ?", true).Order("user_id").Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot-enabled users: %w", err)
	}
	return settings, nil
}

// ListSuggestionOptIn returns settings for every user subscribed to digest emails
func (r *UserSettingsRepositoryImpl) ListSuggestionOptIn(ctx context.Context) ([]*models.UserSettings, error) {
	db := r.getDB(ctx)
	var settings []*models.UserSettings
	err := db.Where("suggestion_emails = ?", true).Order("user_id").Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestion opt-in users: %w", err)
	}
	return settings, nil
}
