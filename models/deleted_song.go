package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedSong records one track observed missing from one tracked playlist for
// one user. The composite unique index is the natural key for idempotent
// upserts; rows are soft-closed by the expiry checker and never deleted.
type DeletedSong struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_deleted_songs_natural_key" json:"user_id"`
	TrackID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_deleted_songs_natural_key" json:"track_id"`
	PlaylistID uint      `gorm:"not null;uniqueIndex:idx_deleted_songs_natural_key" json:"playlist_id"`

	RemovedAt time.Time `gorm:"not null;index" json:"removed_at"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	TrackedPlaylist TrackedPlaylist `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"tracked_playlist,omitempty"`
}

// IsExpired reports whether the removal is older than the given threshold
func (ds *DeletedSong) IsExpired(threshold time.Time) bool {
	return !ds.RemovedAt.After(threshold)
}

// TableName specifies the table name for GORM
func (DeletedSong) TableName() string {
	return "deleted_songs"
}

// DeletedSongFilter represents filter criteria for deleted song queries
type DeletedSongFilter struct {
	ID           *uint      `json:"id,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	TrackID      *string    `json:"track_id,omitempty"`
	PlaylistID   *uint      `json:"playlist_id,omitempty"`
	Active       *bool      `json:"active,omitempty"`
	RemovedAfter *time.Time `json:"removed_after,omitempty"`
}
