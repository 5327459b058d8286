package models

import (
	"time"
)

// CachedTrack is denormalized track metadata kept so removal history stays
// viewable after a track disappears from every snapshot. Shared across users,
// keyed by the global track id and upserted idempotently.
type CachedTrack struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"track_id"`

	Name   string  `gorm:"type:varchar(255);not null" json:"name"`
	Artist string  `gorm:"type:varchar(255);not null" json:"artist"`
	Album  string  `gorm:"type:varchar(255);not null" json:"album"`
	Image  *string `gorm:"type:text" json:"image,omitempty"`

	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for GORM
func (CachedTrack) TableName() string {
	return "cached_tracks"
}

// CachedTrackFilter represents filter criteria for cached track queries
type CachedTrackFilter struct {
	ID      *uint   `json:"id,omitempty"`
	TrackID *string `json:"track_id,omitempty"`
	Artist  *string `json:"artist,omitempty"`
}
