package models

import (
	"time"

	"github.com/google/uuid"
)

// SpotifyAccess holds one OAuth credential set for a user. The most recently
// created row per user is authoritative; token rotation mutates the row in
// place, and a forced-expiry write (expires_at = now) signals "refresh me on
// next use".
type SpotifyAccess struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	AccessToken  string    `gorm:"type:text;not null" json:"access_token"`
	RefreshToken string    `gorm:"type:text;not null" json:"refresh_token"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// IsExpired reports whether the access token needs refreshing as of now
func (sa *SpotifyAccess) IsExpired(now time.Time) bool {
	return !now.Before(sa.ExpiresAt)
}

// TableName specifies the table name for GORM
func (SpotifyAccess) TableName() string {
	return "spotify_access"
}

// SpotifyAccessFilter represents filter criteria for credential queries
type SpotifyAccessFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	ExpiresBefore *time.Time `json:"expires_before,omitempty"`
}
