package models

import (
	"time"

	"github.com/google/uuid"
)

// Playlist persistence options
const (
	PersistenceForever = "forever"
	Persistence30Days  = "30 days"
	Persistence90Days  = "90 days"
	Persistence180Days = "180 days"
	Persistence1Year   = "1 year"
)

// RetentionDays maps a persistence option to its retention window in days.
// PersistenceForever is deliberately absent: it disables expiry entirely.
var RetentionDays = map[string]int{
	Persistence30Days:  30,
	Persistence90Days:  90,
	Persistence180Days: 180,
	Persistence1Year:   365,
}

// UserSettings holds per-user configuration for snapshotting, retention, and
// digest emails. Email is denormalized here so batch jobs never reach into the
// auth schema.
type UserSettings struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Email  string    `gorm:"type:varchar(255);not null" json:"email"`

	PlaylistPersistence string `gorm:"type:varchar(20);not null;default:'forever'" json:"playlist_persistence"`
	SnapshotsEnabled    bool   `gorm:"not null;default:true" json:"snapshots_enabled"`
	SuggestionEmails    bool   `gorm:"not null;default:true" json:"suggestion_emails"`

	// RemoveFromPlaylist controls whether expired songs are also removed from
	// the mirror playlist
	RemoveFromPlaylist bool `gorm:"not null;default:false" json:"remove_from_playlist"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// RetentionWindow returns the retention window and whether expiry applies at all
func (us *UserSettings) RetentionWindow() (time.Duration, bool) {
	days, ok := RetentionDays[us.PlaylistPersistence]
	if !ok {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// TableName specifies the table name for GORM
func (UserSettings) TableName() string {
	return "user_settings"
}

// UserSettingsFilter represents filter criteria for user settings queries
type UserSettingsFilter struct {
	ID               *uint      `json:"id,omitempty"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	SnapshotsEnabled *bool      `json:"snapshots_enabled,omitempty"`
	SuggestionEmails *bool      `json:"suggestion_emails,omitempty"`
}
