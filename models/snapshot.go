package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable point-in-time record of a playlist's track list.
// The track payload itself lives in blob storage under SnapshotID; rows here
// are append-only and never updated or deleted.
type Snapshot struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_snapshots_user_playlist" json:"user_id"`
	PlaylistID uint      `gorm:"not null;index:idx_snapshots_user_playlist" json:"playlist_id"`
	SongCount  int       `gorm:"not null" json:"song_count"`

	// SnapshotID is the blob store object path of the compressed track list
	SnapshotID string `gorm:"type:varchar(255);not null" json:"snapshot_id"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`

	TrackedPlaylist TrackedPlaylist `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"tracked_playlist,omitempty"`
}

// TableName specifies the table name for GORM
func (Snapshot) TableName() string {
	return "library_snapshots"
}

// SnapshotFilter represents filter criteria for snapshot queries
type SnapshotFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	PlaylistID    *uint      `json:"playlist_id,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// SnapshotTrack is one entry of a snapshot blob: the simplified track record
// serialized to JSON and gzip-compressed before upload.
type SnapshotTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Image   string `json:"image"`
	AddedAt string `json:"added_at"`
}
