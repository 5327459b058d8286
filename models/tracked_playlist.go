package models

import (
	"time"

	"github.com/google/uuid"
)

// LikedSongsPlaylistID is the sentinel external id for the virtual "Liked Songs" playlist
const LikedSongsPlaylistID = "liked_songs"

// TrackedPlaylist represents a playlist a user has asked us to monitor for removals
type TrackedPlaylist struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	// External playlist identity; PlaylistID is the sentinel "liked_songs" for the virtual collection
	PlaylistID   string `gorm:"type:varchar(64);not null" json:"playlist_id"`
	PlaylistName string `gorm:"type:varchar(255);not null" json:"playlist_name"`
	LikedSongs   bool   `gorm:"not null;default:false" json:"liked_songs"`
	Active       bool   `gorm:"not null;default:true;index" json:"active"`
	Public       bool   `gorm:"not null;default:false" json:"public"`

	// Mirror playlist holding copies of removed tracks; created lazily on first
	// detected removal, at most one per tracked playlist
	RemovedPlaylistID   *string    `gorm:"type:varchar(64)" json:"removed_playlist_id,omitempty"`
	RemovedPlaylistName *string    `gorm:"type:varchar(255)" json:"removed_playlist_name,omitempty"`
	RemovedAt           *time.Time `json:"removed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// HasMirrorPlaylist reports whether the removed-tracks mirror playlist exists
func (tp *TrackedPlaylist) HasMirrorPlaylist() bool {
	return tp.RemovedPlaylistID != nil && *tp.RemovedPlaylistID != ""
}

// IsLikedSongs reports whether this row tracks the virtual "Liked Songs" collection
func (tp *TrackedPlaylist) IsLikedSongs() bool {
	return tp.LikedSongs || tp.PlaylistID == LikedSongsPlaylistID
}

// TableName specifies the table name for GORM
func (TrackedPlaylist) TableName() string {
	return "tracked_playlists"
}

// TrackedPlaylistFilter represents filter criteria for tracked playlist queries
type TrackedPlaylistFilter struct {
	ID         *uint      `json:"id,omitempty"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	PlaylistID *string    `json:"playlist_id,omitempty"`
	LikedSongs *bool      `json:"liked_songs,omitempty"`
	Active     *bool      `json:"active,omitempty"`
}
