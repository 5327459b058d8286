package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackedPlaylistIsLikedSongs(t *testing.T) {
	assert.True(t, (&TrackedPlaylist{LikedSongs: true}).IsLikedSongs())
	assert.True(t, (&TrackedPlaylist{PlaylistID: LikedSongsPlaylistID}).IsLikedSongs())
	assert.False(t, (&TrackedPlaylist{PlaylistID: "regular-playlist"}).IsLikedSongs())
}

func TestTrackedPlaylistHasMirrorPlaylist(t *testing.T) {
	id := "mirror-1"
	empty := ""

	assert.True(t, (&TrackedPlaylist{RemovedPlaylistID: &id}).HasMirrorPlaylist())
	assert.False(t, (&TrackedPlaylist{RemovedPlaylistID: &empty}).HasMirrorPlaylist())
	assert.False(t, (&TrackedPlaylist{}).HasMirrorPlaylist())
}
