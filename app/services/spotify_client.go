// Package services provides external service integrations and technical concerns like playlist access, storage, email, and tokens
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// PlaylistClient is the playlist-service boundary consumed by the snapshot,
// diff, and expiry flows. The access token is passed per call because every
// job resolves its own credential row.
type PlaylistClient interface {
	ListPlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]models.SnapshotTrack, error)
	ListLikedTracks(ctx context.Context, accessToken string) ([]models.SnapshotTrack, error)
	CreatePlaylist(ctx context.Context, accessToken, name string, public bool, description string) (string, error)
	AddTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error
	RemoveTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error
	RefreshCredential(ctx context.Context, refreshToken string) (string, time.Time, error)
}

// TrackInfo identifies a track and its primary artist for similarity scoring
type TrackInfo struct {
	ID         string
	Name       string
	ArtistID   string
	ArtistName string
}

// ArtistInfo identifies an artist from the user's listening profile
type ArtistInfo struct {
	ID   string
	Name string
}

// AudioFeatures is the 9-dimensional audio feature vector plus key and mode
type AudioFeatures struct {
	Danceability     float64
	Energy           float64
	Loudness         float64
	Speechiness      float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Valence          float64
	Tempo            float64
	Key              int
	Mode             int
}

// Vector returns the feature components in scoring order
func (f AudioFeatures) Vector() [9]float64 {
	return [9]float64{
		f.Danceability, f.Energy, f.Loudness, f.Speechiness, f.Acousticness,
		f.Instrumentalness, f.Liveness, f.Valence, f.Tempo,
	}
}

// ListeningProfileClient exposes the user's taste profile for the suggestion scorer
type ListeningProfileClient interface {
	TopTracks(ctx context.Context, accessToken string, limit int) ([]TrackInfo, error)
	TopArtists(ctx context.Context, accessToken string, limit int) ([]ArtistInfo, error)
	GetTracks(ctx context.Context, accessToken string, trackIDs []string) ([]TrackInfo, error)
	GetAudioFeatures(ctx context.Context, accessToken string, trackIDs []string) (map[string]AudioFeatures, error)
	GetArtistGenres(ctx context.Context, accessToken string, artistIDs []string) (map[string][]string, error)
}

// ErrUpstreamAuth marks playlist-service failures that are most likely an
// invalid or expired credential; callers force-expire and retry.
var ErrUpstreamAuth = errors.New("playlist service rejected credential")

// IsUpstreamAuthError reports whether the error warrants a credential refresh
func IsUpstreamAuthError(err error) bool {
	if errors.Is(err, ErrUpstreamAuth) {
		return true
	}
	var spErr spotify.Error
	if errors.As(err, &spErr) {
		return spErr.Status == 401 || spErr.Status == 403 || spErr.Status == 429
	}
	return false
}

// SpotifyClient implements PlaylistClient and ListeningProfileClient on the
// Spotify Web API
type SpotifyClient struct {
	auth    *spotifyauth.Authenticator
	timeout time.Duration
}

// NewSpotifyClient creates a Spotify client with application credentials used
// for token refresh
func NewSpotifyClient(clientID, clientSecret string, timeout time.Duration) *SpotifyClient {
	return &SpotifyClient{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(clientID),
			spotifyauth.WithClientSecret(clientSecret),
		),
		timeout: timeout,
	}
}

// client builds an API client bound to one user's access token
func (s *SpotifyClient) client(ctx context.Context, accessToken string) *spotify.Client {
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	httpClient := s.auth.Client(ctx, token)
	if s.timeout > 0 {
		httpClient.Timeout = s.timeout
	}
	return spotify.New(httpClient)
}

const (
	playlistPageLimit = 100
	likedPageLimit    = 50
	idBatchLimit      = 50
	featureBatchLimit = 100
)

// ListPlaylistTracks fetches the full track list of a playlist, paging
// sequentially until the upstream returns no more items
func (s *SpotifyClient) ListPlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]models.SnapshotTrack, error) {
	client := s.client(ctx, accessToken)

	var all []models.SnapshotTrack
	offset := 0
	for {
		page, err := client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(playlistPageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch playlist %s items at offset %d: %w", playlistID, offset, err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			if item.Track.Track == nil {
				continue // episode or local file
			}
			all = append(all, snapshotTrackFromFull(item.Track.Track, item.AddedAt))
		}
		offset += playlistPageLimit
	}
	return all, nil
}

// ListLikedTracks fetches the user's saved tracks ("Liked Songs")
func (s *SpotifyClient) ListLikedTracks(ctx context.Context, accessToken string) ([]models.SnapshotTrack, error) {
	client := s.client(ctx, accessToken)

	var all []models.SnapshotTrack
	offset := 0
	for {
		page, err := client.CurrentUsersTracks(ctx, spotify.Limit(likedPageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch liked songs at offset %d: %w", offset, err)
		}
		if len(page.Tracks) == 0 {
			break
		}
		for _, saved := range page.Tracks {
			all = append(all, snapshotTrackFromFull(&saved.FullTrack, saved.AddedAt))
		}
		offset += likedPageLimit
	}
	return all, nil
}

// CreatePlaylist creates a playlist on the user's account and returns its id.
// The account is resolved from the token itself.
func (s *SpotifyClient) CreatePlaylist(ctx context.Context, accessToken, name string, public bool, description string) (string, error) {
	client := s.client(ctx, accessToken)
	me, err := client.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve current user: %w", err)
	}
	playlist, err := client.CreatePlaylistForUser(ctx, me.ID, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("failed to create playlist %q: %w", name, err)
	}
	return string(playlist.ID), nil
}

// AddTracks adds tracks to a playlist in API-sized batches. Tracks already
// present are accepted by the upstream and not treated as errors.
func (s *SpotifyClient) AddTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	client := s.client(ctx, accessToken)
	for _, batch := range batchIDs(trackIDs, playlistPageLimit) {
		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...); err != nil {
			return fmt.Errorf("failed to add %d tracks to playlist %s: %w", len(batch), playlistID, err)
		}
	}
	return nil
}

// RemoveTracks removes tracks from a playlist in API-sized batches
func (s *SpotifyClient) RemoveTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	client := s.client(ctx, accessToken)
	for _, batch := range batchIDs(trackIDs, playlistPageLimit) {
		if _, err := client.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), batch...); err != nil {
			return fmt.Errorf("failed to remove %d tracks from playlist %s: %w", len(batch), playlistID, err)
		}
	}
	return nil
}

// RefreshCredential exchanges a refresh token for a new access token
func (s *SpotifyClient) RefreshCredential(ctx context.Context, refreshToken string) (string, time.Time, error) {
	token, err := s.auth.RefreshToken(ctx, &oauth2.Token{RefreshToken: refreshToken})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to refresh access token: %w", err)
	}
	return token.AccessToken, token.Expiry.UTC(), nil
}

// TopTracks returns the user's most listened tracks
func (s *SpotifyClient) TopTracks(ctx context.Context, accessToken string, limit int) ([]TrackInfo, error) {
	client := s.client(ctx, accessToken)
	page, err := client.CurrentUsersTopTracks(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top tracks: %w", err)
	}
	tracks := make([]TrackInfo, 0, len(page.Tracks))
	for i := range page.Tracks {
		tracks = append(tracks, trackInfoFromFull(&page.Tracks[i]))
	}
	return tracks, nil
}

// TopArtists returns the user's most listened artists
func (s *SpotifyClient) TopArtists(ctx context.Context, accessToken string, limit int) ([]ArtistInfo, error) {
	client := s.client(ctx, accessToken)
	page, err := client.CurrentUsersTopArtists(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top artists: %w", err)
	}
	artists := make([]ArtistInfo, 0, len(page.Artists))
	for _, a := range page.Artists {
		artists = append(artists, ArtistInfo{ID: string(a.ID), Name: a.Name})
	}
	return artists, nil
}

// GetTracks fetches full track info for a list of track ids
func (s *SpotifyClient) GetTracks(ctx context.Context, accessToken string, trackIDs []string) ([]TrackInfo, error) {
	client := s.client(ctx, accessToken)
	var out []TrackInfo
	for _, batch := range batchIDs(trackIDs, idBatchLimit) {
		tracks, err := client.GetTracks(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %d tracks: %w", len(batch), err)
		}
		for _, t := range tracks {
			if t == nil {
				continue
			}
			out = append(out, trackInfoFromFull(t))
		}
	}
	return out, nil
}

// GetAudioFeatures fetches audio features keyed by track id
func (s *SpotifyClient) GetAudioFeatures(ctx context.Context, accessToken string, trackIDs []string) (map[string]AudioFeatures, error) {
	client := s.client(ctx, accessToken)
	out := make(map[string]AudioFeatures, len(trackIDs))
	for _, batch := range batchIDs(trackIDs, featureBatchLimit) {
		features, err := client.GetAudioFeatures(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch audio features for %d tracks: %w", len(batch), err)
		}
		for _, f := range features {
			if f == nil {
				continue
			}
			out[string(f.ID)] = AudioFeatures{
				Danceability:     float64(f.Danceability),
				Energy:           float64(f.Energy),
				Loudness:         float64(f.Loudness),
				Speechiness:      float64(f.Speechiness),
				Acousticness:     float64(f.Acousticness),
				Instrumentalness: float64(f.Instrumentalness),
				Liveness:         float64(f.Liveness),
				Valence:          float64(f.Valence),
				Tempo:            float64(f.Tempo),
				Key:              int(f.Key),
				Mode:             int(f.Mode),
			}
		}
	}
	return out, nil
}

// GetArtistGenres fetches each artist's genre set keyed by artist id
func (s *SpotifyClient) GetArtistGenres(ctx context.Context, accessToken string, artistIDs []string) (map[string][]string, error) {
	client := s.client(ctx, accessToken)
	out := make(map[string][]string, len(artistIDs))
	for _, batch := range batchIDs(artistIDs, idBatchLimit) {
		artists, err := client.GetArtists(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %d artists: %w", len(batch), err)
		}
		for _, a := range artists {
			if a == nil {
				continue
			}
			out[string(a.ID)] = a.Genres
		}
	}
	return out, nil
}

func snapshotTrackFromFull(t *spotify.FullTrack, addedAt string) models.SnapshotTrack {
	track := models.SnapshotTrack{
		ID:      string(t.ID),
		Name:    t.Name,
		Album:   t.Album.Name,
		AddedAt: addedAt,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		track.Image = t.Album.Images[0].URL
	}
	return track
}

func trackInfoFromFull(t *spotify.FullTrack) TrackInfo {
	info := TrackInfo{ID: string(t.ID), Name: t.Name}
	if len(t.Artists) > 0 {
		info.ArtistID = string(t.Artists[0].ID)
		info.ArtistName = t.Artists[0].Name
	}
	return info
}

func batchIDs(ids []string, size int) [][]spotify.ID {
	var batches [][]spotify.ID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batch := make([]spotify.ID, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, spotify.ID(id))
		}
		batches = append(batches, batch)
	}
	return batches
}
