package businessflow

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// digestWindow is how far back the weekly digest looks for removals
const digestWindow = 7 * 24 * time.Hour

// digestMaxTracks bounds the rendered list
const digestMaxTracks = 10

// playlistDenylist names auto-generated playlists whose removals are expected
// churn and never scored as accidental. Matched by prefix so numbered variants
// like "Daily Mix 2" are caught too.
var playlistDenylist = []string{
	"Discover Weekly",
	"Release Radar",
	"Daily Mix",
	"On Repeat",
	"Repeat Rewind",
}

func isDenylistedPlaylist(name string) bool {
	for _, prefix := range playlistDenylist {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DigestFlow assembles and sends the weekly removed-tracks email
type DigestFlow interface {
	// SendSuggestionEmail reports whether a digest was actually sent; an
	// empty removal window is a no-op success
	SendSuggestionEmail(ctx context.Context, userID uuid.UUID) (bool, error)
}

// DigestFlowImpl implements DigestFlow
type DigestFlowImpl struct {
	settingsRepo   repository.UserSettingsRepository
	deletedRepo    repository.DeletedSongRepository
	cachedRepo     repository.CachedTrackRepository
	accessRepo     repository.SpotifyAccessRepository
	client         services.PlaylistClient
	scorer         SuggestionScorer
	sender         services.EmailSender
	tokens         services.UnsubscribeTokenService
	unsubscribeURL string
	logger         *log.Logger
}

// NewDigestFlow creates a new digest flow instance
func NewDigestFlow(
	settingsRepo repository.UserSettingsRepository,
	deletedRepo repository.DeletedSongRepository,
	cachedRepo repository.CachedTrackRepository,
	accessRepo repository.SpotifyAccessRepository,
	client services.PlaylistClient,
	scorer SuggestionScorer,
	sender services.EmailSender,
	tokens services.UnsubscribeTokenService,
	unsubscribeURL string,
	logger *log.Logger,
) DigestFlow {
	return &DigestFlowImpl{
		settingsRepo:   settingsRepo,
		deletedRepo:    deletedRepo,
		cachedRepo:     cachedRepo,
		accessRepo:     accessRepo,
		client:         client,
		scorer:         scorer,
		sender:         sender,
		tokens:         tokens,
		unsubscribeURL: unsubscribeURL,
		logger:         logger,
	}
}

// SendSuggestionEmail windows the user's removals to the last 7 days, ranks
// likely-accidental removals first, and sends at most 10 tracks
func (s *DigestFlowImpl) SendSuggestionEmail(ctx context.Context, userID uuid.UUID) (bool, error) {
	settings, err := s.settingsRepo.ByUserID(ctx, userID)
	if err != nil {
		return false, NewBusinessError("SETTINGS_LOOKUP_FAILED", "Failed to load user settings", err)
	}
	if settings == nil {
		return false, NewBusinessError("SETTINGS_MISSING", "User settings not found", ErrUserSettingsMissing)
	}
	if !settings.SuggestionEmails {
		return false, nil
	}
	if settings.Email == "" {
		return false, NewBusinessError("NO_RECIPIENT", "No email address on record", ErrNoRecipientEmail)
	}

	since := utils.UTCNow().Add(-digestWindow)
	removals, err := s.deletedRepo.ListRemovedSince(ctx, userID, since)
	if err != nil {
		return false, NewBusinessError("REMOVAL_LOOKUP_FAILED", "Failed to load recent removals", err)
	}

	// Auto-generated playlists are expected churn, drop them up front
	candidates := make([]*models.DeletedSong, 0, len(removals))
	for _, song := range removals {
		if isDenylistedPlaylist(song.TrackedPlaylist.PlaylistName) {
			continue
		}
		candidates = append(candidates, song)
	}
	if len(candidates) == 0 {
		s.logger.Printf("digest: no candidate removals for user %s, skipping email", userID)
		return false, nil
	}

	suggestions, err := s.scoreCandidates(ctx, userID, candidates)
	if err != nil {
		// Suggestions are an enhancement; the digest still goes out
		s.logger.Printf("digest: scoring failed for user %s, sending unranked digest: %v", userID, err)
		suggestions = nil
	}

	tracks, err := s.assembleTracks(ctx, candidates, suggestions)
	if err != nil {
		return false, err
	}

	token, err := s.tokens.GenerateUnsubscribeToken(userID)
	if err != nil {
		return false, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate unsubscribe token", err)
	}

	email := services.DigestEmail{
		To:             settings.Email,
		Tracks:         tracks,
		UnsubscribeURL: fmt.Sprintf("%s?token=%s", s.unsubscribeURL, url.QueryEscape(token)),
	}
	if err := s.sender.SendDigest(ctx, email); err != nil {
		return false, NewBusinessError("DIGEST_SEND_FAILED", "Failed to send digest email", err)
	}
	s.logger.Printf("digest: sent %d tracks to user %s", len(tracks), userID)
	return true, nil
}

func (s *DigestFlowImpl) scoreCandidates(ctx context.Context, userID uuid.UUID, candidates []*models.DeletedSong) ([]Suggestion, error) {
	cred, err := resolveCredential(ctx, s.accessRepo, s.client, userID)
	if err != nil {
		return nil, err
	}
	trackIDs := make([]string, 0, len(candidates))
	for _, song := range candidates {
		trackIDs = append(trackIDs, song.TrackID)
	}
	return s.scorer.SuggestAccidentallyRemoved(ctx, cred.AccessToken, trackIDs, DefaultSimilarityThreshold)
}

// assembleTracks orders suggested tracks first in scorer order, then the
// remainder with liked-songs removals ahead of the rest, oldest first, and
// truncates to the digest limit
func (s *DigestFlowImpl) assembleTracks(ctx context.Context, candidates []*models.DeletedSong, suggestions []Suggestion) ([]services.DigestTrack, error) {
	// The same track can be removed from several playlists in one window, so
	// a suggestion fans out to every matching removal row
	byTrackID := make(map[string][]*models.DeletedSong, len(candidates))
	trackIDs := make([]string, 0, len(candidates))
	for _, song := range candidates {
		byTrackID[song.TrackID] = append(byTrackID[song.TrackID], song)
		trackIDs = append(trackIDs, song.TrackID)
	}

	cached, err := s.cachedRepo.ByTrackIDs(ctx, trackIDs)
	if err != nil {
		return nil, NewBusinessError("METADATA_LOOKUP_FAILED", "Failed to load cached track metadata", err)
	}
	metadata := make(map[string]*models.CachedTrack, len(cached))
	for _, track := range cached {
		metadata[track.TrackID] = track
	}

	suggested := make(map[string]bool, len(suggestions))
	ordered := make([]*models.DeletedSong, 0, len(candidates))
	for _, suggestion := range suggestions {
		for _, song := range byTrackID[suggestion.TrackID] {
			ordered = append(ordered, song)
			suggested[suggestion.TrackID] = true
		}
	}

	remainder := make([]*models.DeletedSong, 0, len(candidates))
	for _, song := range candidates {
		if !suggested[song.TrackID] {
			remainder = append(remainder, song)
		}
	}
	sort.SliceStable(remainder, func(i, j int) bool {
		li, lj := remainder[i].TrackedPlaylist.IsLikedSongs(), remainder[j].TrackedPlaylist.IsLikedSongs()
		if li != lj {
			return li
		}
		return remainder[i].RemovedAt.Before(remainder[j].RemovedAt)
	})
	ordered = append(ordered, remainder...)

	if len(ordered) > digestMaxTracks {
		ordered = ordered[:digestMaxTracks]
	}

	tracks := make([]services.DigestTrack, 0, len(ordered))
	for _, song := range ordered {
		track := services.DigestTrack{
			Name:         song.TrackID,
			PlaylistName: song.TrackedPlaylist.PlaylistName,
			RemovedAt:    song.RemovedAt,
			Suggested:    suggested[song.TrackID],
		}
		if meta, ok := metadata[song.TrackID]; ok {
			track.Name = meta.Name
			track.Artist = meta.Artist
			track.Album = meta.Album
			if meta.Image != nil {
				track.Image = *meta.Image
			}
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}
