package businessflow

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/gdmurray/trackkeeper/app/services"
)

// Similarity component weights. Fixed constants, not learned: the scorer is a
// heuristic ranking, not a classifier.
const (
	weightFeature = 0.4
	weightKey     = 0.1
	weightMode    = 0.05
	weightArtist  = 0.25
	weightGenre   = 0.2
)

// DefaultSimilarityThreshold is the minimum max-similarity for a removed
// track to be flagged as likely accidental
const DefaultSimilarityThreshold = 0.7

// TrackProfile bundles everything the similarity function needs about one track
type TrackProfile struct {
	TrackID  string
	ArtistID string
	Features services.AudioFeatures
	Genres   []string
}

// TrackSimilarity computes the weighted similarity of two tracks given the
// user's top-artist set. The feature component standardizes both vectors
// against the first track's features before measuring euclidean distance.
func TrackSimilarity(a, b TrackProfile, topArtists map[string]struct{}) float64 {
	return weightFeature*featureSimilarity(a.Features, b.Features) +
		weightKey*keySimilarity(a.Features.Key, b.Features.Key) +
		weightMode*modeSimilarity(a.Features.Mode, b.Features.Mode) +
		weightArtist*artistSimilarity(a.ArtistID, b.ArtistID, topArtists) +
		weightGenre*genreSimilarity(a.Genres, b.Genres)
}

func featureSimilarity(a, b services.AudioFeatures) float64 {
	// Both vectors are standardized against the first track's features; a
	// single-sample fit centers on that vector with unit scale, so the
	// centering cancels in the difference
	va, vb := a.Vector(), b.Vector()
	var sum float64
	for i := range va {
		d := va[i] - vb[i]
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

func keySimilarity(a, b int) float64 {
	d := math.Abs(float64(a - b))
	if d > 6 {
		d = 12 - d // pitch-class circle wraps at 12
	}
	return 1 - d/6
}

func modeSimilarity(a, b int) float64 {
	if a == b {
		return 1
	}
	return 0
}

func artistSimilarity(a, b string, topArtists map[string]struct{}) float64 {
	if a == b {
		return 1
	}
	_, aTop := topArtists[a]
	_, bTop := topArtists[b]
	switch {
	case aTop && bTop:
		return 0.8
	case aTop || bTop:
		return 0.5
	default:
		return 0
	}
}

func genreSimilarity(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[g] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		setB[g] = struct{}{}
	}
	intersection := 0
	for g := range setA {
		if _, ok := setB[g]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union < 1 {
		union = 1
	}
	return float64(intersection) / float64(union)
}

// Suggestion is one removed track flagged as likely accidental
type Suggestion struct {
	TrackID   string
	MaxScore  float64
	MeanScore float64
}

// SuggestionScorer ranks removed tracks by similarity to the user's listening
// profile
type SuggestionScorer interface {
	SuggestAccidentallyRemoved(ctx context.Context, accessToken string, removedTrackIDs []string, threshold float64) ([]Suggestion, error)
}

// SuggestionScorerImpl implements SuggestionScorer
type SuggestionScorerImpl struct {
	profile  services.ListeningProfileClient
	topLimit int
	logger   *log.Logger
}

// NewSuggestionScorer creates a scorer over the given listening profile source
func NewSuggestionScorer(profile services.ListeningProfileClient, logger *log.Logger) SuggestionScorer {
	return &SuggestionScorerImpl{
		profile:  profile,
		topLimit: 50,
		logger:   logger,
	}
}

// profileCache holds the listening-profile data fetched once per invocation.
// Never shared across users or calls.
type profileCache struct {
	removed    []services.TrackInfo
	topTracks  []services.TrackInfo
	topArtists map[string]struct{}
	features   map[string]services.AudioFeatures
	genres     map[string][]string
}

func (c *profileCache) trackProfile(t services.TrackInfo) TrackProfile {
	return TrackProfile{
		TrackID:  t.ID,
		ArtistID: t.ArtistID,
		Features: c.features[t.ID],
		Genres:   c.genres[t.ArtistID],
	}
}

// SuggestAccidentallyRemoved scores each removed track against every top
// track and returns those whose best match exceeds the threshold, sorted
// descending by that best match
func (s *SuggestionScorerImpl) SuggestAccidentallyRemoved(ctx context.Context, accessToken string, removedTrackIDs []string, threshold float64) ([]Suggestion, error) {
	if len(removedTrackIDs) == 0 {
		return nil, nil
	}

	cache, err := s.buildCache(ctx, accessToken, removedTrackIDs)
	if err != nil {
		return nil, err
	}
	if len(cache.topTracks) == 0 {
		s.logger.Printf("scorer: user has no top tracks, skipping suggestions")
		return nil, nil
	}

	var suggestions []Suggestion
	for _, removed := range cache.removed {
		removedProfile := cache.trackProfile(removed)
		maxScore, sum := 0.0, 0.0
		for _, top := range cache.topTracks {
			score := TrackSimilarity(removedProfile, cache.trackProfile(top), cache.topArtists)
			sum += score
			if score > maxScore {
				maxScore = score
			}
		}
		if maxScore > threshold {
			suggestions = append(suggestions, Suggestion{
				TrackID:   removed.ID,
				MaxScore:  maxScore,
				MeanScore: sum / float64(len(cache.topTracks)),
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].MaxScore > suggestions[j].MaxScore
	})
	return suggestions, nil
}

// buildCache fetches the removed tracks' metadata, the user's top tracks and
// artists, audio features, and artist genres in batched calls
func (s *SuggestionScorerImpl) buildCache(ctx context.Context, accessToken string, removedTrackIDs []string) (*profileCache, error) {
	removed, err := s.profile.GetTracks(ctx, accessToken, removedTrackIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load removed track metadata: %w", err)
	}
	topTracks, err := s.profile.TopTracks(ctx, accessToken, s.topLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top tracks: %w", err)
	}
	topArtists, err := s.profile.TopArtists(ctx, accessToken, s.topLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top artists: %w", err)
	}

	trackIDs := make([]string, 0, len(removed)+len(topTracks))
	artistIDSet := make(map[string]struct{})
	for _, t := range removed {
		trackIDs = append(trackIDs, t.ID)
		if t.ArtistID != "" {
			artistIDSet[t.ArtistID] = struct{}{}
		}
	}
	for _, t := range topTracks {
		trackIDs = append(trackIDs, t.ID)
		if t.ArtistID != "" {
			artistIDSet[t.ArtistID] = struct{}{}
		}
	}

	features, err := s.profile.GetAudioFeatures(ctx, accessToken, trackIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio features: %w", err)
	}

	artistIDs := make([]string, 0, len(artistIDSet))
	for id := range artistIDSet {
		artistIDs = append(artistIDs, id)
	}
	genres, err := s.profile.GetArtistGenres(ctx, accessToken, artistIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load artist genres: %w", err)
	}

	topArtistSet := make(map[string]struct{}, len(topArtists))
	for _, a := range topArtists {
		topArtistSet[a.ID] = struct{}{}
	}

	return &profileCache{
		removed:    removed,
		topTracks:  topTracks,
		topArtists: topArtistSet,
		features:   features,
		genres:     genres,
	}, nil
}
