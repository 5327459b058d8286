package businessflow

import (
	"context"
	"testing"

	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProfileClient serves a canned listening profile
type fakeProfileClient struct {
	tracks     map[string]services.TrackInfo
	topTracks  []services.TrackInfo
	topArtists []services.ArtistInfo
	features   map[string]services.AudioFeatures
	genres     map[string][]string
	err        error
}

func (f *fakeProfileClient) TopTracks(ctx context.Context, accessToken string, limit int) ([]services.TrackInfo, error) {
	return f.topTracks, f.err
}

func (f *fakeProfileClient) TopArtists(ctx context.Context, accessToken string, limit int) ([]services.ArtistInfo, error) {
	return f.topArtists, f.err
}

func (f *fakeProfileClient) GetTracks(ctx context.Context, accessToken string, trackIDs []string) ([]services.TrackInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]services.TrackInfo, 0, len(trackIDs))
	for _, id := range trackIDs {
		if t, ok := f.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeProfileClient) GetAudioFeatures(ctx context.Context, accessToken string, trackIDs []string) (map[string]services.AudioFeatures, error) {
	return f.features, f.err
}

func (f *fakeProfileClient) GetArtistGenres(ctx context.Context, accessToken string, artistIDs []string) (map[string][]string, error) {
	return f.genres, f.err
}

func sampleFeatures() services.AudioFeatures {
	return services.AudioFeatures{
		Danceability:     0.7,
		Energy:           0.8,
		Loudness:         -5.2,
		Speechiness:      0.05,
		Acousticness:     0.1,
		Instrumentalness: 0.0,
		Liveness:         0.15,
		Valence:          0.6,
		Tempo:            120,
		Key:              5,
		Mode:             1,
	}
}

func TestTrackSimilarityIdenticalTracks(t *testing.T) {
	profile := TrackProfile{
		TrackID:  "t1",
		ArtistID: "a1",
		Features: sampleFeatures(),
		Genres:   []string{"indie rock", "shoegaze"},
	}
	score := TrackSimilarity(profile, profile, nil)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestTrackSimilaritySymmetry(t *testing.T) {
	a := TrackProfile{TrackID: "t1", ArtistID: "a1", Features: sampleFeatures(), Genres: []string{"indie rock"}}
	b := TrackProfile{TrackID: "t2", ArtistID: "a2", Genres: []string{"indie rock", "dream pop"}}
	b.Features = sampleFeatures()
	b.Features.Energy = 0.3
	b.Features.Key = 11
	b.Features.Mode = 0

	topArtists := map[string]struct{}{"a1": {}}
	assert.InDelta(t, TrackSimilarity(a, b, topArtists), TrackSimilarity(b, a, topArtists), 1e-9)
}

func TestKeySimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int
		expected float64
	}{
		{name: "same key", a: 5, b: 5, expected: 1},
		{name: "opposite on circle", a: 0, b: 6, expected: 0},
		{name: "adjacent", a: 0, b: 1, expected: 1 - 1.0/6},
		{name: "wraps around the circle", a: 0, b: 11, expected: 1 - 1.0/6},
		{name: "wraps from both sides", a: 1, b: 10, expected: 1 - 3.0/6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, keySimilarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, keySimilarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestArtistSimilarityTiers(t *testing.T) {
	topArtists := map[string]struct{}{"top1": {}, "top2": {}}

	assert.Equal(t, 1.0, artistSimilarity("a", "a", topArtists))
	assert.Equal(t, 0.8, artistSimilarity("top1", "top2", topArtists))
	assert.Equal(t, 0.5, artistSimilarity("top1", "other", topArtists))
	assert.Equal(t, 0.5, artistSimilarity("other", "top2", topArtists))
	assert.Equal(t, 0.0, artistSimilarity("x", "y", topArtists))
}

func TestGenreSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{name: "identical sets", a: []string{"rock", "pop"}, b: []string{"rock", "pop"}, expected: 1},
		{name: "half overlap", a: []string{"rock", "pop"}, b: []string{"rock", "jazz"}, expected: 1.0 / 3},
		{name: "disjoint", a: []string{"rock"}, b: []string{"jazz"}, expected: 0},
		{name: "both empty", a: nil, b: nil, expected: 0},
		{name: "one empty", a: []string{"rock"}, b: nil, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, genreSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestFeatureSimilarity(t *testing.T) {
	a := sampleFeatures()
	assert.InDelta(t, 1.0, featureSimilarity(a, a), 1e-9)

	b := sampleFeatures()
	b.Tempo = 180
	score := featureSimilarity(a, b)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestSuggestAccidentallyRemoved(t *testing.T) {
	ctx := context.Background()

	identical := sampleFeatures()
	distant := services.AudioFeatures{
		Danceability: 0.1, Energy: 0.1, Loudness: -30, Speechiness: 0.9,
		Acousticness: 0.95, Instrumentalness: 0.9, Liveness: 0.9, Valence: 0.05,
		Tempo: 60, Key: 11, Mode: 0,
	}

	profile := &fakeProfileClient{
		tracks: map[string]services.TrackInfo{
			"removed-close": {ID: "removed-close", Name: "Close", ArtistID: "a1"},
			"removed-far":   {ID: "removed-far", Name: "Far", ArtistID: "stranger"},
		},
		topTracks: []services.TrackInfo{
			{ID: "top-1", Name: "Favorite", ArtistID: "a1"},
		},
		topArtists: []services.ArtistInfo{{ID: "a1", Name: "Beloved Band"}},
		features: map[string]services.AudioFeatures{
			"removed-close": identical,
			"removed-far":   distant,
			"top-1":         identical,
		},
		genres: map[string][]string{
			"a1":       {"indie rock"},
			"stranger": {"noise"},
		},
	}
	scorer := NewSuggestionScorer(profile, testLogger())

	t.Run("flags only tracks above the threshold", func(t *testing.T) {
		suggestions, err := scorer.SuggestAccidentallyRemoved(ctx, "token", []string{"removed-close", "removed-far"}, DefaultSimilarityThreshold)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, "removed-close", suggestions[0].TrackID)
		assert.InDelta(t, 1.0, suggestions[0].MaxScore, 1e-9)
	})

	t.Run("results sorted by best match descending", func(t *testing.T) {
		suggestions, err := scorer.SuggestAccidentallyRemoved(ctx, "token", []string{"removed-far", "removed-close"}, 0.0)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, "removed-close", suggestions[0].TrackID)
		assert.GreaterOrEqual(t, suggestions[0].MaxScore, suggestions[1].MaxScore)
	})

	t.Run("no removed tracks is a no-op", func(t *testing.T) {
		suggestions, err := scorer.SuggestAccidentallyRemoved(ctx, "token", nil, DefaultSimilarityThreshold)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	})

	t.Run("no top tracks yields no suggestions", func(t *testing.T) {
		empty := &fakeProfileClient{
			tracks:   profile.tracks,
			features: profile.features,
			genres:   profile.genres,
		}
		suggestions, err := NewSuggestionScorer(empty, testLogger()).
			SuggestAccidentallyRemoved(ctx, "token", []string{"removed-close"}, DefaultSimilarityThreshold)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	})

	t.Run("profile fetch failure propagates", func(t *testing.T) {
		broken := &fakeProfileClient{err: assert.AnError}
		_, err := NewSuggestionScorer(broken, testLogger()).
			SuggestAccidentallyRemoved(ctx, "token", []string{"removed-close"}, DefaultSimilarityThreshold)
		assert.Error(t, err)
	})
}
