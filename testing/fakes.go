package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// In-memory fakes for the repository and service interfaces, used by flow
// unit tests that exercise business logic without Postgres or the network.

// FakeTransactor runs the callback directly, without a database. Setting Err
// simulates a transaction that fails before committing.
type FakeTransactor struct {
	Err   error
	Calls int
}

func NewFakeTransactor() *FakeTransactor {
	return &FakeTransactor{}
}

func (t *FakeTransactor) InTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.Calls++
	if t.Err != nil {
		return t.Err
	}
	return fn(ctx)
}

// FakeTrackedPlaylistRepository is an in-memory TrackedPlaylistRepository
type FakeTrackedPlaylistRepository struct {
	mu        sync.Mutex
	nextID    uint
	Playlists map[uint]*models.TrackedPlaylist
}

func NewFakeTrackedPlaylistRepository() *FakeTrackedPlaylistRepository {
	return &FakeTrackedPlaylistRepository{Playlists: make(map[uint]*models.TrackedPlaylist)}
}

func (f *FakeTrackedPlaylistRepository) ByID(ctx context.Context, id uint) (*models.TrackedPlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Playlists[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeTrackedPlaylistRepository) Save(ctx context.Context, entity *models.TrackedPlaylist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity.ID == 0 {
		f.nextID++
		entity.ID = f.nextID
	}
	copied := *entity
	f.Playlists[entity.ID] = &copied
	return nil
}

func (f *FakeTrackedPlaylistRepository) SaveBatch(ctx context.Context, entities []*models.TrackedPlaylist) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeTrackedPlaylistRepository) ByUserAndID(ctx context.Context, userID uuid.UUID, id uint) (*models.TrackedPlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Playlists[id]; ok && p.UserID == userID {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeTrackedPlaylistRepository) ListActiveByUsers(ctx context.Context, userIDs []uuid.UUID) ([]*models.TrackedPlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	var out []*models.TrackedPlaylist
	for _, p := range f.Playlists {
		if _, ok := wanted[p.UserID]; ok && p.Active {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeTrackedPlaylistRepository) SetMirrorPlaylist(ctx context.Context, id uint, mirrorID, mirrorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Playlists[id]
	if !ok {
		return fmt.Errorf("tracked playlist %d not found", id)
	}
	p.RemovedPlaylistID = utils.ToPtr(mirrorID)
	p.RemovedPlaylistName = utils.ToPtr(mirrorName)
	return nil
}

// FakeSnapshotRepository is an in-memory SnapshotRepository
type FakeSnapshotRepository struct {
	mu        sync.Mutex
	nextID    uint
	Snapshots []*models.Snapshot
}

func NewFakeSnapshotRepository() *FakeSnapshotRepository {
	return &FakeSnapshotRepository{}
}

func (f *FakeSnapshotRepository) ByID(ctx context.Context, id uint) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Snapshots {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeSnapshotRepository) Save(ctx context.Context, entity *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity.ID == 0 {
		f.nextID++
		entity.ID = f.nextID
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}
	copied := *entity
	f.Snapshots = append(f.Snapshots, &copied)
	return nil
}

func (f *FakeSnapshotRepository) SaveBatch(ctx context.Context, entities []*models.Snapshot) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeSnapshotRepository) Latest(ctx context.Context, userID uuid.UUID, playlistID uint) (*models.Snapshot, error) {
	snaps, err := f.LatestN(ctx, userID, playlistID, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return snaps[0], nil
}

func (f *FakeSnapshotRepository) LatestN(ctx context.Context, userID uuid.UUID, playlistID uint, n int) ([]*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.Snapshot
	for _, s := range f.Snapshots {
		if s.UserID == userID && s.PlaylistID == playlistID {
			copied := *s
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

// FakeCachedTrackRepository is an in-memory CachedTrackRepository
type FakeCachedTrackRepository struct {
	mu     sync.Mutex
	nextID uint
	Tracks map[string]*models.CachedTrack
}

func NewFakeCachedTrackRepository() *FakeCachedTrackRepository {
	return &FakeCachedTrackRepository{Tracks: make(map[string]*models.CachedTrack)}
}

func (f *FakeCachedTrackRepository) ByID(ctx context.Context, id uint) (*models.CachedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Tracks {
		if t.ID == id {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeCachedTrackRepository) Save(ctx context.Context, entity *models.CachedTrack) error {
	return f.UpsertBatch(ctx, []*models.CachedTrack{entity})
}

func (f *FakeCachedTrackRepository) SaveBatch(ctx context.Context, entities []*models.CachedTrack) error {
	return f.UpsertBatch(ctx, entities)
}

func (f *FakeCachedTrackRepository) ByTrackID(ctx context.Context, trackID string) (*models.CachedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.Tracks[trackID]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeCachedTrackRepository) ByTrackIDs(ctx context.Context, trackIDs []string) ([]*models.CachedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CachedTrack
	for _, id := range trackIDs {
		if t, ok := f.Tracks[id]; ok {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *FakeCachedTrackRepository) UpsertBatch(ctx context.Context, tracks []*models.CachedTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		if existing, ok := f.Tracks[t.TrackID]; ok {
			existing.Name = t.Name
			existing.Artist = t.Artist
			existing.Album = t.Album
			existing.Image = t.Image
			continue
		}
		f.nextID++
		copied := *t
		copied.ID = f.nextID
		f.Tracks[t.TrackID] = &copied
	}
	return nil
}

// FakeDeletedSongRepository is an in-memory DeletedSongRepository with the
// same do-nothing conflict semantics as the real upsert
type FakeDeletedSongRepository struct {
	mu     sync.Mutex
	nextID uint
	Songs  map[string]*models.DeletedSong
}

func NewFakeDeletedSongRepository() *FakeDeletedSongRepository {
	return &FakeDeletedSongRepository{Songs: make(map[string]*models.DeletedSong)}
}

func deletedSongKey(userID uuid.UUID, trackID string, playlistID uint) string {
	return fmt.Sprintf("%s|%s|%d", userID, trackID, playlistID)
}

func (f *FakeDeletedSongRepository) ByID(ctx context.Context, id uint) (*models.DeletedSong, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Songs {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeDeletedSongRepository) Save(ctx context.Context, entity *models.DeletedSong) error {
	return f.UpsertBatch(ctx, []*models.DeletedSong{entity})
}

func (f *FakeDeletedSongRepository) SaveBatch(ctx context.Context, entities []*models.DeletedSong) error {
	return f.UpsertBatch(ctx, entities)
}

func (f *FakeDeletedSongRepository) UpsertBatch(ctx context.Context, songs []*models.DeletedSong) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range songs {
		key := deletedSongKey(s.UserID, s.TrackID, s.PlaylistID)
		if _, ok := f.Songs[key]; ok {
			continue // conflict: do nothing, never reactivate
		}
		f.nextID++
		copied := *s
		copied.ID = f.nextID
		f.Songs[key] = &copied
	}
	return nil
}

func (f *FakeDeletedSongRepository) ListActive(ctx context.Context, userID uuid.UUID, playlistID uint) ([]*models.DeletedSong, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DeletedSong
	for _, s := range f.Songs {
		if s.UserID == userID && s.PlaylistID == playlistID && s.Active {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemovedAt.Before(out[j].RemovedAt) })
	return out, nil
}

func (f *FakeDeletedSongRepository) ListRemovedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.DeletedSong, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DeletedSong
	for _, s := range f.Songs {
		if s.UserID == userID && !s.RemovedAt.Before(since) {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemovedAt.Before(out[j].RemovedAt) })
	return out, nil
}

func (f *FakeDeletedSongRepository) Deactivate(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Songs {
		if s.ID == id {
			s.Active = false
			return nil
		}
	}
	return fmt.Errorf("deleted song %d not found", id)
}

// FakeUserSettingsRepository is an in-memory UserSettingsRepository
type FakeUserSettingsRepository struct {
	mu       sync.Mutex
	nextID   uint
	Settings map[uuid.UUID]*models.UserSettings
}

func NewFakeUserSettingsRepository() *FakeUserSettingsRepository {
	return &FakeUserSettingsRepository{Settings: make(map[uuid.UUID]*models.UserSettings)}
}

func (f *FakeUserSettingsRepository) ByID(ctx context.Context, id uint) (*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Settings {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeUserSettingsRepository) Save(ctx context.Context, entity *models.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity.ID == 0 {
		f.nextID++
		entity.ID = f.nextID
	}
	copied := *entity
	f.Settings[entity.UserID] = &copied
	return nil
}

func (f *FakeUserSettingsRepository) SaveBatch(ctx context.Context, entities []*models.UserSettings) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeUserSettingsRepository) ByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.Settings[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeUserSettingsRepository) ListSnapshotsEnabled(ctx context.Context) ([]*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.UserSettings
	for _, s := range f.Settings {
		if s.SnapshotsEnabled {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeUserSettingsRepository) ListSuggestionOptIn(ctx context.Context) ([]*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.UserSettings
	for _, s := range f.Settings {
		if s.SuggestionEmails {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FakeSpotifyAccessRepository is an in-memory SpotifyAccessRepository
type FakeSpotifyAccessRepository struct {
	mu          sync.Mutex
	nextID      uint
	Credentials []*models.SpotifyAccess
}

func NewFakeSpotifyAccessRepository() *FakeSpotifyAccessRepository {
	return &FakeSpotifyAccessRepository{}
}

func (f *FakeSpotifyAccessRepository) ByID(ctx context.Context, id uint) (*models.SpotifyAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Credentials {
		if c.ID == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeSpotifyAccessRepository) Save(ctx context.Context, entity *models.SpotifyAccess) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity.ID == 0 {
		f.nextID++
		entity.ID = f.nextID
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}
	copied := *entity
	f.Credentials = append(f.Credentials, &copied)
	return nil
}

func (f *FakeSpotifyAccessRepository) SaveBatch(ctx context.Context, entities []*models.SpotifyAccess) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeSpotifyAccessRepository) LatestByUser(ctx context.Context, userID uuid.UUID) (*models.SpotifyAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.SpotifyAccess
	for _, c := range f.Credentials {
		if c.UserID != userID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) || (c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (f *FakeSpotifyAccessRepository) UpdateTokens(ctx context.Context, id uint, accessToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Credentials {
		if c.ID == id {
			c.AccessToken = accessToken
			c.ExpiresAt = expiresAt
			return nil
		}
	}
	return fmt.Errorf("credential %d not found", id)
}

func (f *FakeSpotifyAccessRepository) ForceExpire(ctx context.Context, id uint, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Credentials {
		if c.ID == id {
			c.ExpiresAt = now
			return nil
		}
	}
	return fmt.Errorf("credential %d not found", id)
}

// FakeBlobStore is an in-memory BlobStore
type FakeBlobStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{Objects: make(map[string][]byte)}
}

func (f *FakeBlobStore) Upload(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	f.Objects[path] = copied
	return nil
}

func (f *FakeBlobStore) Download(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found", path)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// FakePlaylistClient is a configurable in-memory PlaylistClient
type FakePlaylistClient struct {
	mu sync.Mutex

	PlaylistTracks map[string][]models.SnapshotTrack
	LikedTracks    []models.SnapshotTrack
	ListErr        error

	CreatedPlaylists []string
	NextPlaylistID   string
	CreateErr        error

	Added     map[string][]string
	AddErr    error
	Removed   map[string][]string
	RemoveErr error

	RefreshedToken   string
	RefreshedExpires time.Time
	RefreshErr       error
}

func NewFakePlaylistClient() *FakePlaylistClient {
	return &FakePlaylistClient{
		PlaylistTracks:   make(map[string][]models.SnapshotTrack),
		Added:            make(map[string][]string),
		Removed:          make(map[string][]string),
		NextPlaylistID:   "mirror-1",
		RefreshedToken:   "refreshed-token",
		RefreshedExpires: utils.UTCNowAdd(1 * time.Hour),
	}
}

func (f *FakePlaylistClient) ListPlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]models.SnapshotTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.PlaylistTracks[playlistID], nil
}

func (f *FakePlaylistClient) ListLikedTracks(ctx context.Context, accessToken string) ([]models.SnapshotTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.LikedTracks, nil
}

func (f *FakePlaylistClient) CreatePlaylist(ctx context.Context, accessToken, name string, public bool, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.CreatedPlaylists = append(f.CreatedPlaylists, name)
	return f.NextPlaylistID, nil
}

func (f *FakePlaylistClient) AddTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return f.AddErr
	}
	f.Added[playlistID] = append(f.Added[playlistID], trackIDs...)
	return nil
}

func (f *FakePlaylistClient) RemoveTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removed[playlistID] = append(f.Removed[playlistID], trackIDs...)
	return nil
}

func (f *FakePlaylistClient) RefreshCredential(ctx context.Context, refreshToken string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefreshErr != nil {
		return "", time.Time{}, f.RefreshErr
	}
	return f.RefreshedToken, f.RefreshedExpires, nil
}

// ErrFakeUpstream is a generic upstream failure for configuring fakes
var ErrFakeUpstream = errors.New("upstream failure")
