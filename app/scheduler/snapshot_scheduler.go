// Package scheduler
package scheduler

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/config"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/google/uuid"
)

// PartitionUsers splits users into ordered subsets dispatched one subset
// window apart. If the requested subset size would push dispatch past the
// execution window, the size is recomputed so the subset count fits: subset
// count is the load-bearing quantity, not subset size.
func PartitionUsers(userIDs []uuid.UUID, maxPerSubset int, subsetWindow, executionWindow time.Duration) [][]uuid.UUID {
	if len(userIDs) == 0 {
		return nil
	}
	if maxPerSubset < 1 {
		maxPerSubset = 1
	}

	numSubsets := int(math.Ceil(float64(len(userIDs)) / float64(maxPerSubset)))
	if time.Duration(numSubsets)*subsetWindow > executionWindow {
		slots := int(executionWindow / subsetWindow)
		if slots < 1 {
			slots = 1
		}
		maxPerSubset = int(math.Ceil(float64(len(userIDs)) / float64(slots)))
	}

	var subsets [][]uuid.UUID
	for start := 0; start < len(userIDs); start += maxPerSubset {
		end := min(start+maxPerSubset, len(userIDs))
		subsets = append(subsets, userIDs[start:end])
	}
	return subsets
}

// SnapshotScheduler periodically fans snapshot jobs out across the execution
// window, one job per (user, playlist) pair
type SnapshotScheduler struct {
	settingsRepo repository.UserSettingsRepository
	playlistRepo repository.TrackedPlaylistRepository
	tasks        queue.TaskQueue
	cfg          config.SchedulerConfig
	logger       *log.Logger
}

func NewSnapshotScheduler(
	settingsRepo repository.UserSettingsRepository,
	playlistRepo repository.TrackedPlaylistRepository,
	tasks queue.TaskQueue,
	cfg config.SchedulerConfig,
	logger *log.Logger,
) *SnapshotScheduler {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 24 * time.Hour
	}
	return &SnapshotScheduler{
		settingsRepo: settingsRepo,
		playlistRepo: playlistRepo,
		tasks:        tasks,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *SnapshotScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.cfg.SnapshotInterval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce dispatches one full snapshot cycle. Any failure to assemble the
// full work set aborts the whole cycle: partial dispatch on incomplete data
// could create orphaned jobs.
func (s *SnapshotScheduler) runOnce(ctx context.Context) {
	enabled, err := s.settingsRepo.ListSnapshotsEnabled(ctx)
	if err != nil {
		s.logger.Printf("scheduler: failed to list snapshot-enabled users, aborting cycle: %v", err)
		return
	}
	if len(enabled) == 0 {
		s.logger.Printf("scheduler: no snapshot-enabled users, aborting cycle")
		return
	}

	userIDs := make([]uuid.UUID, 0, len(enabled))
	for _, settings := range enabled {
		userIDs = append(userIDs, settings.UserID)
	}

	playlists, err := s.playlistRepo.ListActiveByUsers(ctx, userIDs)
	if err != nil {
		s.logger.Printf("scheduler: failed to list active playlists, aborting cycle: %v", err)
		return
	}
	if len(playlists) == 0 {
		s.logger.Printf("scheduler: no active tracked playlists, aborting cycle")
		return
	}

	byUser := make(map[uuid.UUID][]*models.TrackedPlaylist, len(userIDs))
	for _, playlist := range playlists {
		byUser[playlist.UserID] = append(byUser[playlist.UserID], playlist)
	}
	// Only users that actually own playlists occupy subset slots
	activeUsers := make([]uuid.UUID, 0, len(byUser))
	for _, userID := range userIDs {
		if len(byUser[userID]) > 0 {
			activeUsers = append(activeUsers, userID)
		}
	}

	subsets := PartitionUsers(activeUsers, s.cfg.MaxUsersPerSubset, s.cfg.SubsetWindow, s.cfg.ExecutionWindow)
	dispatched := 0
	for i, subset := range subsets {
		delay := time.Duration(i) * s.cfg.SubsetWindow
		for _, userID := range subset {
			for _, playlist := range byUser[userID] {
				args := queue.PlaylistJobArgs{UserID: userID, PlaylistID: playlist.ID}
				if err := s.tasks.Enqueue(ctx, queue.JobTakeSnapshot, args, delay); err != nil {
					s.logger.Printf("scheduler: failed to enqueue snapshot for user %s playlist %d: %v",
						userID, playlist.ID, err)
					continue
				}
				dispatched++
			}
		}
	}
	s.logger.Printf("scheduler: dispatched %d snapshot jobs across %d subsets for %d users",
		dispatched, len(subsets), len(activeUsers))
}
