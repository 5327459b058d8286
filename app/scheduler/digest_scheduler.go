package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/repository"
)

// DigestScheduler periodically enqueues one digest job per opted-in user
type DigestScheduler struct {
	settingsRepo repository.UserSettingsRepository
	tasks        queue.TaskQueue
	interval     time.Duration
	logger       *log.Logger
}

func NewDigestScheduler(
	settingsRepo repository.UserSettingsRepository,
	tasks queue.TaskQueue,
	interval time.Duration,
	logger *log.Logger,
) *DigestScheduler {
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	return &DigestScheduler{
		settingsRepo: settingsRepo,
		tasks:        tasks,
		interval:     interval,
		logger:       logger,
	}
}

// Start launches the scheduler loop in a background goroutine and returns a
// stop function. The first run is aligned to the next Monday 09:00 UTC so
// digests land on a weekday morning rather than whenever the process booted.
func (s *DigestScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		first := time.NewTimer(time.Until(nextDigestTime(time.Now())))
		defer first.Stop()

		select {
		case <-ctx.Done():
			return
		case <-first.C:
			s.runOnce(ctx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

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

// nextDigestTime returns the first Monday 09:00 UTC strictly after now
func nextDigestTime(now time.Time) time.Time {
	now = now.UTC()
	day := now
	for {
		candidate := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC)
		if day.Weekday() == time.Monday && candidate.After(now) {
			return candidate
		}
		day = day.AddDate(0, 0, 1)
	}
}

func (s *DigestScheduler) runOnce(ctx context.Context) {
	optedIn, err := s.settingsRepo.ListSuggestionOptIn(ctx)
	if err != nil {
		s.logger.Printf("digest scheduler: failed to list opted-in users, aborting cycle: %v", err)
		return
	}
	if len(optedIn) == 0 {
		return
	}

	dispatched := 0
	for _, settings := range optedIn {
		args := queue.UserJobArgs{UserID: settings.UserID}
		if err := s.tasks.Enqueue(ctx, queue.JobSendDigest, args, 0); err != nil {
			s.logger.Printf("digest scheduler: failed to enqueue digest for user %s: %v", settings.UserID, err)
			continue
		}
		dispatched++
	}
	s.logger.Printf("digest scheduler: dispatched %d digest jobs", dispatched)
}
