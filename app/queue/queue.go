// Package queue implements a Redis-backed delayed task queue used to fan
// snapshot, diff, expiry, and digest work out across the execution window.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job names dispatched through the queue
const (
	JobTakeSnapshot = "snapshot.take"
	JobDiffLibrary  = "library.diff"
	JobExpireSongs  = "songs.expire"
	JobSendDigest   = "digest.send"
)

// Task is the wire envelope stored in the delayed set
type Task struct {
	ID         string          `json:"id"`
	Job        string          `json:"job"`
	Args       json.RawMessage `json:"args"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// UserJobArgs is the payload for per-user jobs (the weekly digest)
type UserJobArgs struct {
	UserID uuid.UUID `json:"user_id"`
}

// PlaylistJobArgs is the payload for per-(user, playlist) jobs: snapshot,
// diff, and expiry
type PlaylistJobArgs struct {
	UserID     uuid.UUID `json:"user_id"`
	PlaylistID uint      `json:"playlist_id"`
}

// TaskQueue schedules tasks for execution after an optional delay
type TaskQueue interface {
	Enqueue(ctx context.Context, job string, args any, delay time.Duration) error
}

const delayedSetKey = "trackkeeper:tasks:delayed"

// RedisQueue implements TaskQueue on a Redis sorted set scored by due time
type RedisQueue struct {
	rc *redis.Client
}

// NewRedisQueue creates a queue on the given Redis client
func NewRedisQueue(rc *redis.Client) *RedisQueue {
	return &RedisQueue{rc: rc}
}

// Enqueue serializes the task and adds it to the delayed set. A zero delay
// makes the task claimable immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, job string, args any, delay time.Duration) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal args for job %s: %w", job, err)
	}
	task := Task{
		ID:         uuid.NewString(),
		Job:        job,
		Args:       payload,
		Attempt:    1,
		EnqueuedAt: utils.UTCNow(),
	}
	return q.enqueueTask(ctx, task, delay)
}

func (q *RedisQueue) enqueueTask(ctx context.Context, task Task, delay time.Duration) error {
	envelope, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	due := float64(utils.UTCNow().Add(delay).Unix())
	if err := q.rc.ZAdd(ctx, delayedSetKey, redis.Z{Score: due, Member: envelope}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", task.Job, err)
	}
	return nil
}

// claimDue pops up to limit tasks whose due time has passed. A task counts as
// claimed only when its ZRem succeeds, so concurrent workers never process
// the same envelope twice.
func (q *RedisQueue) claimDue(ctx context.Context, limit int64) ([]Task, error) {
	now := fmt.Sprintf("%d", utils.UTCNow().Unix())
	members, err := q.rc.ZRangeByScore(ctx, delayedSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed set: %w", err)
	}

	var claimed []Task
	for _, member := range members {
		removed, err := q.rc.ZRem(ctx, delayedSetKey, member).Result()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim task: %w", err)
		}
		if removed == 0 {
			continue // another worker won this one
		}
		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			// Malformed envelopes are dropped rather than poisoning the set
			continue
		}
		claimed = append(claimed, task)
	}
	return claimed, nil
}
