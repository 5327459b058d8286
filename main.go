// Package main provides the main entry point for the TrackKeeper snapshot and digest pipeline
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdmurray/trackkeeper/app/metrics"
	"github.com/gdmurray/trackkeeper/app/queue"
	"github.com/gdmurray/trackkeeper/app/scheduler"
	"github.com/gdmurray/trackkeeper/app/services"
	businessflow "github.com/gdmurray/trackkeeper/business_flow"
	"github.com/gdmurray/trackkeeper/config"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	config    *config.ProductionConfig
	db        *gorm.DB
	rc        *redis.Client
	stopFuncs []func()
}

func main() {
	log.Println("Starting TrackKeeper pipeline...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("TrackKeeper %s (commit %s, built %s) starting in %s",
		cfg.Deployment.Version, cfg.Deployment.CommitHash, cfg.Deployment.BuildTime, cfg.Deployment.Environment)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers in reverse start order
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	if app.rc != nil {
		_ = app.rc.Close()
	}
	log.Println("Pipeline stopped")
}

// newLogger builds a component logger writing to stdout and a size-rotated
// log file
func newLogger(component string, cfg config.LoggingConfig) *log.Logger {
	var out io.Writer = os.Stdout
	if cfg.Output == "file" && cfg.FilePath != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}
	return log.New(out, component+" ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormConfig := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormConfig.Logger = gormlogger.New(
			log.New(os.Stdout, "gorm ", log.LstdFlags|log.LUTC),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowQueryTime,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.TrackedPlaylist{},
		&models.Snapshot{},
		&models.CachedTrack{},
		&models.DeletedSong{},
		&models.UserSettings{},
		&models.SpotifyAccess{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeQueue initializes the Redis connection backing the task queue
func initializeQueue(cfg config.QueueConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startQueueHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startQueueHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeQueue(cfg.Queue)
	if err != nil {
		return nil, err
	}

	rootCtx := context.Background()
	stopFuncs = append(stopFuncs, startQueueHealthMonitor(rootCtx, rc, 30*time.Second))

	// Initialize repositories
	playlistRepo := repository.NewTrackedPlaylistRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	cachedRepo := repository.NewCachedTrackRepository(db)
	deletedRepo := repository.NewDeletedSongRepository(db)
	settingsRepo := repository.NewUserSettingsRepository(db)
	accessRepo := repository.NewSpotifyAccessRepository(db)

	// Initialize services
	spotifyClient := services.NewSpotifyClient(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.Timeout)
	blobStore := services.NewSupabaseStorageClient(
		cfg.Storage.SupabaseURL, cfg.Storage.ServiceKey, cfg.Storage.SnapshotBucket, cfg.Storage.Timeout)
	tokenService := services.NewUnsubscribeTokenService(cfg.JWT.SecretKey)
	emailSender, err := services.NewSMTPEmailSender(
		cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password,
		fmt.Sprintf("%s <%s>", cfg.Email.FromName, cfg.Email.FromEmail), cfg.Email.Timeout)
	if err != nil {
		return nil, err
	}

	tasks := queue.NewRedisQueue(rc)

	// Initialize business flows
	flowLogger := newLogger("flow", cfg.Logging)
	snapshotFlow := businessflow.NewSnapshotFlow(
		playlistRepo, snapshotRepo, accessRepo, spotifyClient, blobStore, tasks, flowLogger)
	diffFlow := businessflow.NewDiffFlow(
		playlistRepo, snapshotRepo, cachedRepo, deletedRepo, accessRepo,
		spotifyClient, blobStore, tasks, repository.NewGormTransactor(db), flowLogger)
	expiryFlow := businessflow.NewExpiryFlow(
		settingsRepo, playlistRepo, deletedRepo, accessRepo, spotifyClient, flowLogger)
	scorer := businessflow.NewSuggestionScorer(spotifyClient, flowLogger)
	digestFlow := businessflow.NewDigestFlow(
		settingsRepo, deletedRepo, cachedRepo, accessRepo, spotifyClient,
		scorer, emailSender, tokenService, cfg.Email.UnsubscribeURL, flowLogger)

	// Start the task worker
	worker := newWorker(cfg, tasks, snapshotFlow, diffFlow, expiryFlow, digestFlow)
	stopFuncs = append(stopFuncs, worker.Start(rootCtx))

	// Start schedulers
	schedulerLogger := newLogger("scheduler", cfg.Logging)
	snapshotScheduler := scheduler.NewSnapshotScheduler(
		settingsRepo, playlistRepo, tasks, cfg.Scheduler, schedulerLogger)
	stopFuncs = append(stopFuncs, snapshotScheduler.Start(rootCtx))

	digestScheduler := scheduler.NewDigestScheduler(
		settingsRepo, tasks, cfg.Scheduler.DigestInterval, schedulerLogger)
	stopFuncs = append(stopFuncs, digestScheduler.Start(rootCtx))

	// Expose Prometheus metrics
	if cfg.Metrics.Enabled {
		metricsLogger := newLogger("metrics", cfg.Logging)
		stopFuncs = append(stopFuncs, metrics.StartServer(rootCtx, cfg.Metrics.Port, cfg.Metrics.Path, metricsLogger))
	}

	return &Application{
		config:    cfg,
		db:        db,
		rc:        rc,
		stopFuncs: stopFuncs,
	}, nil
}

// newWorker registers the pipeline's job handlers: flow errors are translated
// into retry decisions here, and metrics are recorded per job
func newWorker(
	cfg *config.ProductionConfig,
	tasks *queue.RedisQueue,
	snapshotFlow businessflow.SnapshotFlow,
	diffFlow businessflow.DiffFlow,
	expiryFlow businessflow.ExpiryFlow,
	digestFlow businessflow.DigestFlow,
) *queue.Worker {
	workerLogger := newLogger("worker", cfg.Logging)
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Snapshot.RetryAttempts,
		Delay:       cfg.Snapshot.RetryDelay,
	}
	worker := queue.NewWorker(tasks, policy, cfg.Queue.PollInterval, workerLogger)
	worker.OnRetry(func(job string) {
		metrics.JobRetries.WithLabelValues(job).Inc()
	})

	worker.Register(queue.JobTakeSnapshot, func(ctx context.Context, raw json.RawMessage) error {
		var args queue.PlaylistJobArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		defer metrics.ObserveJob(queue.JobTakeSnapshot, time.Now())

		taken, err := snapshotFlow.TakeSnapshot(ctx, args.UserID, args.PlaylistID)
		switch {
		case err == nil && taken:
			metrics.SnapshotsTotal.WithLabelValues(metrics.OutcomeTaken).Inc()
			return nil
		case err == nil:
			metrics.SnapshotsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			return nil
		}
		metrics.SnapshotsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		// Upstream credential failures get the bounded retry; everything
		// else fails this task instance only
		if businessflow.IsCredentialRejected(err) {
			return queue.Retryable(err)
		}
		return err
	})

	worker.Register(queue.JobDiffLibrary, func(ctx context.Context, raw json.RawMessage) error {
		var args queue.PlaylistJobArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		defer metrics.ObserveJob(queue.JobDiffLibrary, time.Now())

		removed, err := diffFlow.DiffSnapshots(ctx, args.UserID, args.PlaylistID)
		if removed > 0 {
			metrics.RemovalsDetected.Add(float64(removed))
		}
		return err
	})

	worker.Register(queue.JobExpireSongs, func(ctx context.Context, raw json.RawMessage) error {
		var args queue.PlaylistJobArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		defer metrics.ObserveJob(queue.JobExpireSongs, time.Now())

		expired, err := expiryFlow.CheckSongExpiry(ctx, args.UserID, args.PlaylistID)
		if expired > 0 {
			metrics.SongsExpired.Add(float64(expired))
		}
		return err
	})

	worker.Register(queue.JobSendDigest, func(ctx context.Context, raw json.RawMessage) error {
		var args queue.UserJobArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		defer metrics.ObserveJob(queue.JobSendDigest, time.Now())

		sent, err := digestFlow.SendSuggestionEmail(ctx, args.UserID)
		if sent {
			metrics.DigestsSent.Inc()
		}
		return err
	})

	return worker
}
