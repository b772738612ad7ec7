package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
)

// LobbySweeper removes abandoned matchmaking state.
type LobbySweeper interface {
	SweepStaleQueue(ctx context.Context, olderThan time.Duration) (int, error)
	ExpireChallenges(ctx context.Context, olderThan time.Duration) (int, error)
}

// UploadSweeper fails uploads that never finished.
type UploadSweeper interface {
	FailStaleUploads(ctx context.Context, olderThan time.Duration) (int, error)
}

type SweepWorker struct {
	lobby        LobbySweeper
	uploads      UploadSweeper
	interval     time.Duration
	queueTTL     time.Duration
	challengeTTL time.Duration
	uploadTTL    time.Duration
}

type NewSweepWorkerOptions struct {
	Lobby        LobbySweeper
	Uploads      UploadSweeper
	Interval     time.Duration
	QueueTTL     time.Duration
	ChallengeTTL time.Duration
	UploadTTL    time.Duration
}

// NewSweepWorker creates a new SweepWorker.
// The worker periodically clears stale queue entries, unanswered challenges and stuck uploads.
func NewSweepWorker(opts NewSweepWorkerOptions) *SweepWorker {
	return &SweepWorker{
		lobby:        opts.Lobby,
		uploads:      opts.Uploads,
		interval:     opts.Interval,
		queueTTL:     opts.QueueTTL,
		challengeTTL: opts.ChallengeTTL,
		uploadTTL:    opts.UploadTTL,
	}
}

// Start schedules the sweep and blocks until ctx is done.
func (w *SweepWorker) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.Sweep, ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.Start()
	log.Info("Sweeping stale state every %s", w.interval)

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

// Sweep runs one pass. Each step is skipped when its TTL is zero.
func (w *SweepWorker) Sweep(ctx context.Context) {
	if w.lobby != nil && w.queueTTL > 0 {
		if _, err := w.lobby.SweepStaleQueue(ctx, w.queueTTL); err != nil {
			log.Error("Failed to sweep matchmaking queue: %v", err)
		}
	}
	if w.lobby != nil && w.challengeTTL > 0 {
		if _, err := w.lobby.ExpireChallenges(ctx, w.challengeTTL); err != nil {
			log.Error("Failed to expire challenges: %v", err)
		}
	}
	if w.uploads != nil && w.uploadTTL > 0 {
		if _, err := w.uploads.FailStaleUploads(ctx, w.uploadTTL); err != nil {
			log.Error("Failed to fail stale uploads: %v", err)
		}
	}
}
