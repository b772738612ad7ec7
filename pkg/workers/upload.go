package workers

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/queue"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/remote"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/uploads"
)

// VideoTracker records the progress and outcome of video uploads.
type VideoTracker interface {
	CompleteVideo(ctx context.Context, videoID, url string) (*types.RemoteVideo, error)
	FailVideo(ctx context.Context, videoID, code, message string) error
	RecordProgress(ctx context.Context, videoID string, uploaded int64) error
}

type UploadWorker struct {
	jobs             queue.Queue[uploads.Job]
	store            uploads.BlobStore
	videos           VideoTracker
	concurrency      int
	progressInterval time.Duration
}

type NewUploadWorkerOptions struct {
	Jobs   queue.Queue[uploads.Job]
	Store  uploads.BlobStore
	Videos VideoTracker
	// Concurrency is the number of uploads run at once. Defaults to 2.
	Concurrency int
	// ProgressInterval throttles progress writes. Defaults to one second.
	ProgressInterval time.Duration
}

// NewUploadWorker creates a new UploadWorker.
// The worker pushes spooled videos to the blob store and reports the result
// so the round can advance.
func NewUploadWorker(opts NewUploadWorkerOptions) *UploadWorker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &UploadWorker{
		jobs:             opts.Jobs,
		store:            opts.Store,
		videos:           opts.Videos,
		concurrency:      concurrency,
		progressInterval: interval,
	}
}

// Start runs until ctx is done. Jobs still queued at that point are marked failed.
func (w *UploadWorker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := w.jobs.Dequeue(ctx)
				if err != nil {
					return
				}
				w.process(ctx, job)
			}
		}()
	}
	wg.Wait()

	for _, job := range w.jobs.Drain() {
		w.fail(job, remote.VideoErrorInterrupted, "server shutting down")
	}
}

func (w *UploadWorker) process(ctx context.Context, job uploads.Job) {
	defer os.Remove(job.Path)

	f, err := os.Open(job.Path)
	if err != nil {
		log.Error("Failed to open spooled video %s: %v", job.VideoID, err)
		w.fail(job, remote.VideoErrorSpoolMissing, "video payload was lost")
		return
	}
	defer f.Close()

	var last time.Time
	progress := func(uploaded int64) {
		if uploaded < job.Size && time.Since(last) < w.progressInterval {
			return
		}
		last = time.Now()
		if err := w.videos.RecordProgress(ctx, job.VideoID, uploaded); err != nil {
			log.Warn("Failed to record progress of video %s: %v", job.VideoID, err)
		}
	}

	start := time.Now()
	url, err := w.store.Upload(ctx, job.Key, job.ContentType, f, job.Size, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.fail(job, remote.VideoErrorInterrupted, "server shutting down")
			return
		}
		log.Error("Failed to upload video %s: %v", job.VideoID, err)
		w.fail(job, remote.VideoErrorUploadFailed, err.Error())
		return
	}

	if _, err := w.videos.CompleteVideo(context.WithoutCancel(ctx), job.VideoID, url); err != nil {
		log.Error("Failed to complete video %s: %v", job.VideoID, err)
		return
	}
	log.Debug("Uploaded video %s (%d bytes) in %s", job.VideoID, job.Size, time.Since(start))
}

func (w *UploadWorker) fail(job uploads.Job, code, message string) {
	os.Remove(job.Path)
	if err := w.videos.FailVideo(context.Background(), job.VideoID, code, message); err != nil {
		log.Error("Failed to mark video %s as failed: %v", job.VideoID, err)
	}
}
