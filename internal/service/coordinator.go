package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"edumaster/media-api/internal/model"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobKind tags the reason a media item is being processed
type JobKind string

const (
	JobUploadComplete JobKind = "upload-complete"
	JobReprocess      JobKind = "reprocess"
)

// Job is one unit of processing work for a single media item
type Job struct {
	Kind       JobKind
	MediaID    string
	SourcePath string
}

// MediaTranscoder is the transcoding pipeline the coordinator drives.
// Broken out as an interface so tests don't need ffmpeg installed.
type MediaTranscoder interface {
	Probe(path string) (*MediaInfo, error)
	Thumbnail(ctx context.Context, src, outDir string, duration float64) (string, error)
	Renditions(ctx context.Context, src, outDir string, sourceWidth int) ([]Rendition, error)
	WriteManifest(ctx context.Context, outDir string, renditions []Rendition) (string, error)
}

// ArtifactPublisher pushes a finished output directory to durable storage
type ArtifactPublisher interface {
	PublishAll(ctx context.Context, mediaID, outDir string) (*PublishedArtifacts, error)
}

// Coordinator consumes processing jobs from a bounded queue and runs them
// on a fixed pool of workers. Jobs for different media items run in
// parallel; a single media item can never have two jobs in flight because
// only the pending -> processing transition admits a job, and that
// transition is a guarded database update.
type Coordinator struct {
	DB         *gorm.DB
	Transcoder MediaTranscoder
	Publisher  ArtifactPublisher
	Progress   *ProgressTracker

	jobs       chan *Job
	workers    int
	outputRoot string
}

func NewCoordinator(db *gorm.DB, t MediaTranscoder, p *ProgressTracker, pub ArtifactPublisher) *Coordinator {
	return &Coordinator{
		DB:         db,
		Transcoder: t,
		Publisher:  pub,
		Progress:   p,
		jobs:       make(chan *Job, viper.GetInt("transcode.max_jobs")),
		workers:    viper.GetInt("transcode.workers"),
		outputRoot: viper.GetString("transcode.output_dir"),
	}
}

func (c *Coordinator) StartWorkerPool() {
	for range c.workers {
		go c.worker()
	}

	zap.L().Info("Transcoding worker pool started", zap.Int("workers", c.workers))
}

func (c *Coordinator) worker() {
	for job := range c.jobs {
		if err := c.process(job); err != nil {
			zap.L().Error("Processing job failed",
				zap.String("mediaID", job.MediaID),
				zap.String("kind", string(job.Kind)),
				zap.Error(err),
			)
		}
	}
}

// RequeuePending puts every item still marked pending back on the queue.
// Covers jobs lost to a restart and items the garbage collector reset
// after a long failure. Items whose source file no longer exists are left
// alone, they have nothing to process from.
func (c *Coordinator) RequeuePending() {
	var items []model.MediaItem

	err := c.DB.
		Where("processing_status = ?", model.ProcessingPending).
		Find(&items).
		Error
	if err != nil {
		zap.L().Error("Failed to query pending media items", zap.Error(err))
		return
	}

	for _, item := range items {
		if item.SourcePath == "" {
			continue
		}

		if _, err := os.Stat(item.SourcePath); err != nil {
			zap.L().Warn("Not requeueing media item, source is gone",
				zap.String("mediaID", item.ID),
				zap.String("source", item.SourcePath),
			)
			continue
		}

		err := c.Enqueue(&Job{
			Kind:       JobReprocess,
			MediaID:    item.ID,
			SourcePath: item.SourcePath,
		})
		if err != nil {
			zap.L().Warn("Queue filled up during requeue", zap.String("mediaID", item.ID))
			return
		}

		zap.L().Info("Requeued pending media item", zap.String("mediaID", item.ID))
	}
}

// Enqueue hands a job to the pool without blocking the caller. A full
// queue is surfaced immediately so the client can back off.
func (c *Coordinator) Enqueue(job *Job) error {
	select {
	case c.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// process runs one job start to finish. Failures mark the item failed with
// its URLs cleared and are never retried here; the garbage collector
// resets long-failed items back to pending on its own schedule.
func (c *Coordinator) process(job *Job) error {
	// Only one job may own an item. The guarded update loses cleanly when
	// the item isn't pending anymore.
	res := c.DB.
		Model(model.MediaItem{}).
		Where("id = ? AND processing_status = ?", job.MediaID, model.ProcessingPending).
		Update("processing_status", model.ProcessingRunning)
	if res.Error != nil {
		return fmt.Errorf("failed to claim media item, %w", res.Error)
	}
	if res.RowsAffected == 0 {
		zap.L().Warn("Skipping job, media item not pending", zap.String("mediaID", job.MediaID))
		return nil
	}

	zap.L().Info("Processing media item", zap.String("mediaID", job.MediaID), zap.String("kind", string(job.Kind)))
	started := time.Now()

	info, err := c.run(job)
	if err != nil {
		c.markFailed(job.MediaID)
		return err
	}

	zap.L().Info("Media item processed",
		zap.String("mediaID", job.MediaID),
		zap.Float64("duration", info.Duration),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

func (c *Coordinator) run(job *Job) (*MediaInfo, error) {
	ctx := context.Background()

	info, err := c.Transcoder.Probe(job.SourcePath)
	if err != nil {
		return nil, err
	}
	c.Progress.Report(job.MediaID, "extracting-metadata", 10)

	outDir := filepath.Join(c.outputRoot, job.MediaID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory, %w", err)
	}

	if _, err := c.Transcoder.Thumbnail(ctx, job.SourcePath, outDir, info.Duration); err != nil {
		return nil, err
	}

	renditions, err := c.Transcoder.Renditions(ctx, job.SourcePath, outDir, info.Width)
	if err != nil {
		return nil, err
	}
	c.Progress.Report(job.MediaID, "transcoding-renditions", 50)

	if _, err := c.Transcoder.WriteManifest(ctx, outDir, renditions); err != nil {
		return nil, err
	}
	c.Progress.Report(job.MediaID, "building-manifest", 90)

	published, err := c.Publisher.PublishAll(ctx, job.MediaID, outDir)
	if err != nil {
		return nil, err
	}

	err = c.DB.
		Model(model.MediaItem{}).
		Where("id = ?", job.MediaID).
		Updates(map[string]any{
			"processing_status": model.ProcessingCompleted,
			"duration":          info.Duration,
			"video_url":         published.VideoURL,
			"manifest_url":      published.ManifestURL,
			"thumbnail_url":     published.ThumbnailURL,
		}).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark media item completed, %w", err)
	}
	c.Progress.Report(job.MediaID, "done", 100)

	// Local artifacts are only useful for debugging failures
	if err := os.RemoveAll(outDir); err != nil {
		zap.L().Error("Failed to remove local artifacts", zap.String("mediaID", job.MediaID), zap.Error(err))
	}

	return info, nil
}

// markFailed drops the item into failed with every URL cleared, so a
// consumer can never see links from an earlier partial success
func (c *Coordinator) markFailed(mediaID string) {
	err := c.DB.
		Model(model.MediaItem{}).
		Where("id = ?", mediaID).
		Updates(map[string]any{
			"processing_status": model.ProcessingFailed,
			"video_url":         "",
			"manifest_url":      "",
			"thumbnail_url":     "",
		}).
		Error
	if err != nil {
		zap.L().Error("Failed to mark media item as failed", zap.String("mediaID", mediaID), zap.Error(err))
	}

	c.Progress.Report(mediaID, "failed", 0)
}
