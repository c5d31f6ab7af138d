package service

import (
	"os"
	"path/filepath"
	"time"

	"edumaster/media-api/internal/model"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GarbageCollector periodically reclaims what the happy path leaves
// behind: expired sessions, storage of long-failed ones, artifacts of
// failed processing runs, and directories nothing references anymore.
// Every sweep is delete-if-exists and status-guarded, so overlapping runs
// and back-to-back runs are harmless.
type GarbageCollector struct {
	DB    *gorm.DB
	Store *ChunkStore

	outputRoot       string
	failedSessionTTL time.Duration
	failedMediaTTL   time.Duration

	cron *cron.Cron
}

func NewGarbageCollector(db *gorm.DB, store *ChunkStore) *GarbageCollector {
	return &GarbageCollector{
		DB:               db,
		Store:            store,
		outputRoot:       viper.GetString("transcode.output_dir"),
		failedSessionTTL: viper.GetDuration("cleanup.failed_session_ttl"),
		failedMediaTTL:   viper.GetDuration("cleanup.failed_media_ttl"),
	}
}

// Start schedules the sweeps on a fixed interval
func (g *GarbageCollector) Start() error {
	g.cron = cron.New()

	_, err := g.cron.AddFunc("@every "+viper.GetDuration("cleanup.interval").String(), g.Run)
	if err != nil {
		return err
	}

	g.cron.Start()
	zap.L().Info("Garbage collector scheduled", zap.Duration("every", viper.GetDuration("cleanup.interval")))
	return nil
}

func (g *GarbageCollector) Stop() {
	if g.cron != nil {
		g.cron.Stop()
	}
}

// Run executes all sweeps once. Each sweep is independent, one failing
// doesn't stop the others.
func (g *GarbageCollector) Run() {
	started := time.Now()

	g.sweepExpiredSessions()
	g.sweepFailedSessions()
	g.sweepFailedMedia()
	g.sweepOrphanTempDirs()
	g.sweepOrphanArtifacts()

	zap.L().Debug("Garbage collection finished", zap.Duration("took", time.Since(started)))
}

// Sessions past their deadline that never completed lose their storage
// and move to expired
func (g *GarbageCollector) sweepExpiredSessions() {
	var sessions []model.UploadSession

	err := g.DB.
		Where("expires_at < ? AND status NOT IN ?", time.Now(), []string{model.UploadCompleted, model.UploadExpired}).
		Find(&sessions).
		Error
	if err != nil {
		zap.L().Error("Failed to query expired sessions", zap.Error(err))
		return
	}

	for _, s := range sessions {
		if err := g.Store.Purge(s.ID); err != nil {
			zap.L().Error("Failed to purge expired session", zap.String("sessionID", s.ID), zap.Error(err))
			continue
		}

		err := g.DB.
			Model(model.UploadSession{}).
			Where("id = ?", s.ID).
			Update("status", model.UploadExpired).
			Error
		if err != nil {
			zap.L().Error("Failed to expire session", zap.String("sessionID", s.ID), zap.Error(err))
			continue
		}

		zap.L().Info("Expired upload session", zap.String("sessionID", s.ID))
	}
}

// Failed sessions keep their chunks for a while for inspection, then the
// disk space is reclaimed. The record stays failed.
func (g *GarbageCollector) sweepFailedSessions() {
	var ids []string

	err := g.DB.
		Model(model.UploadSession{}).
		Where("status = ? AND updated_at < ?", model.UploadFailed, time.Now().Add(-g.failedSessionTTL)).
		Select("id").
		Find(&ids).
		Error
	if err != nil {
		zap.L().Error("Failed to query failed sessions", zap.Error(err))
		return
	}

	for _, id := range ids {
		if err := g.Store.Purge(id); err != nil {
			zap.L().Error("Failed to purge failed session", zap.String("sessionID", id), zap.Error(err))
		}
	}
}

// Media items that sat in failed past the cooldown get a clean slate:
// partial artifacts removed, URLs cleared, status back to pending so the
// next enqueue can try again
func (g *GarbageCollector) sweepFailedMedia() {
	var items []model.MediaItem

	err := g.DB.
		Where("processing_status = ? AND updated_at < ?", model.ProcessingFailed, time.Now().Add(-g.failedMediaTTL)).
		Find(&items).
		Error
	if err != nil {
		zap.L().Error("Failed to query failed media items", zap.Error(err))
		return
	}

	for _, item := range items {
		if err := os.RemoveAll(filepath.Join(g.outputRoot, item.ID)); err != nil {
			zap.L().Error("Failed to remove artifacts", zap.String("mediaID", item.ID), zap.Error(err))
			continue
		}

		err := g.DB.
			Model(model.MediaItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"processing_status": model.ProcessingPending,
				"video_url":         "",
				"manifest_url":      "",
				"thumbnail_url":     "",
			}).
			Error
		if err != nil {
			zap.L().Error("Failed to reset media item", zap.String("mediaID", item.ID), zap.Error(err))
			continue
		}

		zap.L().Info("Reset failed media item for retry", zap.String("mediaID", item.ID))
	}
}

// Temp storage should only exist for in-progress sessions. Directories
// without a session record, or whose session already completed, are dead
// weight.
func (g *GarbageCollector) sweepOrphanTempDirs() {
	ids, err := g.Store.SessionDirs()
	if err != nil {
		zap.L().Error("Failed to list session storage", zap.Error(err))
		return
	}

	for _, id := range ids {
		var session model.UploadSession

		err := g.DB.Where("id = ?", id).First(&session).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			zap.L().Error("Failed to look up session", zap.String("sessionID", id), zap.Error(err))
			continue
		}

		if err == gorm.ErrRecordNotFound || session.Status == model.UploadCompleted {
			// A completed session's dir still holds the assembled source
			// until processing is done with it
			if session.Status == model.UploadCompleted && g.sourceStillNeeded(id) {
				continue
			}

			if err := g.Store.Purge(id); err != nil {
				zap.L().Error("Failed to remove orphan temp dir", zap.String("sessionID", id), zap.Error(err))
				continue
			}

			zap.L().Info("Removed orphan temp dir", zap.String("sessionID", id))
		}
	}
}

// sourceStillNeeded reports whether any unfinished media item reads its
// source out of the given session's storage area. Compared path by path,
// a pattern match could bleed into other sessions since ids may contain
// LIKE wildcard characters.
func (g *GarbageCollector) sourceStillNeeded(sessionID string) bool {
	var paths []string

	err := g.DB.
		Model(model.MediaItem{}).
		Where("processing_status IN ?", []string{model.ProcessingPending, model.ProcessingRunning}).
		Pluck("source_path", &paths).
		Error
	if err != nil {
		zap.L().Error("Failed to check source usage", zap.String("sessionID", sessionID), zap.Error(err))
		return true
	}

	dir := g.Store.sessionDir(sessionID)
	for _, p := range paths {
		if filepath.Dir(p) == dir {
			return true
		}
	}

	return false
}

// Output artifacts without a media item, or belonging to a failed one,
// are deleted. A failed item's next attempt starts from the source again
// anyway.
func (g *GarbageCollector) sweepOrphanArtifacts() {
	entries, err := os.ReadDir(g.outputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		zap.L().Error("Failed to list output directory", zap.Error(err))
		return
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		var item model.MediaItem

		err := g.DB.Where("id = ?", e.Name()).First(&item).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			zap.L().Error("Failed to look up media item", zap.String("mediaID", e.Name()), zap.Error(err))
			continue
		}

		if err == gorm.ErrRecordNotFound || item.ProcessingStatus == model.ProcessingFailed {
			if err := os.RemoveAll(filepath.Join(g.outputRoot, e.Name())); err != nil {
				zap.L().Error("Failed to remove orphan artifacts", zap.String("mediaID", e.Name()), zap.Error(err))
				continue
			}

			zap.L().Info("Removed orphan artifacts", zap.String("mediaID", e.Name()))
		}
	}
}
