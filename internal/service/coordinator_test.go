package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edumaster/media-api/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeTranscoder struct {
	probeErr     error
	renditionErr error
	probeCalls   int
}

func (f *fakeTranscoder) Probe(string) (*MediaInfo, error) {
	f.probeCalls++
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &MediaInfo{Duration: 42.5, Width: 1280, Height: 720, Bitrate: 3_000_000}, nil
}

func (f *fakeTranscoder) Thumbnail(_ context.Context, _, outDir string, _ float64) (string, error) {
	return filepath.Join(outDir, "thumbnail.jpg"), nil
}

func (f *fakeTranscoder) Renditions(_ context.Context, _, outDir string, sourceWidth int) ([]Rendition, error) {
	if f.renditionErr != nil {
		return nil, f.renditionErr
	}
	return SelectRenditions(sourceWidth), nil
}

func (f *fakeTranscoder) WriteManifest(_ context.Context, outDir string, _ []Rendition) (string, error) {
	return filepath.Join(outDir, "playlist.m3u8"), nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) PublishAll(context.Context, string, string) (*PublishedArtifacts, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &PublishedArtifacts{
		VideoURL:     "https://cdn/original.mp4",
		ManifestURL:  "https://cdn/playlist.m3u8",
		ThumbnailURL: "https://cdn/thumbnail.jpg",
	}, nil
}

func newTestCoordinator(t *testing.T, db *gorm.DB, tr MediaTranscoder, pub ArtifactPublisher) *Coordinator {
	t.Helper()

	progress := NewProgressTracker(time.Minute)
	t.Cleanup(progress.Close)

	return &Coordinator{
		DB:         db,
		Transcoder: tr,
		Publisher:  pub,
		Progress:   progress,
		jobs:       make(chan *Job, 2),
		workers:    1,
		outputRoot: t.TempDir(),
	}
}

func pendingItem(t *testing.T, db *gorm.DB, id string) *model.MediaItem {
	t.Helper()

	item := &model.MediaItem{
		ID:               id,
		OwnerID:          "owner",
		SourcePath:       "/tmp/source.mp4",
		ProcessingStatus: model.ProcessingPending,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func mustItem(t *testing.T, db *gorm.DB, id string) *model.MediaItem {
	t.Helper()

	var item model.MediaItem
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	return &item
}

func TestProcessSuccess(t *testing.T) {
	db := newTestDB(t)
	c := newTestCoordinator(t, db, &fakeTranscoder{}, &fakePublisher{})
	pendingItem(t, db, "m1")

	require.NoError(t, c.process(&Job{Kind: JobUploadComplete, MediaID: "m1", SourcePath: "/tmp/source.mp4"}))

	item := mustItem(t, db, "m1")
	require.Equal(t, model.ProcessingCompleted, item.ProcessingStatus)
	require.Equal(t, 42.5, item.Duration)
	require.Equal(t, "https://cdn/original.mp4", item.VideoURL)
	require.Equal(t, "https://cdn/playlist.m3u8", item.ManifestURL)
	require.Equal(t, "https://cdn/thumbnail.jpg", item.ThumbnailURL)

	// Local artifacts are gone after a successful publish
	_, err := os.Stat(filepath.Join(c.outputRoot, "m1"))
	require.True(t, os.IsNotExist(err))

	p, ok := c.Progress.Get("m1")
	require.True(t, ok)
	require.Equal(t, 100.0, p.Progress)
}

func TestProcessTranscodeFailure(t *testing.T) {
	db := newTestDB(t)
	tr := &fakeTranscoder{renditionErr: ErrTranscode}
	c := newTestCoordinator(t, db, tr, &fakePublisher{})

	item := pendingItem(t, db, "m1")
	item.VideoURL = "https://cdn/stale.mp4"
	require.NoError(t, db.Save(item).Error)

	err := c.process(&Job{Kind: JobUploadComplete, MediaID: "m1", SourcePath: "/tmp/source.mp4"})
	require.ErrorIs(t, err, ErrTranscode)

	after := mustItem(t, db, "m1")
	require.Equal(t, model.ProcessingFailed, after.ProcessingStatus)

	// No stale URLs on a failed item
	require.Empty(t, after.VideoURL)
	require.Empty(t, after.ManifestURL)
	require.Empty(t, after.ThumbnailURL)
}

func TestProcessPublishFailureMarksFailed(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{err: ErrPublish}
	c := newTestCoordinator(t, db, &fakeTranscoder{}, pub)
	pendingItem(t, db, "m1")

	err := c.process(&Job{Kind: JobUploadComplete, MediaID: "m1", SourcePath: "/tmp/source.mp4"})
	require.ErrorIs(t, err, ErrPublish)

	require.Equal(t, model.ProcessingFailed, mustItem(t, db, "m1").ProcessingStatus)
}

func TestProcessSkipsNonPendingItem(t *testing.T) {
	db := newTestDB(t)
	tr := &fakeTranscoder{}
	c := newTestCoordinator(t, db, tr, &fakePublisher{})

	item := pendingItem(t, db, "m1")
	item.ProcessingStatus = model.ProcessingRunning
	require.NoError(t, db.Save(item).Error)

	// A second job for an item that's already claimed must not run
	require.NoError(t, c.process(&Job{Kind: JobReprocess, MediaID: "m1"}))
	require.Zero(t, tr.probeCalls)
	require.Equal(t, model.ProcessingRunning, mustItem(t, db, "m1").ProcessingStatus)
}

func TestRequeuePending(t *testing.T) {
	db := newTestDB(t)
	c := newTestCoordinator(t, db, &fakeTranscoder{}, &fakePublisher{})

	src := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o644))

	require.NoError(t, db.Create(&model.MediaItem{
		ID:               "has-source",
		SourcePath:       src,
		ProcessingStatus: model.ProcessingPending,
		CreatedAt:        time.Now(),
	}).Error)
	require.NoError(t, db.Create(&model.MediaItem{
		ID:               "lost-source",
		SourcePath:       filepath.Join(t.TempDir(), "nope.mp4"),
		ProcessingStatus: model.ProcessingPending,
		CreatedAt:        time.Now(),
	}).Error)
	require.NoError(t, db.Create(&model.MediaItem{
		ID:               "already-done",
		SourcePath:       src,
		ProcessingStatus: model.ProcessingCompleted,
		CreatedAt:        time.Now(),
	}).Error)

	c.RequeuePending()

	require.Len(t, c.jobs, 1)
	job := <-c.jobs
	require.Equal(t, JobReprocess, job.Kind)
	require.Equal(t, "has-source", job.MediaID)
	require.Equal(t, src, job.SourcePath)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	db := newTestDB(t)
	c := newTestCoordinator(t, db, &fakeTranscoder{}, &fakePublisher{})

	require.NoError(t, c.Enqueue(&Job{MediaID: "a"}))
	require.NoError(t, c.Enqueue(&Job{MediaID: "b"}))
	require.ErrorIs(t, c.Enqueue(&Job{MediaID: "c"}), ErrQueueFull)
}

func TestProcessUnknownItem(t *testing.T) {
	db := newTestDB(t)
	tr := &fakeTranscoder{}
	c := newTestCoordinator(t, db, tr, &fakePublisher{})

	require.NoError(t, c.process(&Job{MediaID: "ghost"}))
	require.Zero(t, tr.probeCalls)
}
