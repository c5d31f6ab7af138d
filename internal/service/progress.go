package service

import (
	"time"

	"github.com/jellydator/ttlcache/v2"
)

// JobProgress is one coarse progress snapshot of a processing job
type JobProgress struct {
	MediaID  string  `json:"media_id"`
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
}

// ProgressTracker keeps the latest progress snapshot per media item.
// Entries fall out on their own after the TTL, so finished or abandoned
// jobs don't pile up in memory.
type ProgressTracker struct {
	cache *ttlcache.Cache
}

func NewProgressTracker(ttl time.Duration) *ProgressTracker {
	c := ttlcache.NewCache()
	c.SetTTL(ttl)
	c.SkipTTLExtensionOnHit(true)

	return &ProgressTracker{cache: c}
}

func (p *ProgressTracker) Report(mediaID, step string, percent float64) {
	p.cache.Set(mediaID, JobProgress{
		MediaID:  mediaID,
		Step:     step,
		Progress: percent,
	})
}

// Get returns the latest snapshot, or ok=false when no job reported
// recently
func (p *ProgressTracker) Get(mediaID string) (JobProgress, bool) {
	v, err := p.cache.Get(mediaID)
	if err != nil {
		return JobProgress{}, false
	}

	return v.(JobProgress), true
}

func (p *ProgressTracker) Close() {
	p.cache.Close()
}
