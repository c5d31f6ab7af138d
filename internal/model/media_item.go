package model

import "time"

// Media item processing states
const (
	ProcessingPending   = "pending"
	ProcessingRunning   = "processing"
	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
)

// MediaItem is the record a completed upload is registered against. URLs
// are only ever populated on a fully successful processing run and are
// cleared again the moment the item fails, so a failed item never exposes
// stale links.
type MediaItem struct {
	ID      string `gorm:"primaryKey" json:"id"`
	OwnerID string `gorm:"index" json:"-"`

	Title string `json:"title"`
	// Assembled source file the processing job reads from
	SourcePath string `json:"-"`

	Duration         float64 `json:"duration"`
	ProcessingStatus string  `gorm:"index" json:"processing_status"`

	VideoURL     string `json:"video_url,omitempty"`
	ManifestURL  string `json:"manifest_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}
