// Package model defines database models
package model

import "time"

// Upload session states. A session only ever moves forward:
// pending -> uploading -> completed/failed, and anything that isn't
// completed may still become expired once its deadline passes.
const (
	UploadPending   = "pending"
	UploadUploading = "uploading"
	UploadCompleted = "completed"
	UploadFailed    = "failed"
	UploadExpired   = "expired"
)

type UploadSession struct {
	ID      string `gorm:"primaryKey" json:"session_id"`
	OwnerID string `gorm:"index" json:"-"`

	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`

	TotalChunks int `json:"total_chunks"`
	// One expected sha256 per chunk index, recorded at initiate time
	ChunkHashes StringSlice `json:"-"`
	// Indices that were actually received. Kept as a set instead of a
	// counter so that re-sending a chunk can't inflate the progress
	UploadedChunks IntSlice `json:"-"`

	Status    string    `gorm:"index" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadedCount returns how many distinct chunks have been received
func (s *UploadSession) UploadedCount() int {
	return len(s.UploadedChunks)
}

// Progress returns the upload progress in percent
func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(len(s.UploadedChunks)) / float64(s.TotalChunks) * 100
}

// Terminal reports whether the session can't accept any further writes
func (s *UploadSession) Terminal() bool {
	return s.Status == UploadCompleted || s.Status == UploadFailed || s.Status == UploadExpired
}
