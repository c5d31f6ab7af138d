package service

import (
	"edumaster/media-api/internal/model"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Uploads owns the resumable upload session state machine. Every mutation
// of a session happens under that session's own lock, so two concurrent
// requests can't double-merge or double-count, while sessions never block
// each other.
type Uploads struct {
	DB    *gorm.DB
	Store *ChunkStore

	maxFileSize  int64
	chunkSize    int64
	sessionTTL   time.Duration
	allowedTypes []string

	locks sync.Map
}

// InitiateResult is what a client needs to start sending chunks
type InitiateResult struct {
	SessionID string    `json:"session_id"`
	ChunkSize int64     `json:"chunk_size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResult mirrors the session's latest committed state
type StatusResult struct {
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	Uploaded    int       `json:"uploaded_chunks"`
	TotalChunks int       `json:"total_chunks"`
	Progress    float64   `json:"progress"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewUploads(db *gorm.DB, store *ChunkStore) *Uploads {
	return &Uploads{
		DB:           db,
		Store:        store,
		maxFileSize:  viper.GetInt64("upload.max_size"),
		chunkSize:    viper.GetInt64("upload.chunk_size"),
		sessionTTL:   viper.GetDuration("upload.session_ttl"),
		allowedTypes: viper.GetStringSlice("upload.allowed_types"),
	}
}

func (u *Uploads) lock(sessionID string) func() {
	mu, _ := u.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// Initiate validates the upload request, creates a pending session and
// allocates its storage area.
func (u *Uploads) Initiate(ownerID, fileName string, fileSize int64, mimeType string, totalChunks int, chunkHashes []string) (*InitiateResult, error) {
	if fileSize <= 0 || fileSize > u.maxFileSize {
		return nil, fmt.Errorf("file size %d outside allowed range: %w", fileSize, ErrInvalidInput)
	}

	// The name is display metadata, it never becomes a path component.
	// Separators are still rejected so a client can't even pretend.
	if fileName == "" || fileName == "." || fileName == ".." || strings.ContainsAny(fileName, `/\`) {
		return nil, fmt.Errorf("invalid file name %q: %w", fileName, ErrInvalidInput)
	}

	if len(u.allowedTypes) > 0 && !slices.Contains(u.allowedTypes, mimeType) {
		return nil, fmt.Errorf("file type %s is not supported: %w", mimeType, ErrInvalidInput)
	}

	expected := int(math.Ceil(float64(fileSize) / float64(u.chunkSize)))
	if totalChunks != expected {
		return nil, fmt.Errorf("invalid chunk count, expected %d got %d: %w", expected, totalChunks, ErrInvalidInput)
	}

	if len(chunkHashes) != totalChunks {
		return nil, fmt.Errorf("expected %d chunk hashes, got %d: %w", totalChunks, len(chunkHashes), ErrInvalidInput)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id, %w", err)
	}

	session := &model.UploadSession{
		ID:             id,
		OwnerID:        ownerID,
		FileName:       fileName,
		FileSize:       fileSize,
		MimeType:       mimeType,
		TotalChunks:    totalChunks,
		ChunkHashes:    chunkHashes,
		UploadedChunks: model.IntSlice{},
		Status:         model.UploadPending,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(u.sessionTTL),
	}

	if err := u.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create upload session, %w", err)
	}

	if err := u.Store.Allocate(id); err != nil {
		return nil, err
	}

	zap.L().Info("Upload session initiated",
		zap.String("sessionID", id),
		zap.Int64("size", fileSize),
		zap.Int("chunks", totalChunks),
	)

	return &InitiateResult{
		SessionID: id,
		ChunkSize: u.chunkSize,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// load fetches a session and enforces ownership plus lazy expiry. Must be
// called with the session lock held.
func (u *Uploads) load(ownerID, sessionID string) (*model.UploadSession, error) {
	var session model.UploadSession
	if err := u.DB.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load upload session, %w", err)
	}

	if session.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	if !session.Terminal() && time.Now().After(session.ExpiresAt) {
		session.Status = model.UploadExpired
		if err := u.DB.Save(&session).Error; err != nil {
			return nil, fmt.Errorf("failed to expire session, %w", err)
		}
		if err := u.Store.Purge(session.ID); err != nil {
			zap.L().Error("Failed to purge expired session storage", zap.String("sessionID", session.ID), zap.Error(err))
		}
	}

	return &session, nil
}

// SubmitChunk verifies one chunk against the hash recorded at initiate
// time and commits it to storage. Corrupt bytes are rejected before
// anything touches disk. Re-sending an index the session already has is
// idempotent.
func (u *Uploads) SubmitChunk(ownerID, sessionID string, chunkIndex int, data []byte, claimedHash string) (*StatusResult, error) {
	defer u.lock(sessionID)()

	session, err := u.load(ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Terminal() {
		return nil, fmt.Errorf("session is %s: %w", session.Status, ErrInvalidState)
	}

	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, fmt.Errorf("chunk index %d of %d: %w", chunkIndex, session.TotalChunks, ErrOutOfRange)
	}

	expected := session.ChunkHashes[chunkIndex]
	if claimedHash != expected || HashBytes(data) != expected {
		return nil, fmt.Errorf("chunk %d: %w", chunkIndex, ErrIntegrityMismatch)
	}

	if err := u.Store.Put(sessionID, chunkIndex, data); err != nil {
		return nil, err
	}

	if !session.UploadedChunks.Contains(chunkIndex) {
		session.UploadedChunks = append(session.UploadedChunks, chunkIndex)
	}
	if session.Status == model.UploadPending {
		session.Status = model.UploadUploading
	}

	if err := u.DB.Save(session).Error; err != nil {
		return nil, fmt.Errorf("failed to update upload session, %w", err)
	}

	return statusOf(session), nil
}

// assembledName is the server-chosen name the merged file is written
// under. Only the extension carries over from the client's name, so the
// result can never collide with a chunk slot or point outside the
// session's storage area.
func assembledName(fileName string) string {
	return "source" + filepath.Ext(fileName)
}

// Complete merges all chunks in index order, re-hashes the assembled file
// and registers a media item against it. A hash mismatch or a wrong
// actual content type fails the session and reclaims its storage, since
// the caller has to restart from scratch anyway.
func (u *Uploads) Complete(ownerID, sessionID, finalHash, title string) (*model.MediaItem, error) {
	defer u.lock(sessionID)()

	session, err := u.load(ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Terminal() {
		return nil, fmt.Errorf("session is %s: %w", session.Status, ErrInvalidState)
	}

	if session.UploadedCount() != session.TotalChunks {
		return nil, fmt.Errorf("%d of %d chunks uploaded: %w", session.UploadedCount(), session.TotalChunks, ErrIncomplete)
	}

	dst := u.Store.Path(sessionID, assembledName(session.FileName))
	if err := u.Store.Merge(sessionID, session.TotalChunks, dst); err != nil {
		u.fail(session)
		return nil, err
	}

	merged, err := HashFile(dst)
	if err != nil {
		u.fail(session)
		return nil, err
	}

	if merged != finalHash {
		u.fail(session)
		return nil, fmt.Errorf("assembled file: %w", ErrIntegrityMismatch)
	}

	// The per-chunk hashes only prove the bytes arrived intact, not that
	// the client didn't lie about what they are
	mime, err := mimetype.DetectFile(dst)
	if err != nil {
		u.fail(session)
		return nil, fmt.Errorf("failed to detect file type, %w", err)
	}
	if len(u.allowedTypes) > 0 && !slices.Contains(u.allowedTypes, mime.String()) {
		u.fail(session)
		return nil, fmt.Errorf("assembled file is %s: %w", mime.String(), ErrInvalidInput)
	}

	item := &model.MediaItem{
		ID:               uuid.NewString(),
		OwnerID:          session.OwnerID,
		Title:            title,
		SourcePath:       dst,
		ProcessingStatus: model.ProcessingPending,
		CreatedAt:        time.Now(),
	}

	// The item must exist before the session reads completed, otherwise
	// the cleanup sweep could see a completed session whose assembled
	// source nothing references yet and reclaim it
	session.Status = model.UploadCompleted
	err = u.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return tx.Save(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete upload session, %w", err)
	}

	zap.L().Info("Upload session completed",
		zap.String("sessionID", sessionID),
		zap.String("mediaID", item.ID),
	)
	return item, nil
}

// Status returns the latest committed state of a session
func (u *Uploads) Status(ownerID, sessionID string) (*StatusResult, error) {
	defer u.lock(sessionID)()

	session, err := u.load(ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	return statusOf(session), nil
}

// Cancel aborts a not-yet-completed session and reclaims its storage
func (u *Uploads) Cancel(ownerID, sessionID string) error {
	defer u.lock(sessionID)()

	session, err := u.load(ownerID, sessionID)
	if err != nil {
		return err
	}

	if session.Status == model.UploadCompleted {
		return fmt.Errorf("session already completed: %w", ErrInvalidState)
	}

	u.fail(session)

	zap.L().Info("Upload session cancelled", zap.String("sessionID", sessionID))
	return nil
}

// fail transitions a session to failed and purges its chunks. Purge runs
// after the status write so that a racing chunk submission sees the
// terminal state and can't recreate storage.
func (u *Uploads) fail(session *model.UploadSession) {
	session.Status = model.UploadFailed
	if err := u.DB.Save(session).Error; err != nil {
		zap.L().Error("Failed to mark session as failed", zap.String("sessionID", session.ID), zap.Error(err))
	}

	if err := u.Store.Purge(session.ID); err != nil {
		zap.L().Error("Failed to purge session storage", zap.String("sessionID", session.ID), zap.Error(err))
	}
}

func statusOf(session *model.UploadSession) *StatusResult {
	return &StatusResult{
		SessionID:   session.ID,
		Status:      session.Status,
		Uploaded:    session.UploadedCount(),
		TotalChunks: session.TotalChunks,
		Progress:    session.Progress(),
		ExpiresAt:   session.ExpiresAt,
	}
}
