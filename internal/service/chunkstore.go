package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ChunkStore keeps the chunks of in-progress uploads on disk, one
// directory per session with numbered chunk files inside. A chunk slot is
// only ever replaced wholesale: writes go to a temp name first and are
// renamed into place, so a reader never observes a half-written chunk.
type ChunkStore struct {
	root string
}

func NewChunkStore(root string) (*ChunkStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk storage root, %w", err)
	}

	return &ChunkStore{root: root}, nil
}

func (s *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *ChunkStore) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("chunk_%d", index))
}

// Allocate creates the storage area for a new session
func (s *ChunkStore) Allocate(sessionID string) error {
	if err := os.MkdirAll(s.sessionDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("failed to allocate session storage, %w", err)
	}
	return nil
}

// Put writes one chunk into its slot. Overwriting an existing slot is fine.
// Writing into a session whose storage was already purged fails with
// ErrInvalidState instead of silently recreating the directory, so a late
// chunk can't resurrect a cancelled upload.
func (s *ChunkStore) Put(sessionID string, index int, data []byte) error {
	dir := s.sessionDir(sessionID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrInvalidState
		}
		return fmt.Errorf("failed to stat session storage, %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf("chunk_%d_*.part", index))
	if err != nil {
		return fmt.Errorf("failed to create chunk temp file, %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write chunk, %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close chunk temp file, %w", err)
	}

	if err := os.Rename(tmp.Name(), s.chunkPath(sessionID, index)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move chunk into place, %w", err)
	}

	return nil
}

// Merge streams every chunk, in index order, into dst and returns the
// path of the assembled file. Any absent slot fails the merge with
// ErrMissingChunk.
func (s *ChunkStore) Merge(sessionID string, totalChunks int, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create merge destination, %w", err)
	}
	defer out.Close()

	for i := range totalChunks {
		chunk, err := os.Open(s.chunkPath(sessionID, i))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("chunk %d: %w", i, ErrMissingChunk)
			}
			return fmt.Errorf("failed to open chunk %d, %w", i, err)
		}

		_, err = io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			return fmt.Errorf("failed to append chunk %d, %w", i, err)
		}
	}

	return nil
}

// Purge deletes a session's entire storage area. Calling it for a session
// that has no storage is a no-op.
func (s *ChunkStore) Purge(sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to purge session storage, %w", err)
	}

	zap.L().Debug("Purged session storage", zap.String("sessionID", sessionID))
	return nil
}

// SessionDirs lists the session IDs that currently hold temp storage.
// Used by the garbage collector's orphan sweep.
func (s *ChunkStore) SessionDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk storage root, %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}

	return ids, nil
}

// Path returns the location of a file inside the session's storage area
func (s *ChunkStore) Path(sessionID, name string) string {
	return filepath.Join(s.sessionDir(sessionID), name)
}
