package service

import "errors"

// Failure classes surfaced by the upload and processing pipeline. Handlers
// map these onto HTTP statuses; the services themselves never retry on any
// of them. The caller owns resubmission for integrity failures, the garbage
// collector owns retries for processing failures.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("operation not valid in current state")
	ErrOutOfRange        = errors.New("chunk index out of range")
	ErrIntegrityMismatch = errors.New("hash mismatch")
	ErrIncomplete        = errors.New("not all chunks have been uploaded")
	ErrMissingChunk      = errors.New("chunk missing from storage")
	ErrUnreadableMedia   = errors.New("media can't be probed")
	ErrTranscode         = errors.New("transcoding failed")
	ErrPublish           = errors.New("publishing to object storage failed")
	ErrQueueFull         = errors.New("job queue full")
)
