package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore implements just enough of the S3 surface for the
// publisher. It can be told to fail a specific key.
type fakeObjectStore struct {
	mu      sync.Mutex
	stored  map[string]bool
	deleted []string
	failKey string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{stored: map[string]bool{}}
}

func (f *fakeObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failKey != "" && strings.HasSuffix(*in.Key, f.failKey) {
		return nil, errors.New("injected transport failure")
	}

	f.stored[*in.Key] = true
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.stored, *in.Key)
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjectStore) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjectStore) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjectStore) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjectStore) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errors.New("not implemented")
}

func artifactDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"original.mp4":  "source bytes",
		"360p.mp4":      "rendition bytes",
		"360p.m3u8":     "#EXTM3U",
		"360p_000.ts":   "segment bytes",
		"playlist.m3u8": "#EXTM3U",
		"thumbnail.jpg": "jpeg bytes",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return dir
}

func newTestPublisher(store *fakeObjectStore) *Publisher {
	return &Publisher{Client: store, Bucket: "edumaster-videos", Region: "us-east-1"}
}

func TestPublishAll(t *testing.T) {
	store := newFakeObjectStore()
	p := newTestPublisher(store)

	res, err := p.PublishAll(context.Background(), "media-1", artifactDir(t))
	require.NoError(t, err)

	require.Equal(t, "https://edumaster-videos.s3.us-east-1.amazonaws.com/lectures/media-1/original.mp4", res.VideoURL)
	require.Equal(t, "https://edumaster-videos.s3.us-east-1.amazonaws.com/lectures/media-1/playlist.m3u8", res.ManifestURL)
	require.Equal(t, "https://edumaster-videos.s3.us-east-1.amazonaws.com/lectures/media-1/thumbnail.jpg", res.ThumbnailURL)

	require.Len(t, store.stored, 6)
	for key := range store.stored {
		require.True(t, strings.HasPrefix(key, "lectures/media-1/"))
	}
}

func TestPublishAllRollsBackOnAnyFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.failKey = "playlist.m3u8"
	p := newTestPublisher(store)

	dir := artifactDir(t)

	_, err := p.PublishAll(context.Background(), "media-1", dir)
	require.ErrorIs(t, err, ErrPublish)

	// Nothing may survive a partial publish
	require.Empty(t, store.stored)

	// Local artifacts stay put for inspection
	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	require.Len(t, entries, 6)
}

func TestPublishSingleFile(t *testing.T) {
	store := newFakeObjectStore()
	p := newTestPublisher(store)

	src := filepath.Join(t.TempDir(), "thumb.jpg")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	url, err := p.Publish(context.Background(), src, "lectures/m/thumb.jpg", "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "https://edumaster-videos.s3.us-east-1.amazonaws.com/lectures/m/thumb.jpg", url)
	require.True(t, store.stored["lectures/m/thumb.jpg"])
}
