package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	s3client "edumaster/media-api/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minMultipartSize = 12 << 20

// ObjectStore is the slice of the S3 API the publisher needs. The real
// client satisfies it, tests plug in a fake.
type ObjectStore interface {
	manager.UploadAPIClient
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PublishedArtifacts holds the durable URLs of one processed media item
type PublishedArtifacts struct {
	VideoURL     string
	ManifestURL  string
	ThumbnailURL string
	Keys         []string
}

// Publisher moves processing artifacts into object storage. It retries
// nothing itself: a failed publish fails fast and leaves the local files
// alone so the job (and later the garbage collector) decide what happens.
type Publisher struct {
	Client ObjectStore
	Bucket string
	Region string
}

func NewPublisher(c *s3client.S3Client) *Publisher {
	return &Publisher{
		Client: c.C,
		Bucket: *c.Bucket,
		Region: c.Region,
	}
}

func (p *Publisher) url(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.Bucket, p.Region, key)
}

// Publish uploads a single local file under the given key and returns its
// stable URL. Large files go through the multipart manager uploader.
func (p *Publisher) Publish(ctx context.Context, localPath, key, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact, %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat artifact, %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}

	if stat.Size() > minMultipartSize {
		uploader := manager.NewUploader(p.Client, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})
		_, err = uploader.Upload(ctx, input)
	} else {
		_, err = p.Client.PutObject(ctx, input)
	}
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w: %v", key, ErrPublish, err)
	}

	return p.url(key), nil
}

// PublishAll pushes every artifact in outDir under lectures/<mediaID>/.
// It is all-or-nothing: if any single upload fails, everything that did
// make it is deleted again so a media item can never end up with a
// partially published rendition set.
func (p *Publisher) PublishAll(ctx context.Context, mediaID, outDir string) (*PublishedArtifacts, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts, %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, time.Now().Add(10*time.Minute))
	defer cancel()

	var (
		mu       sync.Mutex
		uploaded []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	result := &PublishedArtifacts{}

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}

		name := e.Name()
		key := fmt.Sprintf("lectures/%s/%s", mediaID, name)

		g.Go(func() error {
			url, err := p.Publish(gctx, filepath.Join(outDir, name), key, contentTypeFor(name))
			if err != nil {
				return err
			}

			mu.Lock()
			uploaded = append(uploaded, key)
			switch name {
			case "original.mp4":
				result.VideoURL = url
			case "playlist.m3u8":
				result.ManifestURL = url
			case "thumbnail.jpg":
				result.ThumbnailURL = url
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Roll the partial publish back so nothing dangles
		for _, key := range uploaded {
			if _, derr := p.Client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
				Bucket: aws.String(p.Bucket),
				Key:    aws.String(key),
			}); derr != nil {
				zap.L().Error("Failed to clean up after failed publish", zap.String("key", key), zap.Error(derr))
			} else {
				zap.L().Debug("Cleaned up after failed publish", zap.String("key", key))
			}
		}

		return nil, err
	}

	result.Keys = uploaded
	return result, nil
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".mp4":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
