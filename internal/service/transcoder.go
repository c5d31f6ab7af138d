package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Rendition is one resolution/bitrate variant of a processed video. It
// only lives for the duration of a single processing job.
type Rendition struct {
	Label        string
	Width        int
	Height       int
	BitrateKbps  int
	Path         string
	PlaylistName string
}

// The standard delivery ladder. A rendition is only produced when the
// source is at least as wide, the pipeline never upscales.
var renditionLadder = []Rendition{
	{Label: "1080p", Width: 1920, Height: 1080, BitrateKbps: 5000},
	{Label: "720p", Width: 1280, Height: 720, BitrateKbps: 2500},
	{Label: "480p", Width: 854, Height: 480, BitrateKbps: 1000},
	{Label: "360p", Width: 640, Height: 360, BitrateKbps: 500},
}

const segmentSeconds = 10

// Transcoder shells out to ffmpeg/ffprobe the same way a human would,
// one process per step, stderr captured for the logs
type Transcoder struct {
	ffmpegPath string
	probePath  string
	threads    int
}

func NewTranscoder() *Transcoder {
	return &Transcoder{
		ffmpegPath: viper.GetString("ffmpeg.path"),
		probePath:  viper.GetString("ffmpeg.probe_path"),
		threads:    getThreadsPerJob(viper.GetInt("transcode.workers")),
	}
}

// Figures out the amount of threads to use per ffmpeg job
func getThreadsPerJob(c int) int {
	totalCores := runtime.NumCPU()
	threads := int(math.Floor(float64(totalCores) / float64(c)))

	if threads < 1 {
		threads = 1
	}

	zap.L().Debug("Figured out amount of threads to use", zap.Int("t", threads))
	return threads
}

func (t *Transcoder) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	zap.L().Debug("Running FFmpeg command", zap.String("cmd", cmd.String()))

	var stdErr bytes.Buffer
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		zap.L().Error("FFmpeg failed", zap.Error(err), zap.String("stderr", stdErr.String()))
		return fmt.Errorf("ffmpeg: %s: %w", strings.TrimSpace(stdErr.String()), ErrTranscode)
	}

	return nil
}

// Thumbnail grabs a single frame 10% into playback
func (t *Transcoder) Thumbnail(ctx context.Context, src, outDir string, duration float64) (string, error) {
	dest := filepath.Join(outDir, "thumbnail.jpg")
	offset := duration * 0.1

	now := time.Now()

	// -ss before the input uses key-frame seeking so that it's fast even
	// on long sources
	err := t.run(ctx,
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.2f", offset),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		"-vf", "scale=750:-2",
		dest, "-y",
	)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail for video, %w", err)
	}

	zap.L().Debug("Finished creating thumbnail", zap.Duration("took", time.Since(now)))
	return dest, nil
}

// SelectRenditions returns the part of the ladder the source can
// actually fill
func SelectRenditions(sourceWidth int) []Rendition {
	var out []Rendition
	for _, r := range renditionLadder {
		if r.Width <= sourceWidth {
			out = append(out, r)
		}
	}
	return out
}

// Renditions transcodes the source into every ladder entry the source
// width allows and drops a byte-for-byte copy of the source next to them
// as original.mp4. Any single failed rendition aborts the whole job, a
// partially transcoded set is never handed to the publisher.
func (t *Transcoder) Renditions(ctx context.Context, src, outDir string, sourceWidth int) ([]Rendition, error) {
	if err := copyFile(src, filepath.Join(outDir, "original.mp4")); err != nil {
		return nil, fmt.Errorf("failed to copy original, %w", err)
	}

	selected := SelectRenditions(sourceWidth)
	out := make([]Rendition, 0, len(selected))

	for _, r := range selected {
		r.Path = filepath.Join(outDir, r.Label+".mp4")
		r.PlaylistName = r.Label + ".m3u8"

		bitrate := strconv.Itoa(r.BitrateKbps) + "k"
		err := t.run(ctx,
			"-loglevel", "error",
			"-i", src,
			"-vf", fmt.Sprintf("scale=%d:%d", r.Width, r.Height),
			"-c:v", "libx264",
			"-threads", strconv.Itoa(t.threads),
			"-b:v", bitrate,
			"-maxrate", bitrate,
			"-bufsize", strconv.Itoa(r.BitrateKbps*2)+"k",
			"-c:a", "aac",
			"-b:a", "128k",
			"-movflags", "+faststart",
			"-f", "mp4",
			r.Path, "-y",
		)
		if err != nil {
			return nil, fmt.Errorf("rendition %s: %w", r.Label, err)
		}

		out = append(out, r)
	}

	return out, nil
}

// WriteManifest segments every rendition into 10s HLS chunks and writes
// the master playlist pointing at them. Returns the master playlist path.
func (t *Transcoder) WriteManifest(ctx context.Context, outDir string, renditions []Rendition) (string, error) {
	for _, r := range renditions {
		err := t.run(ctx,
			"-loglevel", "error",
			"-i", r.Path,
			"-c:v", "copy",
			"-c:a", "copy",
			"-hls_time", strconv.Itoa(segmentSeconds),
			"-hls_list_size", "0",
			"-hls_segment_filename", filepath.Join(outDir, r.Label+"_%03d.ts"),
			filepath.Join(outDir, r.PlaylistName), "-y",
		)
		if err != nil {
			return "", fmt.Errorf("playlist %s: %w", r.Label, err)
		}
	}

	master := filepath.Join(outDir, "playlist.m3u8")
	if err := os.WriteFile(master, []byte(BuildMasterPlaylist(renditions)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write master playlist, %w", err)
	}

	return master, nil
}

// BuildMasterPlaylist renders the top-level adaptive manifest listing
// every generated rendition with its bandwidth and resolution
func BuildMasterPlaylist(renditions []Rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n\n")

	for _, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", r.BitrateKbps*1000, r.Width, r.Height)
		b.WriteString(r.PlaylistName + "\n\n")
	}

	return b.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Close()
}
