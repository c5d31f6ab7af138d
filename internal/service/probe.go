package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// MediaInfo is what ffprobe tells us about a source file
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	Bitrate  int64
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe against the source and extracts the bits the
// pipeline cares about. A source that can't be probed at all is reported
// as ErrUnreadableMedia.
func (t *Transcoder) Probe(p string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	zap.L().Debug("Running FFprobe", zap.String("path", p))

	cmd := exec.CommandContext(ctx, t.probePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		"-i", p,
	)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed (%s): %w", stdErr.String(), ErrUnreadableMedia)
	}

	var out probeOutput
	if err := json.Unmarshal(stdOut.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("malformed ffprobe output: %w", ErrUnreadableMedia)
	}

	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}

	if info.Width == 0 || info.Duration == 0 {
		return nil, fmt.Errorf("no usable video stream found: %w", ErrUnreadableMedia)
	}

	return info, nil
}
