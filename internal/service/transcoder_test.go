package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectRenditionsNeverUpscales(t *testing.T) {
	// A 640-wide source can only fill the 360p rung
	selected := SelectRenditions(640)
	require.Len(t, selected, 1)
	require.Equal(t, "360p", selected[0].Label)

	// Full HD fills everything
	labels := []string{}
	for _, r := range SelectRenditions(1920) {
		labels = append(labels, r.Label)
	}
	require.Equal(t, []string{"1080p", "720p", "480p", "360p"}, labels)

	// Narrower than the smallest rung produces nothing
	require.Empty(t, SelectRenditions(320))
}

func TestSelectRenditionsExactWidth(t *testing.T) {
	labels := []string{}
	for _, r := range SelectRenditions(1280) {
		labels = append(labels, r.Label)
	}
	require.Equal(t, []string{"720p", "480p", "360p"}, labels)
}

func TestBuildMasterPlaylist(t *testing.T) {
	renditions := []Rendition{
		{Label: "720p", Width: 1280, Height: 720, BitrateKbps: 2500, PlaylistName: "720p.m3u8"},
		{Label: "360p", Width: 640, Height: 360, BitrateKbps: 500, PlaylistName: "360p.m3u8"},
	}

	playlist := BuildMasterPlaylist(renditions)

	require.True(t, strings.HasPrefix(playlist, "#EXTM3U\n#EXT-X-VERSION:3\n"))
	require.Contains(t, playlist, "#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n720p.m3u8")
	require.Contains(t, playlist, "#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=640x360\n360p.m3u8")

	// Only generated renditions are listed
	require.NotContains(t, playlist, "1080p")
}
