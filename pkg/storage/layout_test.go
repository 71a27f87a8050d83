package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"douyindl/pkg/media"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "morning run", "morning run"},
		{"separators", `a/b\c:d`, "a_b_c_d"},
		{"reserved", `what? "really" <yes>|no*`, "what_ _really_ _yes__no_"},
		{"trailing dots", "name...", "name"},
		{"spaces", "  padded  ", "padded"},
		{"empty", "", "untitled"},
		{"only invalid", "...", "untitled"},
		{"control chars", "a\x00b\x1fc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("标题", 100)
	got := Sanitize(long)
	assert.LessOrEqual(t, len([]rune(got)), 80)
	assert.NotEmpty(t, got)
}

func TestResourceDir(t *testing.T) {
	l := Layout{Base: "/archive"}

	assert.Equal(t,
		filepath.Join("/archive", "user_walker_MS4wAbc"),
		l.ResourceDir(PrefixUser, "walker", "MS4wAbc"))

	assert.Equal(t,
		filepath.Join("/archive", "mix_road trips_m1"),
		l.ResourceDir(PrefixMix, "road trips", "m1"))

	// Names get sanitized, ids do not
	assert.Equal(t,
		filepath.Join("/archive", "music_a_b_77"),
		l.ResourceDir(PrefixMusic, "a/b", "77"))
}

func TestItemStem(t *testing.T) {
	createdAt := time.Date(2024, 3, 9, 14, 30, 5, 0, time.Local)
	assert.Equal(t, "2024-03-09_14.30.05_sunset", ItemStem(createdAt, "sunset"))
	assert.Equal(t, "2024-03-09_14.30.05_a_b", ItemStem(createdAt, "a/b"))
}

func TestItemDir(t *testing.T) {
	item := &media.Item{
		Title:     "sunset",
		CreatedAt: time.Date(2024, 3, 9, 14, 30, 5, 0, time.Local),
	}

	flat := Layout{Base: "/archive", ItemSubfolders: false}
	assert.Equal(t,
		filepath.Join("/archive", "user_w_u1", "post"),
		flat.ItemDir(flat.ResourceDir(PrefixUser, "w", "u1"), SubPost, item))

	nested := Layout{Base: "/archive", ItemSubfolders: true}
	assert.Equal(t,
		filepath.Join("/archive", "user_w_u1", "post", "2024-03-09_14.30.05_sunset"),
		nested.ItemDir(nested.ResourceDir(PrefixUser, "w", "u1"), SubPost, item))

	// Flat resources pass an empty sub
	assert.Equal(t,
		filepath.Join("/archive", "mix_m_m1", "2024-03-09_14.30.05_sunset"),
		nested.ItemDir(nested.ResourceDir(PrefixMix, "m", "m1"), "", item))
}

func TestFileNames(t *testing.T) {
	dir := "/archive/user_w_u1/post"
	stem := "2024-03-09_14.30.05_sunset"

	assert.Equal(t, filepath.Join(dir, stem+"_video.mp4"), VideoPath(dir, stem))
	assert.Equal(t, filepath.Join(dir, stem+"_image_1.jpeg"), ImagePath(dir, stem, 1))
	assert.Equal(t, filepath.Join(dir, stem+"_image_12.jpeg"), ImagePath(dir, stem, 12))
	assert.Equal(t, filepath.Join(dir, stem+"_music_tune.mp3"), MusicPath(dir, stem, "tune"))
	assert.Equal(t, filepath.Join(dir, stem+"_music_a_b.mp3"), MusicPath(dir, stem, "a/b"))
	assert.Equal(t, filepath.Join(dir, stem+"_cover.jpeg"), CoverPath(dir, stem))
	assert.Equal(t, filepath.Join(dir, stem+"_avatar.jpeg"), AvatarPath(dir, stem))
	assert.Equal(t, filepath.Join(dir, stem+"_result.json"), MetadataPath(dir, stem))
}

func TestSaveMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "item_result.json")
	raw := json.RawMessage(`{"aweme_id":"7123","desc":"hello"}`)

	require.NoError(t, SaveMetadata(path, raw))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "7123", decoded["aweme_id"])

	// Indented output
	assert.Contains(t, string(data), "\n")
}

func TestSaveMetadataEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item_result.json")
	require.NoError(t, SaveMetadata(path, nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
