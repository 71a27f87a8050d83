package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"douyindl/pkg/media"
)

// Resource directory prefixes
const (
	PrefixUser  = "user"
	PrefixMix   = "mix"
	PrefixMusic = "music"
	PrefixItem  = "item"
	PrefixLive  = "live"
)

// Sub-directory names for the per-user surfaces
const (
	SubPost = "post"
	SubLike = "like"
	SubMix  = "mix"
)

// maxNameRunes caps sanitized names so the full path stays well under
// filesystem limits
const maxNameRunes = 80

// timeStem is the folder-name timestamp format
const timeStem = "2006-01-02_15.04.05"

// Sanitize makes a display name safe to use as a path component
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			// control characters dropped
		case strings.ContainsRune(`\/:*?"<>|`, r):
			b.WriteRune('_')
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.Trim(out, ".")

	if runes := []rune(out); len(runes) > maxNameRunes {
		out = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	if out == "" {
		return "untitled"
	}
	return out
}

// Layout computes every path the archive writes
type Layout struct {
	// Base is the archive root directory
	Base string
	// ItemSubfolders puts each item in its own folder
	ItemSubfolders bool
}

// ResourceDir returns the directory for one archived resource:
// <base>/<prefix>_<name>_<id>
func (l Layout) ResourceDir(prefix, name, id string) string {
	return filepath.Join(l.Base, fmt.Sprintf("%s_%s_%s", prefix, Sanitize(name), id))
}

// ItemStem returns the file-name stem shared by all of an item's files:
// <createdAt>_<title>
func ItemStem(createdAt time.Time, title string) string {
	return createdAt.Format(timeStem) + "_" + Sanitize(title)
}

// ItemDir returns the directory an item's files go into. sub is the
// per-user surface ("post", "like", ...) or empty for flat resources.
func (l Layout) ItemDir(resourceDir, sub string, item *media.Item) string {
	dir := resourceDir
	if sub != "" {
		dir = filepath.Join(dir, sub)
	}
	if l.ItemSubfolders {
		dir = filepath.Join(dir, ItemStem(item.CreatedAt, item.Title))
	}
	return dir
}

// VideoPath returns the destination for an item's video
func VideoPath(dir, stem string) string {
	return filepath.Join(dir, stem+"_video.mp4")
}

// ImagePath returns the destination for the n-th picture (1-based)
func ImagePath(dir, stem string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_image_%d.jpeg", stem, n))
}

// MusicPath returns the destination for an item's soundtrack
func MusicPath(dir, stem, musicName string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_music_%s.mp3", stem, Sanitize(musicName)))
}

// CoverPath returns the destination for an item's poster frame
func CoverPath(dir, stem string) string {
	return filepath.Join(dir, stem+"_cover.jpeg")
}

// AvatarPath returns the destination for the author avatar
func AvatarPath(dir, stem string) string {
	return filepath.Join(dir, stem+"_avatar.jpeg")
}

// MetadataPath returns the destination for the raw payload sidecar
func MetadataPath(dir, stem string) string {
	return filepath.Join(dir, stem+"_result.json")
}

// SaveMetadata writes an item's raw payload sidecar atomically. The
// payload is re-indented so the sidecar is readable.
func SaveMetadata(path string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	var buf map[string]interface{}
	data := []byte(raw)
	if err := json.Unmarshal(raw, &buf); err == nil {
		if indented, err := json.MarshalIndent(buf, "", "  "); err == nil {
			data = indented
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	return nil
}
