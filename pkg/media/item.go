package media

import (
	"encoding/json"
	"time"
)

// Kind distinguishes the two item shapes the platform serves
type Kind string

const (
	KindVideo    Kind = "video"
	KindImageSet Kind = "images"
)

// AudioRef points at an item's soundtrack
type AudioRef struct {
	Name string
	URL  string
}

// Refs holds every downloadable address extracted from an item
type Refs struct {
	// Video is the playable address, empty for image sets
	Video string
	// Images are the picture addresses, empty for videos
	Images []string
	// Cover is the poster frame address
	Cover string
	// Avatar is the author's avatar address
	Avatar string
	// Audio is the soundtrack, nil when the item carries none
	Audio *AudioRef
}

// Item is the normalized form of one published item
type Item struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Pinned    bool
	Kind      Kind

	AuthorID   string
	AuthorName string

	Refs Refs

	// Raw is the original API payload, kept for the metadata sidecar
	Raw json.RawMessage
}

// IsVideo reports whether the item is a single video
func (i *Item) IsVideo() bool { return i.Kind == KindVideo }
