package media

import (
	"encoding/json"
	"strings"
	"time"

	"douyindl/pkg/douyin"
	errs "douyindl/pkg/errors"
)

// Normalize decodes one raw item payload into its archive form. A
// payload missing its id or creation time is malformed; callers skip
// such items rather than abort the crawl. Every other field degrades
// to its zero value, down to an item with no downloadable refs at all.
func Normalize(raw json.RawMessage) (*Item, error) {
	var a douyin.Aweme
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errs.Newf(errs.ErrorTypeMalformedItem, "cannot decode item payload: %v", err)
	}
	return FromAweme(&a, raw)
}

// FromAweme converts an already-decoded item. The raw payload may be
// nil when the caller does not need the sidecar copy.
func FromAweme(a *douyin.Aweme, raw json.RawMessage) (*Item, error) {
	if a.AwemeID == "" {
		return nil, errs.New(errs.ErrorTypeMalformedItem, "item payload has no id")
	}
	if a.CreateTime == 0 {
		return nil, errs.Newf(errs.ErrorTypeMalformedItem, "item %s has no creation time", a.AwemeID)
	}

	item := &Item{
		ID:         a.AwemeID,
		Title:      itemTitle(a),
		CreatedAt:  time.Unix(a.CreateTime, 0),
		Pinned:     a.IsTop.Bool(),
		AuthorID:   a.Author.SecUID,
		AuthorName: a.Author.Nickname,
		Raw:        raw,
	}

	if len(a.Images) > 0 {
		item.Kind = KindImageSet
		for _, img := range a.Images {
			if addr := img.First(); addr != "" {
				item.Refs.Images = append(item.Refs.Images, addr)
			}
		}
	} else {
		item.Kind = KindVideo
		item.Refs.Video = a.Video.PlayAddr.First()
	}

	item.Refs.Cover = a.Video.Cover.First()
	item.Refs.Avatar = a.Author.AvatarLarger.First()

	if addr := a.Music.PlayURL.First(); addr != "" {
		name := strings.TrimSpace(a.Music.Title)
		if name == "" {
			name = a.Music.ID.String()
		}
		item.Refs.Audio = &AudioRef{Name: name, URL: addr}
	}

	return item, nil
}

// itemTitle derives a display title, falling back to the id for items
// published without a description
func itemTitle(a *douyin.Aweme) string {
	title := strings.TrimSpace(a.Desc)
	if title == "" {
		return a.AwemeID
	}
	return title
}
