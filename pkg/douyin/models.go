package douyin

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LooseBool unmarshals a boolean the API encodes as true/false, 0/1 or a
// quoted digit depending on the endpoint
type LooseBool bool

// UnmarshalJSON implements json.Unmarshaler
func (b *LooseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(bytes.Trim(data, `"`)) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("cannot parse %q as bool", data)
	}
	return nil
}

// Bool returns the plain bool value
func (b LooseBool) Bool() bool { return bool(b) }

// URLContainer wraps the url_list structure used for every media address
type URLContainer struct {
	URI     string   `json:"uri"`
	URLList []string `json:"url_list"`
}

// First returns the first usable address or an empty string
func (u URLContainer) First() string {
	for _, addr := range u.URLList {
		if addr != "" {
			return addr
		}
	}
	return ""
}

// Author identifies the account that published an item
type Author struct {
	SecUID       string       `json:"sec_uid"`
	UID          string       `json:"uid"`
	Nickname     string       `json:"nickname"`
	UniqueID     string       `json:"unique_id"`
	AvatarLarger URLContainer `json:"avatar_larger"`
}

// Video holds the playable addresses of a video item
type Video struct {
	PlayAddr URLContainer `json:"play_addr"`
	Cover    URLContainer `json:"cover"`
	Duration int64        `json:"duration"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
}

// Music holds the soundtrack attached to an item
type Music struct {
	ID      json.Number  `json:"id"`
	Title   string       `json:"title"`
	PlayURL URLContainer `json:"play_url"`
	Author  string       `json:"author"`
}

// Image is one picture of an image-set item
type Image struct {
	URLList []string `json:"url_list"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
}

// First returns the first usable address or an empty string
func (i Image) First() string {
	for _, addr := range i.URLList {
		if addr != "" {
			return addr
		}
	}
	return ""
}

// MixInfo describes a collection an item belongs to
type MixInfo struct {
	MixID   string `json:"mix_id"`
	MixName string `json:"mix_name"`
	Statis  struct {
		UpdatedToEpisode int `json:"updated_to_episode"`
	} `json:"statis"`
}

// Aweme is a single published item as the API returns it
type Aweme struct {
	AwemeID    string    `json:"aweme_id"`
	Desc       string    `json:"desc"`
	CreateTime int64     `json:"create_time"`
	AwemeType  int       `json:"aweme_type"`
	IsTop      LooseBool `json:"is_top"`
	Author     Author    `json:"author"`
	Video      Video     `json:"video"`
	Music      Music     `json:"music"`
	Images     []Image   `json:"images"`
	MixInfo    *MixInfo  `json:"mix_info,omitempty"`
}

// User is the profile detail payload
type User struct {
	SecUID       string       `json:"sec_uid"`
	UID          string       `json:"uid"`
	Nickname     string       `json:"nickname"`
	UniqueID     string       `json:"unique_id"`
	Signature    string       `json:"signature"`
	AwemeCount   int          `json:"aweme_count"`
	FavoriteCnt  int          `json:"favoriting_count"`
	FollowerCnt  int          `json:"follower_count"`
	AvatarLarger URLContainer `json:"avatar_larger"`
}

// PostListResponse is the envelope for posts and likes pages. The item
// payloads stay raw so callers can keep the original JSON alongside the
// decoded form.
type PostListResponse struct {
	StatusCode int               `json:"status_code"`
	AwemeList  []json.RawMessage `json:"aweme_list"`
	MaxCursor  int64             `json:"max_cursor"`
	MinCursor  int64             `json:"min_cursor"`
	HasMore    LooseBool         `json:"has_more"`
}

// CursorListResponse is the envelope for mix and music item pages
type CursorListResponse struct {
	StatusCode int               `json:"status_code"`
	AwemeList  []json.RawMessage `json:"aweme_list"`
	Cursor     int64             `json:"cursor"`
	HasMore    LooseBool         `json:"has_more"`
}

// DetailResponse is the envelope for a single item lookup
type DetailResponse struct {
	StatusCode  int             `json:"status_code"`
	AwemeDetail json.RawMessage `json:"aweme_detail"`
}

// UserDetailResponse is the envelope for a profile lookup
type UserDetailResponse struct {
	StatusCode int  `json:"status_code"`
	User       User `json:"user"`
}

// MixListResponse is the envelope for a user's collection index page
type MixListResponse struct {
	StatusCode int       `json:"status_code"`
	MixInfos   []MixInfo `json:"mix_infos"`
	Cursor     int64     `json:"cursor"`
	HasMore    LooseBool `json:"has_more"`
}

// RoomData is the live room payload
type RoomData struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Status   int         `json:"status"`
	UserCnt  int64       `json:"user_count"`
	Owner    Author      `json:"owner"`
	StreamID json.Number `json:"stream_id"`
	StreamURL struct {
		FlvPullURL  map[string]string `json:"flv_pull_url"`
		HlsPullURL  string            `json:"hls_pull_url"`
		RtmpPullURL string            `json:"rtmp_pull_url"`
	} `json:"stream_url"`
}

// ReflowResponse is the envelope for a live room reflow lookup
type ReflowResponse struct {
	StatusCode int `json:"status_code"`
	Data       struct {
		Room RoomData `json:"room"`
	} `json:"data"`
}

// LiveEnterResponse is the envelope for a live room web enter lookup
type LiveEnterResponse struct {
	StatusCode int `json:"status_code"`
	Data       struct {
		Data []RoomData `json:"data"`
		User struct {
			Nickname string `json:"nickname"`
			SecUID   string `json:"sec_uid"`
		} `json:"user"`
	} `json:"data"`
}
