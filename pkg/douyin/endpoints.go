package douyin

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the base URL for the web API
	BaseURL = "https://www.douyin.com"

	// LiveBaseURL is the base URL for the live web API
	LiveBaseURL = "https://live.douyin.com"

	// ReflowBaseURL is the base URL for live room reflow lookups
	ReflowBaseURL = "https://webcast.amemv.com"

	// PostEndpoint lists a user's published items
	PostEndpoint = "/aweme/v1/web/aweme/post/"

	// FavoriteEndpoint lists a user's liked items
	FavoriteEndpoint = "/aweme/v1/web/aweme/favorite/"

	// DetailEndpoint fetches a single item
	DetailEndpoint = "/aweme/v1/web/aweme/detail/"

	// MixAwemeEndpoint lists the items of a collection
	MixAwemeEndpoint = "/aweme/v1/web/mix/aweme/"

	// MixListEndpoint lists a user's collections
	MixListEndpoint = "/aweme/v1/web/mix/listcollection/"

	// MusicEndpoint lists items using a piece of music
	MusicEndpoint = "/aweme/v1/web/music/aweme/"

	// UserDetailEndpoint fetches a profile
	UserDetailEndpoint = "/aweme/v1/web/user/profile/other/"

	// ReflowEndpoint fetches a live room by room id
	ReflowEndpoint = "/webcast/room/reflow/info/"

	// LiveEnterEndpoint fetches a live room by web rid
	LiveEnterEndpoint = "/webcast/room/web/enter/"

	// DefaultPageSize is the default number of items requested per page
	DefaultPageSize = 35

	// MaxPageSize is the largest page the API will serve
	MaxPageSize = 50
)

// Signer produces the verification token appended to API queries. The
// routine itself lives outside this package; callers inject whichever
// implementation they have.
type Signer func(query string) string

// NopSigner returns an empty token. Endpoints that do not enforce
// signing still work with it.
func NopSigner(string) string { return "" }

// baseQuery returns the boilerplate parameters every web API call carries
func baseQuery() url.Values {
	q := url.Values{}
	q.Set("device_platform", "webapp")
	q.Set("aid", "6383")
	q.Set("channel", "channel_pc_web")
	q.Set("pc_client_type", "1")
	q.Set("version_code", "190500")
	q.Set("version_name", "19.5.0")
	q.Set("cookie_enabled", "true")
	q.Set("platform", "PC")
	q.Set("downlink", "10")
	return q
}

// clampPageSize keeps a requested page size within API bounds
func clampPageSize(count int) int {
	if count <= 0 {
		return DefaultPageSize
	}
	if count > MaxPageSize {
		return MaxPageSize
	}
	return count
}

// PostQuery builds the query for a user's posts page
func PostQuery(secUserID string, maxCursor int64, count int) url.Values {
	q := baseQuery()
	q.Set("sec_user_id", secUserID)
	q.Set("max_cursor", strconv.FormatInt(maxCursor, 10))
	q.Set("count", strconv.Itoa(clampPageSize(count)))
	return q
}

// FavoriteQuery builds the query for a user's likes page
func FavoriteQuery(secUserID string, maxCursor int64, count int) url.Values {
	q := baseQuery()
	q.Set("sec_user_id", secUserID)
	q.Set("max_cursor", strconv.FormatInt(maxCursor, 10))
	q.Set("count", strconv.Itoa(clampPageSize(count)))
	return q
}

// DetailQuery builds the query for a single item lookup
func DetailQuery(awemeID string) url.Values {
	q := baseQuery()
	q.Set("aweme_id", awemeID)
	return q
}

// MixAwemeQuery builds the query for a collection items page
func MixAwemeQuery(mixID string, cursor int64, count int) url.Values {
	q := baseQuery()
	q.Set("mix_id", mixID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("count", strconv.Itoa(clampPageSize(count)))
	return q
}

// MixListQuery builds the query for a user's collection index page
func MixListQuery(secUserID string, cursor int64, count int) url.Values {
	q := baseQuery()
	q.Set("sec_user_id", secUserID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("count", strconv.Itoa(clampPageSize(count)))
	return q
}

// MusicQuery builds the query for a music items page
func MusicQuery(musicID string, cursor int64, count int) url.Values {
	q := baseQuery()
	q.Set("music_id", musicID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("count", strconv.Itoa(clampPageSize(count)))
	return q
}

// UserDetailQuery builds the query for a profile lookup
func UserDetailQuery(secUserID string) url.Values {
	q := baseQuery()
	q.Set("sec_user_id", secUserID)
	return q
}

// ReflowQuery builds the query for a live room reflow lookup
func ReflowQuery(roomID string) url.Values {
	q := url.Values{}
	q.Set("type_id", "0")
	q.Set("live_id", "1")
	q.Set("room_id", roomID)
	q.Set("sec_user_id", "")
	q.Set("version_code", "99.99.99")
	q.Set("app_id", "1128")
	return q
}

// LiveEnterQuery builds the query for a live room web enter lookup
func LiveEnterQuery(webRID string) url.Values {
	q := url.Values{}
	q.Set("aid", "6383")
	q.Set("device_platform", "web")
	q.Set("enter_from", "web_live")
	q.Set("web_rid", webRID)
	return q
}

// SignQuery appends the verification token produced by the signer to an
// encoded query string. A signer returning an empty token leaves the
// query untouched.
func SignQuery(encoded string, sign Signer) string {
	if sign == nil {
		return encoded
	}
	token := sign(encoded)
	if token == "" {
		return encoded
	}
	return fmt.Sprintf("%s&X-Bogus=%s", encoded, url.QueryEscape(token))
}
