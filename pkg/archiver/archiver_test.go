package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"douyindl/internal/downloader"
	"douyindl/pkg/config"
	"douyindl/pkg/douyin"
	errs "douyindl/pkg/errors"
	"douyindl/pkg/fetcher"
	"douyindl/pkg/logger"
	"douyindl/pkg/storage"
	"douyindl/pkg/store"
)

// rawItem builds a decodable item payload whose video points at url
func rawItem(id, title, url string, createTime int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"aweme_id": %q,
		"desc": %q,
		"create_time": %d,
		"author": {"sec_uid": "SEC1", "nickname": "alice"},
		"video": {"play_addr": {"url_list": [%q]}}
	}`, id, title, createTime, url))
}

func rawMixItem(id, title, url, mixID, mixName string, createTime int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"aweme_id": %q,
		"desc": %q,
		"create_time": %d,
		"author": {"sec_uid": "SEC1", "nickname": "alice"},
		"mix_info": {"mix_id": %q, "mix_name": %q},
		"video": {"play_addr": {"url_list": [%q]}}
	}`, id, title, createTime, mixID, mixName, url))
}

type fakeClient struct {
	user      *douyin.User
	postPages []*douyin.PostListResponse
	mixPages  map[string][]*douyin.CursorListResponse
	mixCalls  map[string]int
	mixIndex  *douyin.MixListResponse
	detail    json.RawMessage
	room      *douyin.RoomData
	roomErr   error
	reflow    *douyin.RoomData
	reflowErr error
	postCalls int
}

func (f *fakeClient) FetchUserPosts(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error) {
	idx := f.postCalls
	f.postCalls++
	if idx >= len(f.postPages) {
		return &douyin.PostListResponse{}, nil
	}
	return f.postPages[idx], nil
}

func (f *fakeClient) FetchUserLikes(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error) {
	return f.FetchUserPosts(ctx, secUserID, maxCursor, count)
}

func (f *fakeClient) FetchMixItems(ctx context.Context, mixID string, cursor int64, count int) (*douyin.CursorListResponse, error) {
	if f.mixCalls == nil {
		f.mixCalls = make(map[string]int)
	}
	idx := f.mixCalls[mixID]
	f.mixCalls[mixID]++
	pages := f.mixPages[mixID]
	if idx >= len(pages) {
		return &douyin.CursorListResponse{}, nil
	}
	return pages[idx], nil
}

func (f *fakeClient) FetchMusicItems(ctx context.Context, musicID string, cursor int64, count int) (*douyin.CursorListResponse, error) {
	return f.FetchMixItems(ctx, musicID, cursor, count)
}

func (f *fakeClient) FetchMixIndex(ctx context.Context, secUserID string, cursor int64, count int) (*douyin.MixListResponse, error) {
	if f.mixIndex == nil {
		return &douyin.MixListResponse{}, nil
	}
	return f.mixIndex, nil
}

func (f *fakeClient) FetchItemDetail(ctx context.Context, awemeID string) (json.RawMessage, error) {
	if f.detail == nil {
		return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: "item not found"}
	}
	return f.detail, nil
}

func (f *fakeClient) FetchUserDetail(ctx context.Context, secUserID string) (*douyin.User, error) {
	if f.user == nil {
		return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: "user not found"}
	}
	return f.user, nil
}

func (f *fakeClient) ResolveShareURL(ctx context.Context, shareURL string) (string, error) {
	return shareURL, nil
}

func (f *fakeClient) FetchLiveRoom(ctx context.Context, webRID string) (*douyin.RoomData, error) {
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	return f.room, nil
}

func (f *fakeClient) FetchRoomReflow(ctx context.Context, roomID string) (*douyin.RoomData, error) {
	if f.reflowErr != nil {
		return nil, f.reflowErr
	}
	return f.reflow, nil
}

// newTestArchiver wires an archiver around the fake API client and a
// local media server
func newTestArchiver(t *testing.T, fake *fakeClient, cfg *config.Config) (*Archiver, string) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "media-bytes")
	}))
	t.Cleanup(server.Close)

	base := t.TempDir()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Output.BaseDirectory = base

	log := logger.NewNopLogger()
	records := store.Store(store.Discard{})
	if cfg.Store.Enabled {
		fs, err := store.Open(filepath.Join(base, "records.json"), log)
		require.NoError(t, err)
		records = fs
	}

	a := &Archiver{
		cfg:      cfg,
		client:   fake,
		resolver: douyin.NewResolver(fake, log),
		fetcher:  fetcher.New(fake, records, fetcher.Settings{MaxAttempts: 1}, log),
		records:  records,
		engine: downloader.New(server.Client(), downloader.Config{
			Workers:       2,
			RetryAttempts: 1,
			RetryDelay:    time.Millisecond,
		}, nil, log),
		layout: storage.Layout{Base: base, ItemSubfolders: cfg.Output.ItemSubfolders},
		logger: log,
	}

	return a, server.URL
}

func TestRunArchivesUserPosts(t *testing.T) {
	fake := &fakeClient{user: &douyin.User{SecUID: "SEC1", Nickname: "alice"}}
	a, mediaURL := newTestArchiver(t, fake, nil)
	fake.postPages = []*douyin.PostListResponse{{
		AwemeList: []json.RawMessage{
			rawItem("701", "first clip", mediaURL+"/701", 1700000000),
			rawItem("702", "second clip", mediaURL+"/702", 1700000100),
		},
	}}

	stats, err := a.Run(context.Background(), []string{"https://www.douyin.com/user/SEC1"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, 0, stats.FailedLinks)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, 0, stats.FailedFiles)

	userDir := filepath.Join(a.layout.Base, "user_alice_SEC1", "post")
	entries, err := os.ReadDir(userDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	stem := storage.ItemStem(time.Unix(1700000000, 0), "first clip")
	data, err := os.ReadFile(filepath.Join(userDir, stem, stem+"_video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(data))
}

func TestRunContinuesPastFailedLink(t *testing.T) {
	fake := &fakeClient{user: &douyin.User{SecUID: "SEC1", Nickname: "alice"}}
	a, mediaURL := newTestArchiver(t, fake, nil)
	fake.postPages = []*douyin.PostListResponse{{
		AwemeList: []json.RawMessage{rawItem("701", "clip", mediaURL+"/701", 1700000000)},
	}}

	stats, err := a.Run(context.Background(), []string{
		"https://www.douyin.com/about",
		"https://www.douyin.com/user/SEC1",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Links)
	assert.Equal(t, 1, stats.FailedLinks)
	assert.Equal(t, 1, stats.Downloaded)
}

func TestRunRequiresLinks(t *testing.T) {
	a, _ := newTestArchiver(t, &fakeClient{}, nil)
	_, err := a.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestArchiveMixDirectoryNamedFromPayload(t *testing.T) {
	fake := &fakeClient{}
	a, mediaURL := newTestArchiver(t, fake, nil)
	fake.mixPages = map[string][]*douyin.CursorListResponse{
		"M1": {{
			AwemeList: []json.RawMessage{
				rawMixItem("801", "ep 1", mediaURL+"/801", "M1", "cooking series", 1700000000),
			},
		}},
	}

	stats, err := a.Run(context.Background(), []string{"https://www.douyin.com/mix/detail/M1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)

	_, statErr := os.Stat(filepath.Join(a.layout.Base, "mix_cooking series_M1"))
	assert.NoError(t, statErr)
}

func TestArchiveUserMixesFanOut(t *testing.T) {
	fake := &fakeClient{
		user: &douyin.User{SecUID: "SEC1", Nickname: "alice"},
		mixIndex: &douyin.MixListResponse{
			MixInfos: []douyin.MixInfo{
				{MixID: "M1", MixName: "travel"},
				{MixID: "M2", MixName: "food"},
			},
		},
	}
	cfg := config.DefaultConfig()
	cfg.Modes = []string{config.ModeMix}
	a, mediaURL := newTestArchiver(t, fake, cfg)
	fake.mixPages = map[string][]*douyin.CursorListResponse{
		"M1": {{AwemeList: []json.RawMessage{rawItem("801", "a", mediaURL+"/801", 1700000000)}}},
		"M2": {{AwemeList: []json.RawMessage{rawItem("802", "b", mediaURL+"/802", 1700000000)}}},
	}

	stats, err := a.Run(context.Background(), []string{"https://www.douyin.com/user/SEC1"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Downloaded)

	userDir := filepath.Join(a.layout.Base, "user_alice_SEC1", "mix")
	entries, readErr := os.ReadDir(userDir)
	require.NoError(t, readErr)
	names := []string{entries[0].Name(), entries[1].Name()}
	assert.ElementsMatch(t, []string{"travel_M1", "food_M2"}, names)
}

func TestDirectLinksHonorModeSettings(t *testing.T) {
	fake := &fakeClient{}
	cfg := config.DefaultConfig()
	cfg.ModeTable[config.ModeMix] = config.ModeSetting{Limit: 1}
	cfg.ModeTable[config.ModeMusic] = config.ModeSetting{Limit: 1}
	a, mediaURL := newTestArchiver(t, fake, cfg)
	fake.mixPages = map[string][]*douyin.CursorListResponse{
		"M1": {{
			AwemeList: []json.RawMessage{
				rawMixItem("801", "ep 1", mediaURL+"/801", "M1", "series", 1700000000),
				rawMixItem("802", "ep 2", mediaURL+"/802", "M1", "series", 1700000100),
			},
			HasMore: true,
		}},
		"9001": {{
			AwemeList: []json.RawMessage{
				rawItem("811", "cover a", mediaURL+"/811", 1700000000),
				rawItem("812", "cover b", mediaURL+"/812", 1700000100),
			},
			HasMore: true,
		}},
	}

	stats, err := a.Run(context.Background(), []string{"https://www.douyin.com/mix/detail/M1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched, "mix crawl caps at the configured limit")

	stats, err = a.Run(context.Background(), []string{"https://www.douyin.com/music/9001"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched, "music crawl caps at the configured limit")
}

func TestArchiveSingleItem(t *testing.T) {
	fake := &fakeClient{}
	a, mediaURL := newTestArchiver(t, fake, nil)
	fake.detail = rawItem("709", "sunset", mediaURL+"/709", 1700000000)

	stats, err := a.Run(context.Background(), []string{"https://www.douyin.com/video/709"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)

	_, statErr := os.Stat(filepath.Join(a.layout.Base, "item_sunset_709"))
	assert.NoError(t, statErr)
}

func TestArchiveLiveSnapshot(t *testing.T) {
	fake := &fakeClient{room: &douyin.RoomData{
		ID:     "987",
		Title:  "evening stream",
		Status: 2,
	}}
	a, _ := newTestArchiver(t, fake, nil)

	stats, err := a.Run(context.Background(), []string{"https://live.douyin.com/123456"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FailedLinks)

	dir := filepath.Join(a.layout.Base, "live_evening stream_123456")
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)

	data, readErr := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "evening stream")
}

func TestArchiveLiveFallsBackToReflow(t *testing.T) {
	fake := &fakeClient{
		roomErr: &errs.Error{Type: errs.ErrorTypeNotFound, Message: "room not found"},
		reflow:  &douyin.RoomData{ID: "55", Title: "reflow room"},
	}
	a, _ := newTestArchiver(t, fake, nil)

	stats, err := a.Run(context.Background(), []string{"https://www.iesdouyin.com/share/webcast/reflow/55"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FailedLinks)

	_, statErr := os.Stat(filepath.Join(a.layout.Base, "live_reflow room_55"))
	assert.NoError(t, statErr)
}

func TestIncrementalRerunDownloadsNothingNew(t *testing.T) {
	fake := &fakeClient{user: &douyin.User{SecUID: "SEC1", Nickname: "alice"}}
	cfg := config.DefaultConfig()
	cfg.ModeTable[config.ModePost] = config.ModeSetting{Incremental: true}
	a, mediaURL := newTestArchiver(t, fake, cfg)
	page := &douyin.PostListResponse{
		AwemeList: []json.RawMessage{rawItem("701", "clip", mediaURL+"/701", 1700000000)},
	}
	fake.postPages = []*douyin.PostListResponse{page, page}

	link := "https://www.douyin.com/user/SEC1"
	stats, err := a.Run(context.Background(), []string{link})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)

	stats, err = a.Run(context.Background(), []string{link})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Fetched, "the boundary stops a rerun before yielding anything")
}
