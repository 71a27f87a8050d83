package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"douyindl/pkg/douyin"
	errs "douyindl/pkg/errors"
	"douyindl/pkg/logger"
	"douyindl/pkg/store"
)

// rawItem builds a decodable item payload
func rawItem(id string, createTime int64, pinned bool) json.RawMessage {
	isTop := 0
	if pinned {
		isTop = 1
	}
	return json.RawMessage(fmt.Sprintf(`{
		"aweme_id": %q,
		"desc": "item %s",
		"create_time": %d,
		"is_top": %d,
		"author": {"sec_uid": "MS4wAbc", "nickname": "author"},
		"video": {"play_addr": {"url_list": ["https://v.example/%s.mp4"]}}
	}`, id, id, createTime, isTop, id))
}

// fakeClient serves scripted pages
type fakeClient struct {
	postPages []*douyin.PostListResponse
	postErrs  map[int]error // zero-based call index -> error for that call
	postCalls int

	mixPages []*douyin.CursorListResponse
	mixCalls int

	mixIndexPages []*douyin.MixListResponse
	mixIndexCalls int

	detail    json.RawMessage
	detailErr error
}

func (f *fakeClient) FetchUserPosts(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error) {
	idx := f.postCalls
	f.postCalls++
	if err, ok := f.postErrs[idx]; ok {
		return nil, err
	}
	if idx >= len(f.postPages) {
		return &douyin.PostListResponse{}, nil
	}
	return f.postPages[idx], nil
}

func (f *fakeClient) FetchUserLikes(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error) {
	return f.FetchUserPosts(ctx, secUserID, maxCursor, count)
}

func (f *fakeClient) FetchMixItems(ctx context.Context, mixID string, cursor int64, count int) (*douyin.CursorListResponse, error) {
	idx := f.mixCalls
	f.mixCalls++
	if idx >= len(f.mixPages) {
		return &douyin.CursorListResponse{}, nil
	}
	return f.mixPages[idx], nil
}

func (f *fakeClient) FetchMusicItems(ctx context.Context, musicID string, cursor int64, count int) (*douyin.CursorListResponse, error) {
	return f.FetchMixItems(ctx, musicID, cursor, count)
}

func (f *fakeClient) FetchMixIndex(ctx context.Context, secUserID string, cursor int64, count int) (*douyin.MixListResponse, error) {
	idx := f.mixIndexCalls
	f.mixIndexCalls++
	if idx >= len(f.mixIndexPages) {
		return &douyin.MixListResponse{}, nil
	}
	return f.mixIndexPages[idx], nil
}

func (f *fakeClient) FetchItemDetail(ctx context.Context, awemeID string) (json.RawMessage, error) {
	return f.detail, f.detailErr
}

func (f *fakeClient) FetchUserDetail(ctx context.Context, secUserID string) (*douyin.User, error) {
	return &douyin.User{SecUID: secUserID, Nickname: "author"}, nil
}

func fastSettings() Settings {
	return Settings{PageSize: 10, MaxAttempts: 2, PageTimeout: time.Second}
}

func newFileStore(t *testing.T) *store.FileStore {
	t.Helper()
	fs, err := store.Open(filepath.Join(t.TempDir(), "records.json"), logger.NewNopLogger())
	require.NoError(t, err)
	return fs
}

func itemIDs(res *Result) []string {
	ids := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestPostsFullCrawl(t *testing.T) {
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("3", 300, false), rawItem("2", 200, false)}, MaxCursor: 200, HasMore: true},
			{AwemeList: []json.RawMessage{rawItem("1", 100, false)}, MaxCursor: 100, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"3", "2", "1"}, itemIDs(res))
	assert.Equal(t, 2, res.Stats.Pages)
	assert.Equal(t, 3, res.Stats.New)
	assert.Equal(t, 0, res.Stats.Seen)
	assert.False(t, res.LimitReached)
	assert.False(t, res.BoundaryHit)
}

func TestIncrementalBoundaryStopsCrawl(t *testing.T) {
	records := newFileStore(t)
	scope := store.Scope{Kind: "user_post", ID: "MS4wAbc"}
	for i := 1; i <= 10; i++ {
		require.NoError(t, records.Put(scope, fmt.Sprintf("%d", i)))
	}

	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("11", 1100, false), rawItem("10", 1000, false), rawItem("9", 900, false)}, MaxCursor: 900, HasMore: true},
			{AwemeList: []json.RawMessage{rawItem("8", 800, false)}, MaxCursor: 800, HasMore: true},
		},
	}

	f := New(client, records, fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{Incremental: true})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"11"}, itemIDs(res))
	assert.True(t, res.BoundaryHit)
	// The boundary must stop paging, not just filtering
	assert.Equal(t, 1, client.postCalls)
}

func TestIncrementalSkipsPinnedSeenItems(t *testing.T) {
	records := newFileStore(t)
	scope := store.Scope{Kind: "user_post", ID: "MS4wAbc"}
	require.NoError(t, records.Put(scope, "pinned1"))

	// A pinned already-seen item at the top of the feed must not be
	// mistaken for the incremental boundary
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("pinned1", 50, true), rawItem("new1", 500, false)}, HasMore: false},
		},
	}

	f := New(client, records, fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{Incremental: true})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"pinned1", "new1"}, itemIDs(res))
	assert.False(t, res.BoundaryHit)
	assert.Equal(t, 1, res.Stats.Seen)
	assert.Equal(t, 1, res.Stats.New)
}

func TestLimitTerminatesCrawl(t *testing.T) {
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("1", 100, false), rawItem("2", 200, false), rawItem("3", 300, false), rawItem("4", 400, false)}, MaxCursor: 1, HasMore: true},
			{AwemeList: []json.RawMessage{rawItem("5", 500, false)}, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{Limit: 3})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1", "2", "3"}, itemIDs(res))
	assert.True(t, res.LimitReached)
	assert.Equal(t, 1, client.postCalls)
}

func TestTimeFilteredItemsDoNotConsumeLimit(t *testing.T) {
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{
				rawItem("late", 5000, false),
				rawItem("in1", 2000, false),
				rawItem("early", 10, false),
				rawItem("in2", 2500, false),
			}, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{
		Limit: 2,
		Since: time.Unix(1000, 0),
		Until: time.Unix(3000, 0),
	})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"in1", "in2"}, itemIDs(res))
	assert.Equal(t, 2, res.Stats.Filtered)
	assert.False(t, res.LimitReached)
}

func TestSeenItemsConsumeLimitBudget(t *testing.T) {
	records := newFileStore(t)
	scope := store.Scope{Kind: "user_post", ID: "MS4wAbc"}
	require.NoError(t, records.Put(scope, "1"))
	require.NoError(t, records.Put(scope, "2"))

	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("1", 100, false), rawItem("2", 200, false), rawItem("3", 300, false)}, HasMore: false},
		},
	}

	f := New(client, records, fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{Limit: 2})

	require.NoError(t, res.Err)
	// Non-incremental crawls re-yield seen items and they count
	// against the limit
	assert.Equal(t, []string{"1", "2"}, itemIDs(res))
	assert.True(t, res.LimitReached)
	assert.Equal(t, 2, res.Stats.Seen)
	assert.Equal(t, 0, res.Stats.New)
}

func TestMalformedItemsAreSkipped(t *testing.T) {
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{
				rawItem("1", 100, false),
				json.RawMessage(`{"desc": "no id"}`),
				rawItem("2", 200, false),
			}, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1", "2"}, itemIDs(res))
	assert.Equal(t, 1, res.Stats.Malformed)
}

func TestPartialResultsOnPageFailure(t *testing.T) {
	pageErr := errs.New(errs.ErrorTypeServerError, "api status_code 2154")
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("1", 100, false)}, MaxCursor: 1, HasMore: true},
		},
		postErrs: map[int]error{1: pageErr, 2: pageErr, 3: pageErr},
	}

	f := New(client, newFileStore(t), Settings{PageSize: 10, MaxAttempts: 2, PageTimeout: time.Second}, logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{})

	require.Error(t, res.Err)
	assert.Equal(t, []string{"1"}, itemIDs(res))
	// First page once, second page retried up to the attempt cap
	assert.Equal(t, 3, client.postCalls)
}

// A garbled page body is a transient fault: the page is re-requested
// and the crawl completes.
func TestParseErrorsAreRetried(t *testing.T) {
	pageErr := errs.New(errs.ErrorTypeParsing, "failed to decode response")
	client := &fakeClient{
		postPages: []*douyin.PostListResponse{
			{}, // placeholder consumed by the errored first call
			{AwemeList: []json.RawMessage{rawItem("1", 100, false)}, HasMore: false},
		},
		postErrs: map[int]error{0: pageErr},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1"}, itemIDs(res))
	assert.Equal(t, 2, client.postCalls)
}

func TestNonRetryableErrorFailsFast(t *testing.T) {
	client := &fakeClient{
		postErrs: map[int]error{0: errs.New(errs.ErrorTypeAuth, "login required")},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.Posts(context.Background(), "MS4wAbc", Options{})

	require.Error(t, res.Err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, client.postCalls)
}

func TestCrawlIsIdempotentWithIncremental(t *testing.T) {
	records := newFileStore(t)
	pages := func() []*douyin.PostListResponse {
		return []*douyin.PostListResponse{
			{AwemeList: []json.RawMessage{rawItem("2", 200, false), rawItem("1", 100, false)}, HasMore: false},
		}
	}

	f := New(&fakeClient{postPages: pages()}, records, fastSettings(), logger.NewNopLogger())
	first := f.Posts(context.Background(), "MS4wAbc", Options{Incremental: true})
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Stats.New)

	f = New(&fakeClient{postPages: pages()}, records, fastSettings(), logger.NewNopLogger())
	second := f.Posts(context.Background(), "MS4wAbc", Options{Incremental: true})
	require.NoError(t, second.Err)
	assert.Empty(t, second.Items)
	assert.True(t, second.BoundaryHit)
}

func TestMixItemsCrawl(t *testing.T) {
	client := &fakeClient{
		mixPages: []*douyin.CursorListResponse{
			{AwemeList: []json.RawMessage{rawItem("a", 100, false)}, Cursor: 1, HasMore: true},
			{AwemeList: []json.RawMessage{rawItem("b", 200, false)}, Cursor: 2, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	res := f.MixItems(context.Background(), "m1", Options{})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a", "b"}, itemIDs(res))
	assert.Equal(t, 2, client.mixCalls)
}

func TestMixIndexWalksAllPages(t *testing.T) {
	client := &fakeClient{
		mixIndexPages: []*douyin.MixListResponse{
			{MixInfos: []douyin.MixInfo{{MixID: "m1", MixName: "one"}}, Cursor: 1, HasMore: true},
			{MixInfos: []douyin.MixInfo{{MixID: "m2", MixName: "two"}}, Cursor: 2, HasMore: false},
		},
	}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	mixes, err := f.MixIndex(context.Background(), "MS4wAbc")

	require.NoError(t, err)
	require.Len(t, mixes, 2)
	assert.Equal(t, "m1", mixes[0].MixID)
	assert.Equal(t, "m2", mixes[1].MixID)
}

func TestItemDetail(t *testing.T) {
	client := &fakeClient{detail: rawItem("7123", 100, false)}

	f := New(client, newFileStore(t), fastSettings(), logger.NewNopLogger())
	item, err := f.Item(context.Background(), "7123")

	require.NoError(t, err)
	assert.Equal(t, "7123", item.ID)
}
