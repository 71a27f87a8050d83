package fetcher

import (
	"context"
	"encoding/json"
	"time"

	"douyindl/pkg/douyin"
	"douyindl/pkg/logger"
	"douyindl/pkg/media"
	"douyindl/pkg/retry"
	"douyindl/pkg/store"
)

// Client is the slice of the API client the fetcher needs. Tests
// substitute a scripted implementation.
type Client interface {
	FetchUserPosts(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error)
	FetchUserLikes(ctx context.Context, secUserID string, maxCursor int64, count int) (*douyin.PostListResponse, error)
	FetchMixItems(ctx context.Context, mixID string, cursor int64, count int) (*douyin.CursorListResponse, error)
	FetchMusicItems(ctx context.Context, musicID string, cursor int64, count int) (*douyin.CursorListResponse, error)
	FetchMixIndex(ctx context.Context, secUserID string, cursor int64, count int) (*douyin.MixListResponse, error)
	FetchItemDetail(ctx context.Context, awemeID string) (json.RawMessage, error)
	FetchUserDetail(ctx context.Context, secUserID string) (*douyin.User, error)
}

// Settings controls page fetching across all crawls
type Settings struct {
	// PageSize is the number of items requested per page
	PageSize int
	// MaxAttempts caps retries for a single page fetch
	MaxAttempts int
	// PageTimeout caps the total wall-clock time spent retrying one page
	PageTimeout time.Duration
}

// Options controls one crawl
type Options struct {
	// Limit caps how many items the crawl yields (0 means all)
	Limit int
	// Incremental stops at the first unpinned item already recorded
	Incremental bool
	// Since drops items created before it (zero means open)
	Since time.Time
	// Until drops items created after it (zero means open)
	Until time.Time
}

// Stats summarizes what one crawl did
type Stats struct {
	Pages     int
	Yielded   int
	New       int
	Seen      int
	Malformed int
	Filtered  int
}

// Result is the outcome of one crawl. When Err is set the item list
// holds everything collected before the failure.
type Result struct {
	Items []*media.Item
	Stats Stats
	// LimitReached is set when the yield cap terminated the crawl
	LimitReached bool
	// BoundaryHit is set when an incremental crawl met an already
	// recorded unpinned item
	BoundaryHit bool
	// Err is the page error that cut the crawl short, nil for a full crawl
	Err error
}

// Fetcher walks paginated item surfaces, dedupes against the record
// store, and yields normalized items
type Fetcher struct {
	client   Client
	records  store.Store
	settings Settings
	logger   logger.Logger
}

// New creates a fetcher
func New(client Client, records store.Store, settings Settings, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if records == nil {
		records = store.Discard{}
	}
	if settings.PageSize <= 0 {
		settings.PageSize = douyin.DefaultPageSize
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	if settings.PageTimeout <= 0 {
		settings.PageTimeout = 10 * time.Second
	}

	return &Fetcher{
		client:   client,
		records:  records,
		settings: settings,
		logger:   log,
	}
}

// page is one fetched page in cursor-generic form
type page struct {
	raws    []json.RawMessage
	next    int64
	hasMore bool
}

// pageFunc fetches the page at a cursor
type pageFunc func(ctx context.Context, cursor int64) (page, error)

// Posts crawls a user's published items
func (f *Fetcher) Posts(ctx context.Context, secUserID string, opts Options) *Result {
	scope := store.Scope{Kind: "user_post", ID: secUserID}
	return f.crawl(ctx, scope, opts, func(ctx context.Context, cursor int64) (page, error) {
		resp, err := f.client.FetchUserPosts(ctx, secUserID, cursor, f.settings.PageSize)
		if err != nil {
			return page{}, err
		}
		return page{raws: resp.AwemeList, next: resp.MaxCursor, hasMore: resp.HasMore.Bool()}, nil
	})
}

// Liked crawls a user's liked items
func (f *Fetcher) Liked(ctx context.Context, secUserID string, opts Options) *Result {
	scope := store.Scope{Kind: "user_like", ID: secUserID}
	return f.crawl(ctx, scope, opts, func(ctx context.Context, cursor int64) (page, error) {
		resp, err := f.client.FetchUserLikes(ctx, secUserID, cursor, f.settings.PageSize)
		if err != nil {
			return page{}, err
		}
		return page{raws: resp.AwemeList, next: resp.MaxCursor, hasMore: resp.HasMore.Bool()}, nil
	})
}

// MixItems crawls a collection's items
func (f *Fetcher) MixItems(ctx context.Context, mixID string, opts Options) *Result {
	scope := store.Scope{Kind: "mix", ID: mixID}
	return f.crawl(ctx, scope, opts, func(ctx context.Context, cursor int64) (page, error) {
		resp, err := f.client.FetchMixItems(ctx, mixID, cursor, f.settings.PageSize)
		if err != nil {
			return page{}, err
		}
		return page{raws: resp.AwemeList, next: resp.Cursor, hasMore: resp.HasMore.Bool()}, nil
	})
}

// MusicItems crawls the items using a piece of music
func (f *Fetcher) MusicItems(ctx context.Context, musicID string, opts Options) *Result {
	scope := store.Scope{Kind: "music", ID: musicID}
	return f.crawl(ctx, scope, opts, func(ctx context.Context, cursor int64) (page, error) {
		resp, err := f.client.FetchMusicItems(ctx, musicID, cursor, f.settings.PageSize)
		if err != nil {
			return page{}, err
		}
		return page{raws: resp.AwemeList, next: resp.Cursor, hasMore: resp.HasMore.Bool()}, nil
	})
}

// Item fetches and normalizes a single item
func (f *Fetcher) Item(ctx context.Context, awemeID string) (*media.Item, error) {
	raw, err := f.fetchPageWithRetry(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return f.client.FetchItemDetail(ctx, awemeID)
	})
	if err != nil {
		return nil, err
	}
	return media.Normalize(raw)
}

// UserDetail fetches a profile
func (f *Fetcher) UserDetail(ctx context.Context, secUserID string) (*douyin.User, error) {
	var user *douyin.User
	err := retry.Do(func() error {
		var opErr error
		user, opErr = f.client.FetchUserDetail(ctx, secUserID)
		return opErr
	}, f.retryConfig(ctx))
	return user, err
}

// MixIndex walks every page of a user's collection index. The index is
// an outer surface: no dedup, no time filtering, no limit.
func (f *Fetcher) MixIndex(ctx context.Context, secUserID string) ([]douyin.MixInfo, error) {
	var mixes []douyin.MixInfo
	cursor := int64(0)

	for {
		var resp *douyin.MixListResponse
		err := retry.Do(func() error {
			var opErr error
			resp, opErr = f.client.FetchMixIndex(ctx, secUserID, cursor, f.settings.PageSize)
			return opErr
		}, f.retryConfig(ctx))
		if err != nil {
			return mixes, err
		}

		mixes = append(mixes, resp.MixInfos...)

		if !resp.HasMore.Bool() || len(resp.MixInfos) == 0 {
			return mixes, nil
		}
		cursor = resp.Cursor
	}
}

// crawl is the shared page loop. Per item, the order of checks is:
// normalize, time filter, limit, dedup. Only yielded items consume the
// limit budget; filtered and malformed ones never do.
func (f *Fetcher) crawl(ctx context.Context, scope store.Scope, opts Options, fetch pageFunc) *Result {
	res := &Result{}
	cursor := int64(0)

	for {
		var pg page
		err := retry.Do(func() error {
			var opErr error
			pg, opErr = fetch(ctx, cursor)
			return opErr
		}, f.retryConfig(ctx))
		if err != nil {
			// Keep everything collected so far
			f.logger.ErrorWithFields("page fetch failed, returning partial crawl", map[string]interface{}{
				"scope":  scope.Key(),
				"cursor": cursor,
				"pages":  res.Stats.Pages,
				"items":  len(res.Items),
				"error":  err.Error(),
			})
			res.Err = err
			return res
		}

		res.Stats.Pages++
		f.logger.DebugWithFields("page fetched", map[string]interface{}{
			"scope":    scope.Key(),
			"cursor":   cursor,
			"items":    len(pg.raws),
			"has_more": pg.hasMore,
		})

		for _, raw := range pg.raws {
			item, err := media.Normalize(raw)
			if err != nil {
				res.Stats.Malformed++
				f.logger.WarnWithFields("skipping malformed item", map[string]interface{}{
					"scope": scope.Key(),
					"error": err.Error(),
				})
				continue
			}

			if !f.inWindow(item, opts) {
				res.Stats.Filtered++
				continue
			}

			if opts.Limit > 0 && res.Stats.Yielded >= opts.Limit {
				res.LimitReached = true
				return res
			}

			seen := f.records.Seen(scope, item.ID)
			if seen && opts.Incremental && !item.Pinned {
				// Everything older is already archived
				res.BoundaryHit = true
				f.logger.InfoWithFields("incremental boundary reached", map[string]interface{}{
					"scope":   scope.Key(),
					"item_id": item.ID,
				})
				return res
			}

			if seen {
				res.Stats.Seen++
			} else {
				// Record before yielding so a crash cannot hand out an
				// item that was never written down
				if err := f.records.Put(scope, item.ID); err != nil {
					res.Err = err
					return res
				}
				res.Stats.New++
			}

			res.Items = append(res.Items, item)
			res.Stats.Yielded++
		}

		if !pg.hasMore {
			return res
		}
		cursor = pg.next
	}
}

// inWindow applies the crawl time window
func (f *Fetcher) inWindow(item *media.Item, opts Options) bool {
	if !opts.Since.IsZero() && item.CreatedAt.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && item.CreatedAt.After(opts.Until) {
		return false
	}
	return true
}

// retryConfig builds the per-page retry policy: attempt cap and
// wall-clock cap both apply
func (f *Fetcher) retryConfig(ctx context.Context) *retry.Config {
	return &retry.Config{
		MaxAttempts: f.settings.MaxAttempts,
		MaxElapsed:  f.settings.PageTimeout,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  f.logger,
	}
}

// fetchPageWithRetry runs a single-payload fetch under the page policy
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	return retry.DoWithResult(func() (json.RawMessage, error) {
		return fetch(ctx)
	}, f.retryConfig(ctx))
}
