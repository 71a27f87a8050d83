package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"douyindl/internal/downloader"
	"douyindl/pkg/config"
	"douyindl/pkg/douyin"
	"douyindl/pkg/fetcher"
	"douyindl/pkg/logger"
	"douyindl/pkg/media"
	"douyindl/pkg/ratelimit"
	"douyindl/pkg/storage"
	"douyindl/pkg/store"
)

// Client is the slice of the API client the archiver needs beyond what
// the fetcher already covers
type Client interface {
	fetcher.Client
	ResolveShareURL(ctx context.Context, shareURL string) (string, error)
	FetchLiveRoom(ctx context.Context, webRID string) (*douyin.RoomData, error)
	FetchRoomReflow(ctx context.Context, roomID string) (*douyin.RoomData, error)
}

// RunStats aggregates one archiving run
type RunStats struct {
	Links       int
	FailedLinks int
	Fetched     int
	Downloaded  int
	Skipped     int
	FailedFiles int
	Bytes       int64
	Duration    time.Duration
}

// Archiver orchestrates the full pipeline: resolve each link, crawl the
// resource it names, and hand the items to the download engine
type Archiver struct {
	cfg      *config.Config
	client   Client
	resolver *douyin.Resolver
	fetcher  *fetcher.Fetcher
	records  store.Store
	engine   *downloader.Engine
	layout   storage.Layout
	logger   logger.Logger

	since time.Time
	until time.Time
}

// New wires the archiver from configuration. The signer is an external
// collaborator; pass douyin.NopSigner when requests need no signature.
func New(cfg *config.Config, sign douyin.Signer, monitor downloader.Monitor) (*Archiver, error) {
	log := logger.GetLogger()

	since, until, err := cfg.TimeBounds()
	if err != nil {
		return nil, err
	}

	client := douyin.NewClient(cfg.Download.Timeout, sign, log)
	if cfg.Douyin.Cookie != "" {
		client.SetCookie(cfg.Douyin.Cookie)
	}
	if cfg.Douyin.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.Douyin.UserAgent)
	}
	if cfg.Douyin.Referer != "" {
		client.SetHeader("Referer", cfg.Douyin.Referer)
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		client.SetLimiter(ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute))
	}

	var records store.Store
	if cfg.Store.Enabled {
		fileStore, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open record store: %w", err)
		}
		records = fileStore
	} else {
		records = store.Discard{}
	}

	f := fetcher.New(client, records, fetcher.Settings{
		PageSize:    cfg.Fetch.PageSize,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		PageTimeout: cfg.Fetch.PageTimeout,
	}, log)

	engine := downloader.New(client, downloader.Config{
		Workers:       cfg.Download.Workers,
		RetryAttempts: cfg.Download.RetryAttempts,
		RetryDelay:    cfg.Download.RetryDelay,
		SweepLimit:    cfg.Download.SweepLimit,
	}, monitor, log)

	return &Archiver{
		cfg:      cfg,
		client:   client,
		resolver: douyin.NewResolver(client, log),
		fetcher:  f,
		records:  records,
		engine:   engine,
		layout: storage.Layout{
			Base:           cfg.Output.BaseDirectory,
			ItemSubfolders: cfg.Output.ItemSubfolders,
		},
		logger: log,
		since:  since,
		until:  until,
	}, nil
}

// Close releases the record store
func (a *Archiver) Close() error {
	return a.records.Close()
}

// Run archives every link. A failing link is logged and counted, never
// fatal for the rest of the batch.
func (a *Archiver) Run(ctx context.Context, links []string) (*RunStats, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("nothing to archive: no links given")
	}

	start := time.Now()
	stats := &RunStats{Links: len(links)}

	for i, raw := range links {
		if ctx.Err() != nil {
			stats.FailedLinks += len(links) - i
			break
		}

		if err := a.archiveLink(ctx, raw, stats); err != nil {
			stats.FailedLinks++
			a.logger.ErrorWithFields("link failed", map[string]interface{}{
				"link":  raw,
				"error": err.Error(),
			})
		}
	}

	stats.Duration = time.Since(start)
	a.logger.InfoWithFields("run finished", map[string]interface{}{
		"links":        stats.Links,
		"failed_links": stats.FailedLinks,
		"fetched":      stats.Fetched,
		"downloaded":   stats.Downloaded,
		"skipped":      stats.Skipped,
		"failed_files": stats.FailedFiles,
		"bytes":        stats.Bytes,
		"duration":     stats.Duration.String(),
	})

	return stats, nil
}

// archiveLink resolves one link and dispatches to its kind handler
func (a *Archiver) archiveLink(ctx context.Context, raw string, stats *RunStats) error {
	link, err := a.resolver.Resolve(ctx, raw)
	if err != nil {
		return err
	}

	a.logger.InfoWithFields("archiving", map[string]interface{}{
		"kind": string(link.Kind),
		"id":   link.ID,
	})

	switch link.Kind {
	case douyin.LinkUser:
		return a.archiveUser(ctx, link.ID, stats)
	case douyin.LinkMix:
		return a.archiveMix(ctx, link.ID, stats)
	case douyin.LinkMusic:
		return a.archiveMusic(ctx, link.ID, stats)
	case douyin.LinkItem:
		return a.archiveItem(ctx, link.ID, stats)
	case douyin.LinkLive:
		return a.archiveLive(ctx, link.ID)
	default:
		return fmt.Errorf("no handler for link kind %q", link.Kind)
	}
}

// crawlOptions builds fetch options for a profile sub-mode. Incremental
// crawls need a real record store to compare against.
func (a *Archiver) crawlOptions(mode string) fetcher.Options {
	setting := a.cfg.ModeFor(mode)
	incremental := setting.Incremental && a.cfg.Store.Enabled
	if setting.Incremental && !a.cfg.Store.Enabled {
		a.logger.WarnWithFields("incremental mode needs the record store, crawling everything", map[string]interface{}{
			"mode": mode,
		})
	}
	return fetcher.Options{
		Limit:       setting.Limit,
		Incremental: incremental,
		Since:       a.since,
		Until:       a.until,
	}
}

// archiveUser crawls each configured sub-mode of a profile into its own
// subdirectory under user_<nickname>_<sec_uid>
func (a *Archiver) archiveUser(ctx context.Context, secUID string, stats *RunStats) error {
	user, err := a.fetcher.UserDetail(ctx, secUID)
	if err != nil {
		return fmt.Errorf("failed to fetch user detail: %w", err)
	}

	dir := a.layout.ResourceDir(storage.PrefixUser, user.Nickname, secUID)

	var firstErr error
	for _, mode := range a.cfg.Modes {
		var err error
		switch mode {
		case config.ModePost:
			res := a.fetcher.Posts(ctx, secUID, a.crawlOptions(mode))
			err = a.download(ctx, res, dir, storage.SubPost, stats)
		case config.ModeLike:
			res := a.fetcher.Liked(ctx, secUID, a.crawlOptions(mode))
			err = a.download(ctx, res, dir, storage.SubLike, stats)
		case config.ModeMix:
			err = a.archiveUserMixes(ctx, secUID, dir, stats)
		default:
			err = fmt.Errorf("unknown mode %q", mode)
		}

		if err != nil {
			a.logger.ErrorWithFields("mode failed", map[string]interface{}{
				"sec_uid": secUID,
				"mode":    mode,
				"error":   err.Error(),
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("mode %s: %w", mode, err)
			}
		}
	}

	return firstErr
}

// archiveUserMixes walks the profile's collection index and crawls each
// collection into mix/<name>_<id> under the user directory
func (a *Archiver) archiveUserMixes(ctx context.Context, secUID, userDir string, stats *RunStats) error {
	mixes, err := a.fetcher.MixIndex(ctx, secUID)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	a.logger.InfoWithFields("collections discovered", map[string]interface{}{
		"sec_uid": secUID,
		"count":   len(mixes),
	})

	var firstErr error
	for _, mix := range mixes {
		res := a.fetcher.MixItems(ctx, mix.MixID, a.crawlOptions(config.ModeMix))
		mixDir := filepath.Join(userDir, storage.SubMix,
			storage.Sanitize(mix.MixName)+"_"+mix.MixID)
		if err := a.download(ctx, res, mixDir, "", stats); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("collection %s: %w", mix.MixID, err)
		}
	}

	return firstErr
}

// archiveMix crawls one collection addressed directly by link, under
// the same per-mode settings as the profile collection fan-out
func (a *Archiver) archiveMix(ctx context.Context, mixID string, stats *RunStats) error {
	res := a.fetcher.MixItems(ctx, mixID, a.crawlOptions(config.ModeMix))
	name := mixName(res.Items)
	dir := a.layout.ResourceDir(storage.PrefixMix, name, mixID)
	return a.download(ctx, res, dir, "", stats)
}

// archiveMusic crawls the items using one soundtrack
func (a *Archiver) archiveMusic(ctx context.Context, musicID string, stats *RunStats) error {
	res := a.fetcher.MusicItems(ctx, musicID, a.crawlOptions(config.ModeMusic))

	name := "music"
	if len(res.Items) > 0 && res.Items[0].Refs.Audio != nil {
		name = res.Items[0].Refs.Audio.Name
	}

	dir := a.layout.ResourceDir(storage.PrefixMusic, name, musicID)
	return a.download(ctx, res, dir, "", stats)
}

// archiveItem fetches one item and downloads it into its own directory
func (a *Archiver) archiveItem(ctx context.Context, awemeID string, stats *RunStats) error {
	item, err := a.fetcher.Item(ctx, awemeID)
	if err != nil {
		return fmt.Errorf("failed to fetch item: %w", err)
	}

	dir := a.layout.ResourceDir(storage.PrefixItem, item.Title, awemeID)
	res := &fetcher.Result{Items: []*media.Item{item}}
	return a.download(ctx, res, dir, "", stats)
}

// archiveLive snapshots a live room's current state as JSON. Stream
// capture is out of scope; the snapshot records status, owner and
// stream URLs.
func (a *Archiver) archiveLive(ctx context.Context, id string) error {
	room, err := a.client.FetchLiveRoom(ctx, id)
	if err != nil {
		// A reflow link carries a room id instead of a web rid
		var reflowErr error
		room, reflowErr = a.client.FetchRoomReflow(ctx, id)
		if reflowErr != nil {
			return fmt.Errorf("failed to fetch live room: %w", err)
		}
	}

	name := room.Title
	if name == "" {
		name = room.Owner.Nickname
	}

	dir := a.layout.ResourceDir(storage.PrefixLive, name, id)
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room snapshot: %w", err)
	}

	path := filepath.Join(dir, time.Now().Format("2006-01-02_15.04.05")+"_room.json")
	if err := storage.SaveMetadata(path, raw); err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}

	a.logger.InfoWithFields("live room snapshot saved", map[string]interface{}{
		"room_id": id,
		"title":   room.Title,
		"status":  room.Status,
		"path":    path,
	})
	return nil
}

// download hands a crawl result to the engine and folds the report into
// the run stats. A partial crawl still downloads what it collected; its
// page error is returned after the transfer.
func (a *Archiver) download(ctx context.Context, res *fetcher.Result, dir, sub string, stats *RunStats) error {
	stats.Fetched += len(res.Items)

	a.logger.InfoWithFields("crawl finished", map[string]interface{}{
		"dir":           dir,
		"items":         len(res.Items),
		"new":           res.Stats.New,
		"seen":          res.Stats.Seen,
		"filtered":      res.Stats.Filtered,
		"malformed":     res.Stats.Malformed,
		"limit_reached": res.LimitReached,
		"boundary_hit":  res.BoundaryHit,
	})

	if len(res.Items) > 0 {
		jobs := make([]downloader.ItemJob, 0, len(res.Items))
		for _, item := range res.Items {
			itemDir := a.layout.ItemDir(dir, sub, item)
			jobs = append(jobs, downloader.BuildJob(item, itemDir, a.cfg.Output.SaveMetadata, downloader.TaskOptions{
				Music:  a.cfg.Media.Music,
				Cover:  a.cfg.Media.Cover,
				Avatar: a.cfg.Media.Avatar,
			}))
		}

		report := a.engine.DownloadBatch(ctx, jobs)
		stats.Downloaded += report.Completed
		stats.Skipped += report.Skipped
		stats.FailedFiles += report.Failed
		stats.Bytes += report.Bytes
	}

	if res.Err != nil {
		return fmt.Errorf("crawl incomplete: %w", res.Err)
	}
	return nil
}

// mixName recovers the collection name from the first item's payload
func mixName(items []*media.Item) string {
	for _, item := range items {
		var payload struct {
			MixInfo *douyin.MixInfo `json:"mix_info"`
		}
		if err := json.Unmarshal(item.Raw, &payload); err == nil &&
			payload.MixInfo != nil && payload.MixInfo.MixName != "" {
			return payload.MixInfo.MixName
		}
	}
	return "mix"
}
