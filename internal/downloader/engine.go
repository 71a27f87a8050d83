package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errs "douyindl/pkg/errors"
	"douyindl/pkg/logger"
	"douyindl/pkg/retry"
	"douyindl/pkg/storage"
)

// HTTPDoer issues media requests. The API client satisfies it so
// downloads carry the same headers and cookie as page fetches.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Monitor observes batch progress. Implementations must be safe for
// concurrent use.
type Monitor interface {
	BatchStarted(totalTasks int)
	TaskStarted(task Task)
	TaskDone(result TaskResult)
	SweepStarted(pass, remaining int)
	BatchFinished(report *Report)
}

// NopMonitor ignores all events
type NopMonitor struct{}

func (NopMonitor) BatchStarted(int)      {}
func (NopMonitor) TaskStarted(Task)      {}
func (NopMonitor) TaskDone(TaskResult)   {}
func (NopMonitor) SweepStarted(int, int) {}
func (NopMonitor) BatchFinished(*Report) {}

// Report aggregates a batch outcome
type Report struct {
	Completed int
	Skipped   int
	Failed    int
	Bytes     int64
	// Passes is how many pool passes ran, the first plus any sweeps
	Passes  int
	Results []TaskResult
}

// Config holds engine tuning
type Config struct {
	// Workers is the number of items transferred concurrently
	Workers int
	// RetryAttempts caps attempts per task within one pass
	RetryAttempts int
	// RetryDelay is the base delay between attempts
	RetryDelay time.Duration
	// SweepLimit caps verify-and-retry passes over failed tasks
	SweepLimit int
	// TasksPerItem bounds how many of one item's tasks run at once
	TasksPerItem int
}

// Engine downloads item media with a worker pool. The unit of pool work
// is one item: all of an item's files transfer before the next item
// starts on that worker.
type Engine struct {
	client  HTTPDoer
	cfg     Config
	monitor Monitor
	logger  logger.Logger
}

// New creates a download engine
func New(client HTTPDoer, cfg Config, monitor Monitor, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	if monitor == nil {
		monitor = NopMonitor{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.SweepLimit < 0 {
		cfg.SweepLimit = 0
	}
	if cfg.TasksPerItem <= 0 {
		cfg.TasksPerItem = 4
	}

	return &Engine{
		client:  client,
		cfg:     cfg,
		monitor: monitor,
		logger:  log,
	}
}

// DownloadBatch transfers every job, then sweeps failed tasks up to the
// configured number of extra passes
func (e *Engine) DownloadBatch(ctx context.Context, jobs []ItemJob) *Report {
	report := &Report{}

	total := 0
	for _, job := range jobs {
		total += len(job.Tasks)
	}
	e.monitor.BatchStarted(total)

	pending := jobs
	for pass := 0; pass <= e.cfg.SweepLimit && len(pending) > 0; pass++ {
		if pass > 0 {
			remaining := 0
			for _, job := range pending {
				remaining += len(job.Tasks)
			}
			e.monitor.SweepStarted(pass, remaining)
			e.logger.InfoWithFields("retry sweep", map[string]interface{}{
				"pass":      pass,
				"remaining": remaining,
			})
		}

		report.Passes++
		results := e.runPool(ctx, pending)

		var failedByItem map[string]*ItemJob
		pendingByID := make(map[string]*ItemJob, len(pending))
		for i := range pending {
			pendingByID[pending[i].Item.ID] = &pending[i]
		}

		final := pass == e.cfg.SweepLimit || ctx.Err() != nil
		for _, res := range results {
			if res.Status == StatusFailed && !final {
				if failedByItem == nil {
					failedByItem = make(map[string]*ItemJob)
				}
				job, ok := failedByItem[res.Task.ItemID]
				if !ok {
					src := pendingByID[res.Task.ItemID]
					failedByItem[res.Task.ItemID] = &ItemJob{Item: src.Item, Tasks: []Task{res.Task}}
				} else {
					job.Tasks = append(job.Tasks, res.Task)
				}
				continue
			}

			report.Results = append(report.Results, res)
			switch res.Status {
			case StatusCompleted:
				report.Completed++
				report.Bytes += res.Bytes
			case StatusSkipped:
				report.Skipped++
			case StatusFailed:
				report.Failed++
			}
		}

		next := make([]ItemJob, 0, len(failedByItem))
		for _, job := range failedByItem {
			next = append(next, *job)
		}
		pending = next
		if ctx.Err() != nil {
			break
		}
	}

	e.monitor.BatchFinished(report)
	return report
}

// runPool runs one pass of the worker pool over the jobs
func (e *Engine) runPool(ctx context.Context, jobs []ItemJob) []TaskResult {
	jobQueue := make(chan ItemJob)

	var mu sync.Mutex
	var results []TaskResult

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobQueue {
				jobResults := e.runJob(ctx, job)
				mu.Lock()
				results = append(results, jobResults...)
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		select {
		case jobQueue <- job:
		case <-ctx.Done():
			// Unscheduled jobs count as failed so the caller sees them
			mu.Lock()
			for _, task := range job.Tasks {
				results = append(results, TaskResult{Task: task, Status: StatusFailed, Err: ctx.Err()})
			}
			mu.Unlock()
		}
	}
	close(jobQueue)
	wg.Wait()

	return results
}

// runJob transfers all of one item's files, in parallel up to the
// per-item bound, and writes the metadata sidecar
func (e *Engine) runJob(ctx context.Context, job ItemJob) []TaskResult {
	if job.MetadataPath != "" && job.Item != nil {
		if err := storage.SaveMetadata(job.MetadataPath, job.Item.Raw); err != nil {
			e.logger.WarnWithFields("failed to save metadata sidecar", map[string]interface{}{
				"item_id": job.Item.ID,
				"path":    job.MetadataPath,
				"error":   err.Error(),
			})
		}
	}

	results := make([]TaskResult, len(job.Tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.TasksPerItem)
	for i, task := range job.Tasks {
		i, task := i, task
		g.Go(func() error {
			e.monitor.TaskStarted(task)
			res := e.downloadTask(gctx, task)
			e.monitor.TaskDone(res)
			results[i] = res
			return nil
		})
	}
	g.Wait()

	return results
}

// downloadTask transfers one file with per-task retries. Existing
// non-empty destinations are skipped without touching the network.
func (e *Engine) downloadTask(ctx context.Context, task Task) TaskResult {
	if fi, err := os.Stat(task.Dest); err == nil && fi.Size() > 0 {
		e.logger.DebugWithFields("destination exists, skipping", map[string]interface{}{
			"item_id": task.ItemID,
			"dest":    task.Dest,
		})
		return TaskResult{Task: task, Status: StatusSkipped}
	}

	if err := os.MkdirAll(filepath.Dir(task.Dest), 0755); err != nil {
		return TaskResult{Task: task, Status: StatusFailed, Err: err}
	}

	partPath := task.Dest + ".part"
	// A part file left by an earlier run means this task resumes
	resumed := false
	if fi, err := os.Stat(partPath); err == nil && fi.Size() > 0 {
		resumed = true
	}

	var bytes int64
	var lastErr error

	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		n, err := e.attempt(ctx, task, partPath)
		if err == nil {
			return TaskResult{Task: task, Status: StatusCompleted, Bytes: n, Resumed: resumed}
		}
		bytes += n
		lastErr = err

		var apiErr *errs.Error
		if errors.As(err, &apiErr) && !errs.IsRetryable(apiErr.Type) {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		e.logger.WarnWithFields("download attempt failed", map[string]interface{}{
			"item_id": task.ItemID,
			"type":    string(task.Type),
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt < e.cfg.RetryAttempts {
			if err := retry.Wait(ctx, e.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	// A part that was started fresh this run holds nothing worth
	// keeping; one inherited from an earlier run stays for the next try
	if !resumed {
		os.Remove(partPath)
	}

	return TaskResult{Task: task, Status: StatusFailed, Err: lastErr, Resumed: resumed}
}

// attempt performs one transfer try: resume from the part file offset
// when the server honours ranges, restart when it does not
func (e *Engine) attempt(ctx context.Context, task Task, partPath string) (int64, error) {
	var offset int64
	if fi, err := os.Stat(partPath); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, errs.Newf(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var file *os.File
	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range: restart from zero so the part never
		// carries duplicate leading bytes
		offset = 0
		file, err = os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	case http.StatusPartialContent:
		file, err = os.OpenFile(partPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	case http.StatusRequestedRangeNotSatisfiable:
		// Offset at or past the end; treat the part as complete
		if err := os.Rename(partPath, task.Dest); err != nil {
			return 0, errs.Newf(errs.ErrorTypeUnknown, "failed to finalize download: %v", err)
		}
		return 0, nil
	case http.StatusNotFound:
		return 0, &errs.Error{Type: errs.ErrorTypeNotFound, Message: "media not found", Code: resp.StatusCode}
	case http.StatusTooManyRequests:
		return 0, &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: resp.StatusCode}
	default:
		if resp.StatusCode >= 500 {
			return 0, &errs.Error{Type: errs.ErrorTypeServerError, Message: fmt.Sprintf("server returned %d", resp.StatusCode), Code: resp.StatusCode}
		}
		return 0, &errs.Error{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode), Code: resp.StatusCode}
	}
	if err != nil {
		return 0, errs.Newf(errs.ErrorTypeUnknown, "failed to open part file: %v", err)
	}

	n, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		return n, errs.Newf(errs.ErrorTypeNetwork, "transfer interrupted: %v", copyErr)
	}
	if closeErr != nil {
		return n, errs.Newf(errs.ErrorTypeUnknown, "failed to close part file: %v", closeErr)
	}

	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, errs.Newf(errs.ErrorTypeNetwork,
			"truncated transfer: got %d of %d bytes", n, resp.ContentLength)
	}

	if err := os.Rename(partPath, task.Dest); err != nil {
		return n, errs.Newf(errs.ErrorTypeUnknown, "failed to finalize download: %v", err)
	}

	e.logger.DebugWithFields("download finished", map[string]interface{}{
		"item_id": task.ItemID,
		"type":    string(task.Type),
		"dest":    task.Dest,
		"bytes":   offset + n,
	})

	return offset + n, nil
}
