package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"douyindl/internal/downloader"
)

// Progress is a minimal single-line batch progress display. It
// implements the download engine's Monitor interface.
type Progress struct {
	mu         sync.Mutex
	totalTasks int
	done       int
	skipped    int
	failed     int
	bytes      int64
	current    string
	startTime  time.Time
}

// NewProgress creates a progress display
func NewProgress() *Progress {
	return &Progress{startTime: time.Now()}
}

func (p *Progress) BatchStarted(totalTasks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalTasks += totalTasks
	if !IsQuietMode() {
		p.printLine()
	}
}

func (p *Progress) TaskStarted(task downloader.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = task.ItemID
	if !IsQuietMode() {
		p.printLine()
	}
}

func (p *Progress) TaskDone(result downloader.TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch result.Status {
	case downloader.StatusCompleted:
		p.done++
		p.bytes += result.Bytes
	case downloader.StatusSkipped:
		p.skipped++
	case downloader.StatusFailed:
		p.failed++
	}

	if !IsQuietMode() {
		p.printLine()
	}
}

func (p *Progress) SweepStarted(pass, remaining int) {
	if IsQuietMode() {
		return
	}
	fmt.Printf("\n%s retry pass %d, %d files left\n", Magenta("→"), pass, remaining)
}

func (p *Progress) BatchFinished(report *downloader.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Failed tasks swept into the next pass were already counted once
	p.failed = report.Failed
	p.current = ""
	if !IsQuietMode() {
		p.printLine()
		fmt.Println()
	}
}

// Summary prints the end-of-run totals
func (p *Progress) Summary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if IsQuietMode() {
		return
	}

	elapsed := time.Since(p.startTime)
	fmt.Printf("\n%s %d files downloaded, %d skipped\n", Green("✓"), p.done, p.skipped)
	fmt.Printf("  %s %s in %s (%.1f files/min)\n",
		Dim("•"),
		FormatBytes(p.bytes),
		formatDuration(elapsed),
		float64(p.done)/maxMinutes(elapsed),
	)
	if p.failed > 0 {
		fmt.Printf("  %s %d downloads failed\n", Dim("•"), p.failed)
	}
}

// printLine redraws the single status line; callers hold the lock
func (p *Progress) printLine() {
	finished := p.done + p.skipped + p.failed

	barWidth := 20
	filled := 0
	if p.totalTasks > 0 {
		filled = finished * barWidth / p.totalTasks
		if filled > barWidth {
			filled = barWidth
		}
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	rate := float64(p.done) / maxMinutes(time.Since(p.startTime))

	line := fmt.Sprintf("\r[%s] %d/%d • %.1f/min • %s • %s",
		bar,
		finished,
		p.totalTasks,
		rate,
		FormatBytes(p.bytes),
		p.eta(finished),
	)

	if p.current != "" {
		line += fmt.Sprintf(" • %s", Dim(p.current))
	}
	if p.failed > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.failed)))
	}

	fmt.Printf("\r%s\r%s", strings.Repeat(" ", 120), line)
}

// eta estimates the time remaining from the pace so far
func (p *Progress) eta(finished int) string {
	if finished == 0 || p.totalTasks == 0 {
		return "calculating..."
	}

	remaining := p.totalTasks - finished
	rate := float64(finished) / time.Since(p.startTime).Seconds()
	if rate == 0 {
		return "calculating..."
	}

	return formatDuration(time.Duration(float64(remaining)/rate) * time.Second)
}

func maxMinutes(d time.Duration) float64 {
	m := d.Minutes()
	if m < 1.0/60 {
		return 1.0 / 60
	}
	return m
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatBytes renders a byte count for humans
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
