package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"douyindl/internal/downloader"
)

// TaskState is where one transfer currently stands
type TaskState int

const (
	TaskActive TaskState = iota
	TaskCompleted
	TaskSkipped
	TaskFailed
)

// TaskRow is one tracked transfer
type TaskRow struct {
	Key       string
	ItemID    string
	Type      downloader.TaskType
	Dest      string
	State     TaskState
	Bytes     int64
	StartTime time.Time
	Err       error
}

// LogLine is one entry of the activity log
type LogLine struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the dashboard state
type Model struct {
	spinner spinner.Model
	overall progress.Model

	tasks     map[string]*TaskRow
	taskOrder []string

	totalTasks int
	completed  int
	skipped    int
	failed     int
	bytes      int64
	sweepPass  int

	startTime time.Time

	width    int
	height   int
	showHelp bool
	done     bool

	logLines    []LogLine
	maxLogLines int

	mu sync.RWMutex
}

// NewModel creates the dashboard model
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:     s,
		overall:     p,
		tasks:       make(map[string]*TaskRow),
		startTime:   time.Now(),
		maxLogLines: 50,
	}
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func taskKey(task downloader.Task) string {
	return task.ItemID + "/" + string(task.Type)
}

func (m *Model) startTask(task downloader.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskKey(task)
	if _, ok := m.tasks[key]; !ok {
		m.taskOrder = append(m.taskOrder, key)
	}
	m.tasks[key] = &TaskRow{
		Key:       key,
		ItemID:    task.ItemID,
		Type:      task.Type,
		Dest:      task.Dest,
		State:     TaskActive,
		StartTime: time.Now(),
	}
}

func (m *Model) finishTask(result downloader.TaskResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.tasks[taskKey(result.Task)]
	if !ok {
		return
	}

	switch result.Status {
	case downloader.StatusCompleted:
		row.State = TaskCompleted
		row.Bytes = result.Bytes
		m.completed++
		m.bytes += result.Bytes
	case downloader.StatusSkipped:
		row.State = TaskSkipped
		m.skipped++
	case downloader.StatusFailed:
		row.State = TaskFailed
		row.Err = result.Err
		m.failed++
	}
}

func (m *Model) addLog(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logLines = append(m.logLines, LogLine{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})
	if len(m.logLines) > m.maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-m.maxLogLines:]
	}
}

// activeTasks returns the transfers still in flight, oldest first
func (m *Model) activeTasks() []*TaskRow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []*TaskRow
	for _, key := range m.taskOrder {
		if row := m.tasks[key]; row != nil && row.State == TaskActive {
			active = append(active, row)
		}
	}
	return active
}

// progressRatio is the finished fraction of all known tasks
func (m *Model) progressRatio() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalTasks == 0 {
		return 0
	}
	ratio := float64(m.completed+m.skipped+m.failed) / float64(m.totalTasks)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
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
