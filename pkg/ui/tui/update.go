package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"douyindl/internal/downloader"
)

// BatchStartMsg announces a batch and its task count
type BatchStartMsg struct {
	TotalTasks int
}

// TaskStartMsg announces one transfer starting
type TaskStartMsg struct {
	Task downloader.Task
}

// TaskDoneMsg carries a finished transfer
type TaskDoneMsg struct {
	Result downloader.TaskResult
}

// SweepMsg announces a retry pass over failed transfers
type SweepMsg struct {
	Pass      int
	Remaining int
}

// BatchDoneMsg carries the final batch report
type BatchDoneMsg struct {
	Report *downloader.Report
}

// LogMsg adds a line to the activity log
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg drives periodic redraws
type TickMsg time.Time

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.overall.Update(msg)
		m.overall = model.(progress.Model)
		return m, cmd

	case TickMsg:
		return m, tea.Batch(tickCmd(), m.overall.SetPercent(m.progressRatio()))

	case BatchStartMsg:
		m.mu.Lock()
		m.totalTasks += msg.TotalTasks
		m.mu.Unlock()
		return m, nil

	case TaskStartMsg:
		m.startTask(msg.Task)
		return m, nil

	case TaskDoneMsg:
		m.finishTask(msg.Result)
		return m, nil

	case SweepMsg:
		m.mu.Lock()
		m.sweepPass = msg.Pass
		m.mu.Unlock()
		m.addLog("WARN", "retrying failed transfers")
		return m, nil

	case BatchDoneMsg:
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logLines = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
