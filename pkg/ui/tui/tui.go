package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"douyindl/internal/downloader"
)

// TUI runs the dashboard and feeds it download engine events. It
// implements the engine's Monitor interface.
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates the dashboard
func New() *TUI {
	model := NewModel()
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the dashboard until the user quits. Blocks; run the
// archiver in another goroutine.
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop shuts the dashboard down
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send passes a message to the running program
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) BatchStarted(totalTasks int) {
	t.Send(BatchStartMsg{TotalTasks: totalTasks})
}

func (t *TUI) TaskStarted(task downloader.Task) {
	t.Send(TaskStartMsg{Task: task})
}

func (t *TUI) TaskDone(result downloader.TaskResult) {
	t.Send(TaskDoneMsg{Result: result})
}

func (t *TUI) SweepStarted(pass, remaining int) {
	t.Send(SweepMsg{Pass: pass, Remaining: remaining})
}

func (t *TUI) BatchFinished(report *downloader.Report) {
	t.Send(BatchDoneMsg{Report: report})
}

// Log adds a line to the dashboard's activity log
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an informational line
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogError logs a failure line
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
