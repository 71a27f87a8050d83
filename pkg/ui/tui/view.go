package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const maxVisibleTasks = 8
const maxVisibleLogs = 6

// View renders the dashboard
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("douyindl"))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())
	b.WriteString("\n")
	b.WriteString(m.renderProgress())
	b.WriteString("\n\n")
	b.WriteString(m.renderActive())
	b.WriteString("\n")
	b.WriteString(m.renderLog())

	if m.showHelp {
		b.WriteString(helpStyle.Render("q quit • ctrl+l clear log • ? toggle help"))
	} else {
		b.WriteString(helpStyle.Render("? for help"))
	}

	return b.String()
}

func (m *Model) renderStats() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.startTime).Round(time.Second)

	parts := []string{
		statLabelStyle.Render("done ") + statValueStyle.Render(fmt.Sprintf("%d/%d", m.completed+m.skipped+m.failed, m.totalTasks)),
		statLabelStyle.Render("size ") + statValueStyle.Render(FormatBytes(m.bytes)),
		statLabelStyle.Render("elapsed ") + statValueStyle.Render(elapsed.String()),
	}
	if m.failed > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	if m.sweepPass > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("retry pass %d", m.sweepPass)))
	}
	if m.done {
		parts = append(parts, successStyle.Render("finished — press q"))
	}

	return panelStyle.Render(strings.Join(parts, dimStyle.Render("  │  ")))
}

func (m *Model) renderProgress() string {
	return " " + m.overall.View()
}

func (m *Model) renderActive() string {
	active := m.activeTasks()

	var b strings.Builder
	b.WriteString(statLabelStyle.Render(" transfers"))
	b.WriteString("\n")

	if len(active) == 0 {
		b.WriteString(dimStyle.Render("   idle"))
		b.WriteString("\n")
		return b.String()
	}

	shown := active
	if len(shown) > maxVisibleTasks {
		shown = shown[:maxVisibleTasks]
	}
	for _, row := range shown {
		b.WriteString(fmt.Sprintf("   %s %s %s\n",
			m.spinner.View(),
			statValueStyle.Render(row.ItemID),
			dimStyle.Render(string(row.Type)),
		))
	}
	if hidden := len(active) - len(shown); hidden > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("   … %d more", hidden)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderLog() string {
	m.mu.RLock()
	lines := m.logLines
	if len(lines) > maxVisibleLogs {
		lines = lines[len(lines)-maxVisibleLogs:]
	}
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		rendered = append(rendered, fmt.Sprintf(" %s %s",
			dimStyle.Render(line.Time.Format("15:04:05")),
			levelStyle(line.Level).Render(line.Message),
		))
	}
	m.mu.RUnlock()

	if len(rendered) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, rendered...) + "\n"
}
