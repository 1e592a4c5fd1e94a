package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/style"
)

// header: title line, state line, separator.
const headerHeight = 3

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	tsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	typeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(18)
	sepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.vp.View(),
	)
}

func (m *Model) renderHeader() string {
	title := m.sess.Title
	if title == "" {
		title = m.sessionID
	}

	var marker string
	if m.finished {
		marker = style.Success.Render("●")
	} else {
		marker = m.spin.View()
	}

	state := string(m.sess.State)
	if state == "" {
		state = "connecting"
	}
	status := fmt.Sprintf("%s %s  %s",
		marker,
		style.State(state).Render(state),
		style.Dim.Render(fmt.Sprintf("%d activities", m.streamed)))

	sep := sepStyle.Render(strings.Repeat("─", max(1, m.width)))
	return titleStyle.Render(title) + "\n" + status + "\n" + sep
}

func (m *Model) content() string {
	if len(m.lines) == 0 {
		return style.Dim.Render("Waiting for activity...")
	}
	return strings.Join(m.lines, "\n")
}

// formatLine renders one activity for the stream panel.
func formatLine(a *api.Activity) string {
	return fmt.Sprintf("%s %s %s",
		tsStyle.Render(a.CreateTime.Local().Format("15:04:05")),
		typeStyle.Render(string(a.Type())),
		a.Summary())
}
