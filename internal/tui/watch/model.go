// Package watch renders a live view of one running session: its current
// state up top, the activity stream below.
package watch

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/droverhq/drover/internal/api"
)

const maxLines = 1000

// SessionFetcher supplies the session resource for the header panel.
type SessionFetcher interface {
	Info(ctx context.Context, id string) (api.Session, error)
}

// Model is the bubbletea model for the watch TUI.
type Model struct {
	sessionID string
	fetcher   SessionFetcher

	width  int
	height int

	sess     api.Session
	lines    []string
	finished bool
	streamed int

	spin spinner.Model
	vp   viewport.Model

	activities <-chan api.Activity
	cancel     context.CancelFunc
	err        error
}

// New builds the model. The activities channel is the merged cold+hot
// stream of the session; cancel stops the underlying poll loop and is
// called exactly once, on quit or terminal activity.
func New(sessionID string, fetcher SessionFetcher, activities <-chan api.Activity, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		sessionID:  sessionID,
		fetcher:    fetcher,
		spin:       s,
		vp:         viewport.New(0, 0),
		activities: activities,
		cancel:     cancel,
	}
}

// Err reports a stream or fetch failure observed while watching.
func (m *Model) Err() error { return m.err }

type activityMsg api.Activity

type streamClosedMsg struct{}

type sessionMsg struct {
	sess api.Session
	err  error
}

type refreshTickMsg time.Time

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		m.listenForActivities(),
		m.fetchSession(),
		tea.SetWindowTitle("drover watch "+m.sessionID),
	)
}

// listenForActivities returns a command that blocks on the stream.
func (m *Model) listenForActivities() tea.Cmd {
	return func() tea.Msg {
		a, ok := <-m.activities
		if !ok {
			return streamClosedMsg{}
		}
		return activityMsg(a)
	}
}

func (m *Model) fetchSession() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sess, err := m.fetcher.Info(ctx, m.sessionID)
		return sessionMsg{sess: sess, err: err}
	}
}

func (m *Model) refreshTick() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = max(1, msg.Height-headerHeight)
		m.vp.SetContent(m.content())

	case activityMsg:
		a := api.Activity(msg)
		m.append(&a)
		if a.Terminal() {
			m.finished = true
			m.cancel()
			return m, nil
		}
		return m, m.listenForActivities()

	case streamClosedMsg:
		m.finished = true
		return m, nil

	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.sess = msg.sess
			if m.sess.State.Terminal() {
				m.finished = true
			}
		}
		if !m.finished {
			return m, m.refreshTick()
		}
		return m, nil

	case refreshTickMsg:
		if !m.finished {
			return m, m.fetchSession()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// append adds one formatted activity line and pins the viewport to the
// bottom unless the user scrolled away.
func (m *Model) append(a *api.Activity) {
	m.streamed++
	m.lines = append(m.lines, formatLine(a))
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	pinned := m.vp.AtBottom()
	m.vp.SetContent(m.content())
	if pinned {
		m.vp.GotoBottom()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
