package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/tuyatap/internal/analysis"
	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
)

const (
	// maxLogLines bounds the frame log kept in memory; older lines scroll
	// away for good.
	maxLogLines = 500

	// dpTableHeight is the data point table height including its header.
	dpTableHeight = 9

	// chromeRows is everything on screen that is not the frame log: the
	// header, the table title, the table and the status bar.
	chromeRows = 3 + dpTableHeight
)

// eventMsg delivers one decoded frame from the feed channel.
type eventMsg protocol.Event

// feedClosedMsg signals the feed channel closed: the replay finished or the
// tap stopped.
type feedClosedMsg struct{}

// waitForEvent blocks on the feed channel and converts its next delivery
// into a message. Reissued after every event.
func waitForEvent(events <-chan protocol.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// watchKeyMap defines key bindings for the dashboard
type watchKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Follow   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Follow, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Follow, k.Help, k.Quit},
	}
}

// Model is the watch dashboard: a scrolling frame log over a data point
// table with a status bar. It is driven by a channel of decoded events; the
// feeder (live tap or paced replay) runs outside the program and closes the
// channel when it is done.
type Model struct {
	events  <-chan protocol.Event
	session *capture.SessionInfo
	prof    *profile.Profile

	collector *analysis.Collector

	viewport viewport.Model
	dpTable  table.Model
	spinner  spinner.Model
	help     help.Model
	keys     watchKeyMap

	lines  []string
	follow bool
	closed bool

	width  int
	height int

	frames       int64
	moduleFrames int64
	mcuFrames    int64
	badSums      int64
}

// New creates a dashboard model. The session info and profile may be nil;
// they only add context to the header and labels to data points.
func New(events <-chan protocol.Event, session *capture.SessionInfo, prof *profile.Profile) Model {
	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	// Initialize the data point table (display only, never focused)
	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "dp", Width: 4},
			{Title: "name", Width: 14},
			{Title: "type", Width: 9},
			{Title: "value", Width: 26},
			{Title: "count", Width: 7},
			{Title: "last seen", Width: 12},
		}),
		table.WithHeight(dpTableHeight),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Foreground(PrimaryColor).Bold(true)
	st.Selected = lipgloss.NewStyle()
	tbl.SetStyles(st)

	// Initialize key bindings
	keys := watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "page down"),
		),
		Follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}

	collector := analysis.NewCollector()
	if session != nil {
		collector.SetSession(session.SessionID, session.Started)
	}

	width, height := GetTerminalSize()
	m := Model{
		events:    events,
		session:   session,
		prof:      prof,
		collector: collector,
		viewport:  viewport.New(width, 10),
		dpTable:   tbl,
		spinner:   s,
		help:      help.New(),
		keys:      keys,
		follow:    true,
		width:     width,
		height:    height,
	}
	return m.layout()
}

// Init starts the spinner and the first channel wait.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.layout(), nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Follow):
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m.layout(), nil

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down),
			key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			// Manual scrolling pauses follow until it is turned back on.
			m.follow = false
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m = m.absorb(protocol.Event(msg))
		return m, waitForEvent(m.events)

	case feedClosedMsg:
		m.closed = true
		return m, nil
	}

	return m, nil
}

// absorb folds one decoded event into the log, the counters and the table.
func (m Model) absorb(ev protocol.Event) Model {
	m.collector.AddEvent(ev)
	m.frames++
	if ev.Frame.Direction == protocol.DirModule {
		m.moduleFrames++
	} else {
		m.mcuFrames++
	}
	if !ev.Frame.ChecksumValid {
		m.badSums++
	}

	m.lines = append(m.lines, m.renderFrame(ev)...)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}

	m.dpTable.SetRows(m.dpRows())
	return m
}

// layout resizes the components to the current terminal dimensions.
func (m Model) layout() Model {
	m.help.Width = m.width
	helpHeight := lipgloss.Height(m.help.View(m.keys))

	vpHeight := m.height - chromeRows - helpHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
	return m
}

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(TableTitleStyle.Render("data points"))
	b.WriteString("\n")
	b.WriteString(m.dpTable.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) headerView() string {
	parts := []string{TitleStyle.Render("tuyatap watch")}

	if m.session != nil {
		var info []string
		if m.session.ModulePort != "" {
			info = append(info, "module="+m.session.ModulePort)
		}
		if m.session.MCUPort != "" {
			info = append(info, "mcu="+m.session.MCUPort)
		}
		if m.session.Baud != 0 {
			info = append(info, fmt.Sprintf("baud=%d", m.session.Baud))
		}
		if len(info) == 0 && m.session.SessionID != "" {
			info = append(info, "session "+m.session.SessionID)
		}
		if len(info) > 0 {
			parts = append(parts, SubtitleStyle.Render(strings.Join(info, "  ")))
		}
	}

	switch {
	case m.closed:
		parts = append(parts, EndedStyle.Render("stream ended"))
	case m.frames == 0:
		parts = append(parts, m.spinner.View()+SubtitleStyle.Render(" waiting for frames"))
	}

	return strings.Join(parts, "  ")
}

func (m Model) statusView() string {
	follow := "follow off"
	if m.follow {
		follow = "follow on"
	}
	return StatusBarStyle.Render(fmt.Sprintf(
		"frames %d (module %d, mcu %d)   bad checksum %d   dps %d   %s",
		m.frames, m.moduleFrames, m.mcuFrames, m.badSums, len(m.dpTable.Rows()), follow))
}

// renderFrame renders one decoded frame as log lines: the frame itself plus
// one sub-line per data point.
func (m Model) renderFrame(ev protocol.Event) []string {
	frame := ev.Frame

	dirStyle := ModuleStyle
	if frame.Direction == protocol.DirMCU {
		dirStyle = MCUStyle
	}
	status := OKStyle.Render("ok")
	if !frame.ChecksumValid {
		status = BadChecksumStyle.Render("BAD CHECKSUM")
	}

	lines := []string{fmt.Sprintf("%s  %s %-26s v%d len=%-4d %s",
		TimeStyle.Render(frame.Time.Format("15:04:05.000")),
		dirStyle.Render(fmt.Sprintf("%-8s", "["+frame.Direction.String()+"]")),
		frame.Command, frame.Version, len(frame.Payload), status)}

	for _, dp := range ev.DataPoints {
		lines = append(lines, DPLineStyle.Render("              "+m.describeDP(dp)))
	}
	return lines
}

func (m Model) describeDP(dp protocol.DataPoint) string {
	label := m.prof.Label(dp.ID)
	if dp.Value == nil {
		return fmt.Sprintf("%s (%s) raw=% X", label, dp.Type, dp.Raw)
	}
	return fmt.Sprintf("%s (%s) = %s", label, dp.Type, m.prof.Describe(dp.ID, dp.Value))
}

// dpRows rebuilds the table rows from the collector's registry.
func (m Model) dpRows() []table.Row {
	s := m.collector.Summary()
	rows := make([]table.Row, 0, len(s.DataPoints))
	for _, obs := range s.DataPoints {
		name := ""
		if meta := m.prof.Meta(obs.ID); meta != nil {
			name = meta.Label
		}
		value := fmt.Sprintf("% X", obs.LastRaw)
		if obs.LastValue != nil {
			value = m.prof.Describe(obs.ID, obs.LastValue)
		}
		rows = append(rows, table.Row{
			strconv.Itoa(int(obs.ID)),
			name,
			dpTypeName(obs),
			value,
			strconv.FormatInt(obs.Count, 10),
			obs.LastSeen.Format("15:04:05.000"),
		})
	}
	return rows
}

// dpTypeName picks the most frequent declared type for an id, with the
// lowest tag winning ties so the rendering is stable.
func dpTypeName(obs analysis.DPObservation) string {
	var best protocol.DPType
	bestN := int64(-1)
	for t, n := range obs.Types {
		if n > bestN || (n == bestN && t < best) {
			best, bestN = t, n
		}
	}
	if bestN < 0 {
		return ""
	}
	return best.String()
}
