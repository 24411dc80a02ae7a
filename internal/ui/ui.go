// Package ui provides a terminal UI for watching a running colony.
// Uses Bubbletea to render tick reports streamed from the observer.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/observer"
	"github.com/marcus/hivemind/internal/world"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelColony Panel = iota
	PanelCreeps
	PanelEvents
)

const panelCount = 3

// maxEvents caps the event log.
const maxEvents = 500

// LinkStatus describes the connection to the colony.
type LinkStatus int

const (
	LinkConnecting LinkStatus = iota
	LinkLive
	LinkLost
)

func (s LinkStatus) String() string {
	switch s {
	case LinkConnecting:
		return "Connecting"
	case LinkLive:
		return "Live"
	case LinkLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// EventEntry is one line in the event panel.
type EventEntry struct {
	Tick    int64
	Level   string
	Message string
}

// ReportMsg delivers a finished tick to the model.
type ReportMsg struct {
	Report *dispatch.Report
}

// DisconnectedMsg tells the model the stream ended.
type DisconnectedMsg struct {
	Err error
}

// Model holds the TUI state.
type Model struct {
	// Display state
	width       int
	height      int
	activePanel Panel
	quitting    bool

	// Colony panel
	link       LinkStatus
	linkErr    error
	lastReport *dispatch.Report
	lastSeen   time.Time
	ticksSeen  int

	// Creeps
	creeps        []dispatch.CreepReport
	selectedCreep int
	creepScroll   int

	// Events
	events      []EventEntry
	eventScroll int

	// Progress
	progressTick int

	source *observer.Client

	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	// Panel borders
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	// Text styles
	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	// Status indicators
	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	// Creep list
	CreepSelected lipgloss.Style

	// Event levels
	EventInfo  lipgloss.Style
	EventWarn  lipgloss.Style
	EventError lipgloss.Style

	// Help bar
	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// newStyles creates the default style set.
func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight),

		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Value: lipgloss.NewStyle().
			Bold(true),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		StatusOK: lipgloss.NewStyle().
			Foreground(green).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),

		StatusRunning: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true),

		CreepSelected: lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#fff")).
			Bold(true),

		EventInfo:  lipgloss.NewStyle().Foreground(blue),
		EventWarn:  lipgloss.NewStyle().Foreground(yellow),
		EventError: lipgloss.NewStyle().Foreground(red),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

type tickMsg time.Time

// New creates a new TUI model. source may be nil when reports are fed with
// Program.Send.
func New(source *observer.Client) *Model {
	return &Model{
		width:       80,
		height:      24,
		activePanel: PanelColony,
		link:        LinkConnecting,
		creeps:      make([]dispatch.CreepReport, 0),
		events:      make([]EventEntry, 0),
		source:      source,
		styles:      newStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), tea.EnterAltScreen}
	if m.source != nil {
		cmds = append(cmds, listenCmd(m.source))
	}
	return tea.Batch(cmds...)
}

// tickCmd returns a command that ticks every second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenCmd waits for the next report on the stream.
func listenCmd(c *observer.Client) tea.Cmd {
	return func() tea.Msg {
		for {
			msg, err := c.Next()
			if err != nil {
				return DisconnectedMsg{Err: err}
			}
			if msg.Report != nil {
				return ReportMsg{Report: msg.Report}
			}
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		return m, tickCmd()

	case ReportMsg:
		m.ApplyReport(msg.Report)
		if m.source != nil {
			return m, listenCmd(m.source)
		}
		return m, nil

	case DisconnectedMsg:
		m.link = LinkLost
		m.linkErr = msg.Err
		m.addEvent(m.currentTick(), "error", fmt.Sprintf("stream closed: %v", msg.Err))
		return m, nil
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % panelCount
		return m, nil

	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + panelCount - 1) % panelCount
		return m, nil

	case "up", "k":
		return m.handleUp(), nil

	case "down", "j":
		return m.handleDown(), nil

	case "home", "g":
		return m.handleHome(), nil

	case "end", "G":
		return m.handleEnd(), nil
	}

	return m, nil
}

func (m Model) handleUp() Model {
	switch m.activePanel {
	case PanelCreeps:
		if m.selectedCreep > 0 {
			m.selectedCreep--
		}
	case PanelEvents:
		if m.eventScroll > 0 {
			m.eventScroll--
		}
	}
	return m
}

func (m Model) handleDown() Model {
	switch m.activePanel {
	case PanelCreeps:
		if m.selectedCreep < len(m.creeps)-1 {
			m.selectedCreep++
		}
	case PanelEvents:
		if m.eventScroll < len(m.events)-1 {
			m.eventScroll++
		}
	}
	return m
}

func (m Model) handleHome() Model {
	switch m.activePanel {
	case PanelCreeps:
		m.selectedCreep = 0
	case PanelEvents:
		m.eventScroll = 0
	}
	return m
}

func (m Model) handleEnd() Model {
	switch m.activePanel {
	case PanelCreeps:
		if len(m.creeps) > 0 {
			m.selectedCreep = len(m.creeps) - 1
		}
	case PanelEvents:
		if len(m.events) > 0 {
			m.eventScroll = len(m.events) - 1
		}
	}
	return m
}

// ApplyReport folds a tick report into the model.
func (m *Model) ApplyReport(r *dispatch.Report) {
	if r == nil {
		return
	}
	if m.lastReport != nil && r.Tick <= m.lastReport.Tick {
		return
	}

	m.link = LinkLive
	m.linkErr = nil
	m.lastReport = r
	m.lastSeen = time.Now()
	m.ticksSeen++

	m.creeps = make([]dispatch.CreepReport, len(r.Creeps))
	copy(m.creeps, r.Creeps)
	if m.selectedCreep >= len(m.creeps) {
		m.selectedCreep = max(len(m.creeps)-1, 0)
	}

	if r.Spawn != nil {
		level := "info"
		if r.Spawn.Result != world.OK {
			level = "warn"
		}
		m.addEvent(r.Tick, level, fmt.Sprintf("%s spawn %s: %s", r.Spawn.Spawn, r.Spawn.Name, r.Spawn.Result))
	}
	for _, t := range r.Added {
		m.addEvent(r.Tick, "info", "task added: "+t.String())
	}
	for _, t := range r.Evicted {
		m.addEvent(r.Tick, "warn", "task evicted: "+t.String())
	}
	if r.Skipped > 0 {
		m.addEvent(r.Tick, "warn", fmt.Sprintf("dropped %d malformed task records", r.Skipped))
	}
	for _, name := range r.Removed {
		m.addEvent(r.Tick, "info", "memory removed: "+name)
	}
	for _, c := range r.Creeps {
		for _, s := range c.Steps {
			if s.Result != world.OK && s.Result != world.ErrNotInRange {
				m.addEvent(r.Tick, "error", fmt.Sprintf("%s %s", c.Name, s))
			}
		}
	}
}

func (m *Model) addEvent(tick int64, level, message string) {
	follow := len(m.events) == 0 || m.eventScroll >= len(m.events)-1
	m.events = append(m.events, EventEntry{Tick: tick, Level: level, Message: message})
	if len(m.events) > maxEvents {
		drop := len(m.events) - maxEvents
		m.events = m.events[drop:]
		m.eventScroll = max(m.eventScroll-drop, 0)
	}
	if follow {
		m.eventScroll = len(m.events) - 1
	}
}

func (m Model) currentTick() int64 {
	if m.lastReport == nil {
		return 0
	}
	return m.lastReport.Tick
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	colonyPanel := m.renderColonyPanel(leftWidth-2, topHeight-2)
	creepPanel := m.renderCreepPanel(rightWidth-2, topHeight-2)
	eventPanel := m.renderEventPanel(m.width-2, bottomHeight-2)

	colonyBorder := m.getBorder(PanelColony).Width(leftWidth - 2).Height(topHeight - 2)
	creepBorder := m.getBorder(PanelCreeps).Width(rightWidth - 2).Height(topHeight - 2)
	eventBorder := m.getBorder(PanelEvents).Width(m.width - 2).Height(bottomHeight - 2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		colonyBorder.Render(colonyPanel),
		creepBorder.Render(creepPanel),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		eventBorder.Render(eventPanel),
		m.renderHelpBar(),
	)
}

func (m Model) getBorder(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

func (m Model) renderColonyPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Colony"))
	b.WriteString("\n\n")

	linkStyle := m.styles.StatusWarn
	switch m.link {
	case LinkLive:
		linkStyle = m.styles.StatusOK
	case LinkLost:
		linkStyle = m.styles.StatusError
	}
	b.WriteString(m.styles.Label.Render("Link: "))
	b.WriteString(linkStyle.Render(m.link.String()))
	if m.link == LinkConnecting {
		b.WriteString(" " + m.spinner())
	}
	b.WriteString("\n\n")

	r := m.lastReport
	if r == nil {
		b.WriteString(m.styles.Muted.Render("Waiting for first tick"))
		return b.String()
	}

	b.WriteString(m.styles.Label.Render("Tick: "))
	b.WriteString(m.styles.Highlight.Render(fmt.Sprintf("%d", r.Tick)))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  (%s, %s ago)", formatElapsed(r.Duration), formatDuration(time.Since(m.lastSeen)))))
	b.WriteString("\n")

	working := 0
	for _, c := range r.Creeps {
		if !c.Idle() {
			working++
		}
	}
	b.WriteString(m.styles.Label.Render("Creeps: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", len(r.Creeps))))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  %d working", working)))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Tasks: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", r.Tasks)))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  +%d -%d", len(r.Added), len(r.Evicted))))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Spawned: "))
	if name := r.Spawned(); name != "" {
		b.WriteString(m.styles.StatusOK.Render(name))
	} else {
		b.WriteString(m.styles.Muted.Render("none"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Ticks seen: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", m.ticksSeen)))

	return b.String()
}

func (m Model) renderCreepPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Creeps"))
	b.WriteString("\n\n")

	if len(m.creeps) == 0 {
		b.WriteString(m.styles.Muted.Render("No creeps"))
		return b.String()
	}

	visible := height - 4
	if visible < 1 {
		visible = 1
	}

	scroll := m.creepScroll
	if m.selectedCreep < scroll {
		scroll = m.selectedCreep
	} else if m.selectedCreep >= scroll+visible {
		scroll = m.selectedCreep - visible + 1
	}

	for i := scroll; i < len(m.creeps) && i < scroll+visible; i++ {
		c := m.creeps[i]

		icon, style := "o", m.styles.Muted
		if !c.Idle() {
			icon, style = m.spinner(), m.styles.StatusRunning
		}

		line := fmt.Sprintf(" %s %s", style.Render(icon), c.Name)
		if i == m.selectedCreep && m.activePanel == PanelCreeps {
			line = m.styles.CreepSelected.Render(line)
		}
		line += m.styles.Muted.Render(" " + describeCreep(c))

		b.WriteString(truncate(line, width))
		b.WriteString("\n")
	}

	if len(m.creeps) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.selectedCreep+1, len(m.creeps))))
	}

	return b.String()
}

// describeCreep summarizes what a creep did this tick.
func describeCreep(c dispatch.CreepReport) string {
	if c.Idle() {
		return "idle"
	}
	desc := c.Task.Kind.String()
	if n := len(c.Steps); n > 0 {
		last := c.Steps[n-1]
		desc += fmt.Sprintf(" (%s %s)", last.Action, last.Result)
	}
	return desc
}

func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

func (m Model) renderEventPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(m.styles.Muted.Render("No events yet"))
		return b.String()
	}

	visible := height - 4
	if visible < 1 {
		visible = 1
	}

	// Keep the scrolled-to entry on the last visible line.
	start := m.eventScroll - visible + 1
	if start < 0 {
		start = 0
	}

	for i := start; i < len(m.events) && i < start+visible; i++ {
		e := m.events[i]

		var levelStyle lipgloss.Style
		switch e.Level {
		case "info":
			levelStyle = m.styles.EventInfo
		case "warn":
			levelStyle = m.styles.EventWarn
		case "error":
			levelStyle = m.styles.EventError
		default:
			levelStyle = m.styles.Muted
		}

		msg := e.Message
		maxMsgLen := width - 20
		if len(msg) > maxMsgLen && maxMsgLen > 3 {
			msg = msg[:maxMsgLen-3] + "..."
		}

		b.WriteString(fmt.Sprintf("%s %s %s",
			m.styles.Muted.Render(fmt.Sprintf("%6d", e.Tick)),
			levelStyle.Render(fmt.Sprintf("[%-5s]", e.Level)),
			msg,
		))
		b.WriteString("\n")
	}

	if len(m.events) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.eventScroll+1, len(m.events))))
	}

	return b.String()
}

func (m Model) renderHelpBar() string {
	helpItems := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
		{"q", "quit"},
	}

	var parts []string
	for _, item := range helpItems {
		parts = append(parts, fmt.Sprintf("%s %s",
			m.styles.HelpKey.Render(item.key),
			m.styles.HelpText.Render(item.desc),
		))
	}

	return "  " + strings.Join(parts, "  |  ")
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// formatElapsed formats a tick's processing time.
func formatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Run starts the TUI and blocks until it exits.
func (m *Model) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
