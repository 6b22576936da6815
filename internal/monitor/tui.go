package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"surveyops/internal/backend"
	"surveyops/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// controls is the part of the Controller the view drives.
type controls interface {
	Refresh(ctx context.Context) error
	Select(ctx context.Context, missionID string) error
	Deselect(ctx context.Context) error
	ControlMission(ctx context.Context, missionID string, action backend.Action) (*backend.Mission, error)
	SimulateMission(ctx context.Context, missionID string) (string, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

type sampleMsg struct{ telemetry.MissionProgressSample }
type noticeMsg struct{ Notice }
type snapshotMsg struct{ Snapshot }
type refreshTickMsg struct{}
type adminMsg struct{ active bool }
type errMsg struct{ err error }

const (
	commandTimeout  = 10 * time.Second
	maxLogLines     = 200
	lowBatteryLevel = 30
)

var (
	okColor    = lipgloss.Color("10")
	offColor   = lipgloss.Color("9")
	dimColor   = lipgloss.Color("8")
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(dimColor)
)

var statusStyles = map[telemetry.MissionStatus]lipgloss.Style{
	telemetry.MissionPlanned:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	telemetry.MissionActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	telemetry.MissionPaused:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	telemetry.MissionCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	telemetry.MissionAborted:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

var noticeStyles = map[NoticeLevel]lipgloss.Style{
	NoticeInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	NoticeSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	NoticeError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

// TUI renders the live monitor with bubbletea. It is a SampleSink and a
// NoticeSink for the Controller.
type TUI struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
	onExit     func()
}

// NewTUI starts the monitor program. onExit runs when the operator quits.
func NewTUI(ctrl *Controller, refresh time.Duration, onExit func()) *TUI {
	w := &TUI{done: make(chan struct{}), onExit: onExit}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(ctrl, refresh), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() && w.onExit != nil {
			w.onExit()
		}
	}()
	return w
}

// Write implements SampleSink.
func (w *TUI) Write(s telemetry.MissionProgressSample) error {
	w.program.Send(sampleMsg{s})
	return nil
}

// Notify implements NoticeSink.
func (w *TUI) Notify(n Notice) {
	w.program.Send(noticeMsg{n})
}

// SetAdminStatus updates the admin API indicator.
func (w *TUI) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Done is closed when the program exits.
func (w *TUI) Done() <-chan struct{} { return w.done }

// Close shuts down the program and waits for cleanup.
func (w *TUI) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	ctrl    controls
	refresh time.Duration
	table   table.Model
	bar     progress.Model
	vp      viewport.Model
	snap    Snapshot
	latest  *telemetry.MissionProgressSample
	logs    []string
	admin   bool
	wrap    bool
	help    bool
	width   int
	height  int
	lastErr string
}

func newTUIModel(ctrl controls, refresh time.Duration) tuiModel {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	cols := []table.Column{
		{Title: "Mission", Width: 24},
		{Title: "Status", Width: 10},
		{Title: "Drone", Width: 14},
		{Title: "Area", Width: 16},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(6))
	return tuiModel{
		ctrl:    ctrl,
		refresh: refresh,
		table:   t,
		bar:     progress.New(progress.WithDefaultGradient()),
		vp:      viewport.New(0, 0),
		wrap:    true,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.scheduleRefresh())
}

func (m tuiModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func (m tuiModel) refreshCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		// A failed refresh raises a notice; the snapshot still reflects it.
		_ = ctrl.Refresh(ctx)
		snap, err := ctrl.Snapshot(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap}
	}
}

// run executes a controller call off the UI goroutine and reports the new state.
func (m tuiModel) run(fn func(ctx context.Context, c controls) error) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := fn(ctx, ctrl); err != nil {
			return errMsg{err}
		}
		snap, err := ctrl.Snapshot(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap}
	}
}

// selectedID is the mission the view shows as selected.
func (m tuiModel) selectedID() string {
	if m.snap.Selected == nil {
		return ""
	}
	return m.snap.Selected.ID
}

func (m tuiModel) control(a backend.Action) tea.Cmd {
	id := m.selectedID()
	return m.run(func(ctx context.Context, c controls) error {
		_, err := c.ControlMission(ctx, id, a)
		return err
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.bar.Width = max(10, msg.Width-20)
		m.vp.Width = msg.Width
		m.resizeViewport()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			m.help = false
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "?":
			m.help = true
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "enter":
			id := m.rowMission(m.table.Cursor())
			if id == "" {
				return m, nil
			}
			return m, m.run(func(ctx context.Context, c controls) error { return c.Select(ctx, id) })
		case "d":
			return m, m.run(func(ctx context.Context, c controls) error { return c.Deselect(ctx) })
		case "s":
			return m, m.control(backend.ActionStart)
		case "p":
			return m, m.control(backend.ActionPause)
		case "r":
			return m, m.control(backend.ActionResume)
		case "a":
			return m, m.control(backend.ActionAbort)
		case "c":
			return m, m.control(backend.ActionComplete)
		case "m":
			id := m.selectedID()
			return m, m.run(func(ctx context.Context, c controls) error {
				_, err := c.SimulateMission(ctx, id)
				return err
			})
		case "R":
			return m, m.refreshCmd()
		default:
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	case refreshTickMsg:
		return m, tea.Batch(m.refreshCmd(), m.scheduleRefresh())
	case snapshotMsg:
		m.applySnapshot(msg.Snapshot)
	case sampleMsg:
		if m.snap.Selected != nil && msg.MissionID == m.snap.Selected.ID {
			s := msg.MissionProgressSample
			m.latest = &s
		}
	case noticeMsg:
		m.appendLog(renderNotice(msg.Notice))
	case errMsg:
		m.lastErr = msg.err.Error()
		m.appendLog(noticeStyles[NoticeError].Render("error: " + m.lastErr))
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m *tuiModel) applySnapshot(s Snapshot) {
	m.snap = s
	m.latest = s.Latest
	rows := make([]table.Row, 0, len(s.Missions))
	for _, ms := range s.Missions {
		name := ms.Name
		if name == "" {
			name = ms.ID
		}
		if s.Selected != nil && s.Selected.ID == ms.ID {
			name = "▶ " + name
		}
		rows = append(rows, table.Row{name, string(ms.Status), ms.DroneName, ms.SurveyAreaName})
	}
	m.table.SetRows(rows)
	m.lastErr = ""
}

func (m tuiModel) rowMission(i int) string {
	if i < 0 || i >= len(m.snap.Missions) {
		return ""
	}
	return m.snap.Missions[i].ID
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) resizeViewport() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderDetails()) + 4
	m.vp.Height = max(3, m.height-used)
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		lines = append(lines, l)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func renderNotice(n Notice) string {
	style, ok := noticeStyles[n.Level]
	if !ok {
		style = lipgloss.NewStyle()
	}
	prefix := dimStyle.Render(n.At.Format("15:04:05"))
	if n.MissionID != "" {
		prefix += " " + n.MissionID
	}
	return prefix + " " + style.Render(n.Message)
}

func (m tuiModel) View() string {
	if m.help {
		return renderHelp()
	}
	divider := dimStyle.Render(strings.Repeat("─", max(1, m.width)))
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.renderDetails(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func (m tuiModel) renderHeader() string {
	return titleStyle.Render("Missions") + "\n" + m.table.View()
}

func (m tuiModel) renderDetails() string {
	sel := m.snap.Selected
	if sel == nil {
		return dimStyle.Render("No mission selected. Move with ↑/↓ and press enter.")
	}
	style := statusStyles[sel.Status]
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", titleStyle.Render(sel.Name), style.Render(string(sel.Status)))
	if sel.DroneName != "" {
		fmt.Fprintf(&b, "  drone %s", sel.DroneName)
	}
	if sel.FlightAltitude > 0 {
		fmt.Fprintf(&b, "  planned %dm @ %.1f m/s", sel.FlightAltitude, sel.Speed)
	}
	if fp := m.snap.FlightPath; fp != nil {
		fmt.Fprintf(&b, "  path %d waypoints, %.0fm", len(fp.Waypoints), fp.TotalDistance)
	}
	b.WriteString("\n")

	s := m.latest
	if s == nil {
		if sel.Status == telemetry.MissionActive {
			b.WriteString(dimStyle.Render("Waiting for telemetry..."))
		} else {
			b.WriteString(dimStyle.Render("No live telemetry while " + string(sel.Status)))
		}
		return b.String()
	}
	b.WriteString(m.bar.ViewAs(float64(s.ProgressPercentage)/100) + "\n")
	batt := fmt.Sprintf("%d%%", s.BatteryLevel)
	if s.BatteryLevel < lowBatteryLevel {
		batt = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render(batt)
	}
	fmt.Fprintf(&b, "pos %.5f, %.5f  alt %.1fm  battery %s  waypoint %d  distance %.0fm  speed %.1f m/s  %s",
		s.Position.Lat, s.Position.Lng, s.Position.Alt, batt,
		s.CurrentWaypointIndex, s.DistanceCovered, s.Speed,
		dimStyle.Render(s.Timestamp.Format(time.RFC3339)))
	if s.Status == telemetry.SampleCompleted {
		b.WriteString("  " + statusStyles[telemetry.MissionCompleted].Render("simulation complete"))
	}
	return b.String()
}

func indicator(on bool) string {
	c := offColor
	if on {
		c = okColor
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	live := m.snap.Subscribed
	line := fmt.Sprintf("Live %s | Admin API %s | Wrap %s | s start p pause r resume a abort c complete m simulate | ? help | q quit",
		indicator(live), indicator(m.admin), indicator(m.wrap))
	if m.lastErr != "" {
		line = noticeStyles[NoticeError].Render(m.lastErr) + "\n" + line
	}
	return line
}

func renderHelp() string {
	rows := [][2]string{
		{"↑/↓", "move through missions"},
		{"enter", "monitor the highlighted mission"},
		{"d", "stop monitoring"},
		{"s / p / r", "start, pause or resume the mission"},
		{"a / c", "abort or complete the mission"},
		{"m", "ask the backend to simulate the mission"},
		{"R", "reload missions"},
		{"w", "toggle wrapping of the log"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys") + "\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-10s %s\n", r[0], r[1])
	}
	b.WriteString("\n" + dimStyle.Render("press any key to return"))
	return b.String()
}
