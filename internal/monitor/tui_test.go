package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"surveyops/internal/backend"
	"surveyops/internal/telemetry"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

type fakeControls struct {
	snap     Snapshot
	selected string
	targets  []string
	actions  []backend.Action
	err      error
}

func (f *fakeControls) Refresh(context.Context) error { return nil }
func (f *fakeControls) Select(_ context.Context, id string) error {
	f.selected = id
	return nil
}
func (f *fakeControls) Deselect(context.Context) error {
	f.selected = ""
	return nil
}
func (f *fakeControls) ControlMission(_ context.Context, id string, a backend.Action) (*backend.Mission, error) {
	f.targets = append(f.targets, id)
	f.actions = append(f.actions, a)
	return nil, f.err
}
func (f *fakeControls) SimulateMission(_ context.Context, id string) (string, error) {
	f.targets = append(f.targets, id)
	return "ok", nil
}
func (f *fakeControls) Snapshot(context.Context) (Snapshot, error) { return f.snap, nil }

func TestTUIMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUI{program: p}
	if err := w.Write(telemetry.MissionProgressSample{MissionID: "m1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := p.msgs[0].(sampleMsg); !ok {
		t.Fatalf("expected sampleMsg, got %T", p.msgs[0])
	}
	w.Notify(Notice{Message: "hello"})
	if _, ok := p.msgs[1].(noticeMsg); !ok {
		t.Fatalf("expected noticeMsg, got %T", p.msgs[1])
	}
	w.SetAdminStatus(true)
	if _, ok := p.msgs[2].(adminMsg); !ok {
		t.Fatalf("expected adminMsg, got %T", p.msgs[2])
	}
}

func testSnapshot() Snapshot {
	sel := backend.Mission{ID: "m2", Name: "South field", Status: telemetry.MissionActive, DroneName: "DJI-7"}
	return Snapshot{
		Missions: []backend.Mission{
			{ID: "m1", Name: "North field", Status: telemetry.MissionPlanned},
			sel,
		},
		Selected:   &sel,
		Subscribed: true,
	}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) (tuiModel, tea.Cmd) {
	t.Helper()
	mi, cmd := m.Update(msg)
	return mi.(tuiModel), cmd
}

func TestTUISnapshotAndSample(t *testing.T) {
	m := newTUIModel(&fakeControls{}, time.Second)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, snapshotMsg{testSnapshot()})

	if rows := m.table.Rows(); len(rows) != 2 || !strings.HasPrefix(rows[1][0], "▶") {
		t.Fatalf("rows = %v", rows)
	}
	if !strings.Contains(m.View(), "Waiting for telemetry") {
		t.Fatal("expected waiting hint before the first sample")
	}

	snap := testSnapshot()
	snap.FlightPath = &backend.FlightPath{MissionID: "m2", Waypoints: make([]backend.Waypoint, 12), TotalDistance: 2400}
	m, _ = update(t, m, snapshotMsg{snap})
	if view := m.View(); !strings.Contains(view, "path 12 waypoints, 2400m") {
		t.Fatalf("flight path not rendered:\n%s", view)
	}

	s := telemetry.MissionProgressSample{MissionID: "m2", ProgressPercentage: 42, BatteryLevel: 66, CurrentWaypointIndex: 8, Timestamp: time.Unix(0, 0).UTC()}
	m, _ = update(t, m, sampleMsg{s})
	view := m.View()
	if !strings.Contains(view, "waypoint 8") || !strings.Contains(view, "66%") {
		t.Fatalf("sample not rendered:\n%s", view)
	}

	other := telemetry.MissionProgressSample{MissionID: "m1", CurrentWaypointIndex: 3}
	m, _ = update(t, m, sampleMsg{other})
	if m.latest.MissionID != "m2" {
		t.Fatal("samples of other missions must be ignored")
	}
}

func TestTUIKeysDriveController(t *testing.T) {
	ctrl := &fakeControls{snap: testSnapshot()}
	m := newTUIModel(ctrl, time.Second)
	m, _ = update(t, m, snapshotMsg{ctrl.snap})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if cmd == nil {
		t.Fatal("expected a command for pause")
	}
	if msg, ok := cmd().(snapshotMsg); !ok || msg.Selected.ID != "m2" {
		t.Fatalf("unexpected message %T", msg)
	}
	if len(ctrl.actions) != 1 || ctrl.actions[0] != backend.ActionPause || ctrl.targets[0] != "m2" {
		t.Fatalf("actions = %v on %v", ctrl.actions, ctrl.targets)
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	cmd()
	if ctrl.selected != "m1" {
		t.Fatalf("enter selected %q, want the highlighted m1", ctrl.selected)
	}

	ctrl.err = errors.New("Mission is not active")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	msg := cmd()
	em, ok := msg.(errMsg)
	if !ok {
		t.Fatalf("expected errMsg, got %T", msg)
	}
	m, _ = update(t, m, em)
	if !strings.Contains(m.View(), "Mission is not active") {
		t.Fatal("error not shown")
	}
}

func TestTUINoticeWrapToggle(t *testing.T) {
	m := newTUIModel(&fakeControls{}, time.Second)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 40})
	m, _ = update(t, m, noticeMsg{Notice{Level: NoticeInfo, Message: "one two three four five six seven", At: time.Unix(0, 0)}})
	wrapped := strings.Count(m.vp.View(), "\n")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	if m.wrap {
		t.Fatal("wrap should be toggled off")
	}
	if m.logs[0] == "" {
		t.Fatal("notice not logged")
	}
	if wrapped == 0 {
		t.Fatal("expected a wrapped viewport")
	}
}

func TestTUIQuit(t *testing.T) {
	m := newTUIModel(&fakeControls{}, time.Second)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}
