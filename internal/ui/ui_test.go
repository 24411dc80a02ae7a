package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

func sampleReport(tick int64) *dispatch.Report {
	harvest := tasks.New(tasks.KindHarvest, 1, world.Position{X: 10, Y: 10, RoomName: "W1N1"}, "src0")
	upgrade := tasks.New(tasks.KindUpgrade, 3, world.Position{X: 40, Y: 40, RoomName: "W1N1"}, "ctl0")
	gone := tasks.New(tasks.KindFillContainer, 2, world.Position{X: 11, Y: 11, RoomName: "W1N1"}, "box9")

	return &dispatch.Report{
		Tick:     tick,
		Duration: 3 * time.Millisecond,
		Added:    []tasks.Task{harvest, upgrade},
		Evicted:  []tasks.Task{gone},
		Skipped:  1,
		Tasks:    2,
		Spawn:    &dispatch.SpawnReport{Spawn: "Spawn1", Name: "Creep9", Result: world.OK},
		Removed:  []string{"Creep3"},
		Creeps: []dispatch.CreepReport{
			{Name: "Creep1", Working: true, Task: &harvest, Steps: []dispatch.Step{
				{Action: dispatch.ActionHarvest, Target: "src0", Result: world.ErrNotInRange},
				{Action: dispatch.ActionMove, Target: "src0", Result: world.OK},
			}},
			{Name: "Creep2", Working: true, Task: &upgrade, Steps: []dispatch.Step{
				{Action: dispatch.ActionUpgrade, Target: "ctl0", Result: world.ErrNotEnoughResources},
			}},
			{Name: "Creep4", Working: false},
		},
	}
}

func TestNew(t *testing.T) {
	m := New(nil)
	if m == nil {
		t.Fatal("New() returned nil")
		return
	}

	if m.width != 80 {
		t.Errorf("expected width 80, got %d", m.width)
	}
	if m.height != 24 {
		t.Errorf("expected height 24, got %d", m.height)
	}
	if m.activePanel != PanelColony {
		t.Errorf("expected activePanel PanelColony, got %d", m.activePanel)
	}
	if m.link != LinkConnecting {
		t.Errorf("expected link LinkConnecting, got %d", m.link)
	}
	if m.styles == nil {
		t.Error("expected styles to be initialized")
	}
}

func TestApplyReport(t *testing.T) {
	m := New(nil)
	m.ApplyReport(sampleReport(10))

	if m.link != LinkLive {
		t.Errorf("link = %v, want Live", m.link)
	}
	if m.currentTick() != 10 {
		t.Errorf("currentTick() = %d, want 10", m.currentTick())
	}
	if len(m.creeps) != 3 {
		t.Fatalf("creeps = %d, want 3", len(m.creeps))
	}

	// spawn + 2 added + 1 evicted + skipped + removed + failed upgrade
	if len(m.events) != 7 {
		for _, e := range m.events {
			t.Logf("%s %s", e.Level, e.Message)
		}
		t.Fatalf("events = %d, want 7", len(m.events))
	}
	last := m.events[len(m.events)-1]
	if last.Level != "error" || !strings.Contains(last.Message, "Creep2") {
		t.Errorf("last event = %+v, want Creep2 error", last)
	}
	if m.eventScroll != len(m.events)-1 {
		t.Errorf("eventScroll = %d, want follow to bottom", m.eventScroll)
	}
}

func TestApplyReportIgnoresStaleTicks(t *testing.T) {
	m := New(nil)
	m.ApplyReport(sampleReport(10))
	events := len(m.events)

	m.ApplyReport(sampleReport(10))
	m.ApplyReport(sampleReport(9))
	m.ApplyReport(nil)

	if len(m.events) != events || m.ticksSeen != 1 {
		t.Errorf("stale reports applied: events %d -> %d, ticksSeen %d", events, len(m.events), m.ticksSeen)
	}
}

func TestApplyReportClampsSelection(t *testing.T) {
	m := New(nil)
	m.ApplyReport(sampleReport(1))
	m.selectedCreep = 2

	m.ApplyReport(&dispatch.Report{Tick: 2, Creeps: []dispatch.CreepReport{{Name: "Creep1"}}})
	if m.selectedCreep != 0 {
		t.Errorf("selectedCreep = %d, want 0", m.selectedCreep)
	}

	m.ApplyReport(&dispatch.Report{Tick: 3})
	if m.selectedCreep != 0 || len(m.creeps) != 0 {
		t.Errorf("selectedCreep = %d creeps = %d, want 0/0", m.selectedCreep, len(m.creeps))
	}
}

func TestEventLogIsCapped(t *testing.T) {
	m := New(nil)
	for i := 0; i < maxEvents+20; i++ {
		m.addEvent(int64(i), "info", "x")
	}
	if len(m.events) != maxEvents {
		t.Errorf("events = %d, want %d", len(m.events), maxEvents)
	}
	if m.events[0].Tick != 20 {
		t.Errorf("oldest event tick = %d, want 20", m.events[0].Tick)
	}
	if m.eventScroll != maxEvents-1 {
		t.Errorf("eventScroll = %d, want %d", m.eventScroll, maxEvents-1)
	}
}

func TestInit(t *testing.T) {
	m := New(nil)
	if cmd := m.Init(); cmd == nil {
		t.Error("Init() should return a command")
	}
}

func TestUpdateReportMsg(t *testing.T) {
	m := New(nil)
	model, cmd := m.Update(ReportMsg{Report: sampleReport(5)})
	updated := model.(Model)

	if updated.currentTick() != 5 {
		t.Errorf("tick = %d, want 5", updated.currentTick())
	}
	if cmd != nil {
		t.Error("expected no follow-up command without a source")
	}
}

func TestUpdateDisconnected(t *testing.T) {
	m := New(nil)
	model, _ := m.Update(DisconnectedMsg{Err: errors.New("eof")})
	updated := model.(Model)

	if updated.link != LinkLost {
		t.Errorf("link = %v, want Lost", updated.link)
	}
	if len(updated.events) != 1 || updated.events[0].Level != "error" {
		t.Errorf("events = %+v", updated.events)
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m := New(nil)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := model.(Model)

	if updated.width != 120 {
		t.Errorf("expected width 120, got %d", updated.width)
	}
	if updated.height != 40 {
		t.Errorf("expected height 40, got %d", updated.height)
	}
}

func TestKeyHandlingQuit(t *testing.T) {
	m := New(nil)
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	updated := model.(Model)

	if !updated.quitting {
		t.Error("expected quitting to be true after 'q' key")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestKeyHandlingPanelSwitch(t *testing.T) {
	m := New(nil)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated := model.(Model)
	if updated.activePanel != PanelCreeps {
		t.Errorf("expected PanelCreeps after tab, got %d", updated.activePanel)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated = model.(Model)
	if updated.activePanel != PanelEvents {
		t.Errorf("expected PanelEvents after second tab, got %d", updated.activePanel)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated = model.(Model)
	if updated.activePanel != PanelColony {
		t.Errorf("expected PanelColony after third tab, got %d", updated.activePanel)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	updated = model.(Model)
	if updated.activePanel != PanelEvents {
		t.Errorf("expected PanelEvents after shift+tab, got %d", updated.activePanel)
	}
}

func TestView(t *testing.T) {
	m := New(nil)
	m.width, m.height = 120, 40
	m.ApplyReport(sampleReport(42))

	view := m.View()
	for _, want := range []string{"Colony", "Creeps", "Events", "42", "Creep1", "Creep9"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestViewBeforeFirstTick(t *testing.T) {
	m := New(nil)
	view := m.View()
	if !strings.Contains(view, "Waiting for first tick") {
		t.Error("View should say it is waiting")
	}
	if !strings.Contains(view, "No creeps") {
		t.Error("View should show an empty creep list")
	}
}

func TestViewWhenQuitting(t *testing.T) {
	m := New(nil)
	m.quitting = true
	if view := m.View(); view != "" {
		t.Error("View() should return empty string when quitting")
	}
}

func TestLinkStatusStrings(t *testing.T) {
	tests := []struct {
		status   LinkStatus
		expected string
	}{
		{LinkConnecting, "Connecting"},
		{LinkLive, "Live"},
		{LinkLost, "Lost"},
		{LinkStatus(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("LinkStatus(%d).String() = %s, want %s", tt.status, got, tt.expected)
		}
	}
}

func TestDescribeCreep(t *testing.T) {
	r := sampleReport(1)
	tests := []struct {
		creep dispatch.CreepReport
		want  string
	}{
		{r.Creeps[0], "harvest (move OK)"},
		{r.Creeps[2], "idle"},
		{dispatch.CreepReport{Name: "x", Working: true}, "idle"},
	}
	for _, tt := range tests {
		if got := describeCreep(tt.creep); got != tt.want {
			t.Errorf("describeCreep(%s) = %q, want %q", tt.creep.Name, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.duration); got != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, got, tt.expected)
		}
	}
}

func TestSpinner(t *testing.T) {
	m := New(nil)
	frames := []string{"|", "/", "-", "\\"}

	for i := 0; i < 8; i++ {
		m.progressTick = i
		if got := m.spinner(); got != frames[i%4] {
			t.Errorf("spinner at tick %d = %s, want %s", i, got, frames[i%4])
		}
	}
}

func TestHandleNavigation(t *testing.T) {
	m := New(nil)
	m.ApplyReport(sampleReport(1))
	m.activePanel = PanelCreeps

	result := m.handleDown()
	if result.selectedCreep != 1 {
		t.Errorf("expected selectedCreep 1 after down, got %d", result.selectedCreep)
	}

	result = result.handleUp()
	if result.selectedCreep != 0 {
		t.Errorf("expected selectedCreep 0 after up, got %d", result.selectedCreep)
	}

	result = result.handleEnd()
	if result.selectedCreep != 2 {
		t.Errorf("expected selectedCreep 2 after end, got %d", result.selectedCreep)
	}

	result = result.handleHome()
	if result.selectedCreep != 0 {
		t.Errorf("expected selectedCreep 0 after home, got %d", result.selectedCreep)
	}
}
