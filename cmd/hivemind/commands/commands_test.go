package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/db"
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/sim"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/stats"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

func newTestDispatcher(st *state.State) *dispatch.Dispatcher {
	return dispatch.New(st, dispatch.WithLogger(logging.Nop()))
}

func TestGenerateDefaultConfigLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, config.ProjectConfigName), []byte(generateDefaultConfig()), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFromPaths(dir, "")
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.Colony.Spawn != "Spawn1" || cfg.Colony.MaxCreeps != 2 {
		t.Errorf("colony = %+v", cfg.Colony)
	}
	if len(cfg.Colony.Body) != 3 || cfg.Colony.Body[0] != "work" {
		t.Errorf("body = %v", cfg.Colony.Body)
	}
	if cfg.Schedule.Interval != "1s" || cfg.Observer.Addr != "127.0.0.1:7420" {
		t.Errorf("schedule = %+v observer = %+v", cfg.Schedule, cfg.Observer)
	}
	if !strings.HasPrefix(cfg.ExpandedWorldPath(), os.Getenv("HOME")) {
		t.Errorf("world path %q not expanded under HOME", cfg.ExpandedWorldPath())
	}
}

func TestRunTicks(t *testing.T) {
	st := state.NewVolatile()
	w := sim.Generate(sim.GenConfig{Seed: 3})
	var out bytes.Buffer

	if err := runTicks(context.Background(), newTestDispatcher(st), w, 12, &out, false); err != nil {
		t.Fatalf("runTicks() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 12 {
		t.Fatalf("got %d lines, want 12:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "tick 0:") || !strings.Contains(lines[0], "spawned Creep0") {
		t.Errorf("first line = %q", lines[0])
	}
	if w.Time() != 12 {
		t.Errorf("world time = %d, want 12", w.Time())
	}
	if st.Tick() != 11 {
		t.Errorf("memory tick = %d, want 11", st.Tick())
	}
	if _, ok := w.Creep("Creep0"); !ok {
		t.Error("Creep0 should have hatched within 12 ticks")
	}
}

func TestRunTicksJSON(t *testing.T) {
	w := sim.Generate(sim.GenConfig{Seed: 3})
	var out bytes.Buffer

	if err := runTicks(context.Background(), newTestDispatcher(state.NewVolatile()), w, 2, &out, true); err != nil {
		t.Fatalf("runTicks() error: %v", err)
	}

	dec := json.NewDecoder(&out)
	var first dispatch.Report
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decoding first report: %v", err)
	}
	if first.Tick != 0 || first.Spawned() != "Creep0" {
		t.Errorf("first report = %+v", first)
	}
	if len(first.Added) == 0 {
		t.Error("first tick should add tasks for the generated room")
	}
}

func TestRunTicksRejectsZero(t *testing.T) {
	w := sim.Generate(sim.GenConfig{Seed: 3})
	if err := runTicks(context.Background(), newTestDispatcher(state.NewVolatile()), w, 0, &bytes.Buffer{}, false); err == nil {
		t.Error("runTicks(0) should fail")
	}
}

func TestSummarizeReport(t *testing.T) {
	harvest := tasks.New(tasks.KindHarvest, 1, world.NewPosition(1, 1, "W1N1"), "src0")
	r := &dispatch.Report{
		Tick:    5,
		Tasks:   3,
		Added:   []tasks.Task{harvest},
		Skipped: 2,
		Spawn:   &dispatch.SpawnReport{Spawn: "Spawn1", Name: "Creep5", Result: world.ErrNotEnoughResources},
		Removed: []string{"Creep1", "Creep2"},
		Creeps: []dispatch.CreepReport{
			{Name: "Creep3", Working: true, Task: &harvest},
			{Name: "Creep4"},
		},
	}

	got := summarizeReport(r)
	for _, want := range []string{"tick 5:", "2 creeps (1 working)", "3 tasks (+1 -0)", "2 malformed dropped", "spawn ERR_NOT_ENOUGH_RESOURCES", "forgot Creep1 Creep2"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}
}

func TestLoadWorld(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Colony: config.ColonyConfig{Spawn: "Home"},
		World:  config.WorldConfig{Path: filepath.Join(dir, "world.yaml"), Seed: 7, Generate: true, Room: "E5S5"},
	}

	w, err := loadWorld(cfg)
	if err != nil {
		t.Fatalf("loadWorld() error: %v", err)
	}
	if w.Spawn("Home") == nil {
		t.Error("generated world should use the configured spawn name")
	}
	if _, err := os.Stat(cfg.World.Path); err != nil {
		t.Fatalf("generated world not saved: %v", err)
	}

	w.SetTime(99)
	if err := w.Save(cfg.World.Path); err != nil {
		t.Fatal(err)
	}
	again, err := loadWorld(cfg)
	if err != nil {
		t.Fatalf("second loadWorld() error: %v", err)
	}
	if again.Time() != 99 {
		t.Errorf("existing world not loaded: time %d", again.Time())
	}
}

func TestLoadWorldMissingWithoutGenerate(t *testing.T) {
	cfg := &config.Config{World: config.WorldConfig{Path: filepath.Join(t.TempDir(), "none.yaml")}}
	if _, err := loadWorld(cfg); err == nil || !strings.Contains(err.Error(), "world generate") {
		t.Errorf("loadWorld() error = %v, want hint to generate", err)
	}
}

func TestDaemonSchedule(t *testing.T) {
	cfg := &config.Config{}
	if sc := daemonSchedule(cfg); sc.Interval != defaultTickInterval {
		t.Errorf("empty schedule interval = %q, want %q", sc.Interval, defaultTickInterval)
	}

	cfg.Schedule.Cron = "*/2 * * * *"
	if sc := daemonSchedule(cfg); sc.Interval != "" || sc.Cron != "*/2 * * * *" {
		t.Errorf("cron schedule changed: %+v", sc)
	}
}

func TestColonyStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	c := &colony{
		dispatch:  newTestDispatcher(state.NewVolatile()),
		world:     sim.Generate(sim.GenConfig{Seed: 11}),
		worldPath: path,
		log:       logging.Nop(),
	}

	for i := 0; i < 3; i++ {
		if err := c.step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	saved, err := sim.Load(path)
	if err != nil {
		t.Fatalf("loading saved world: %v", err)
	}
	if saved.Time() != 3 {
		t.Errorf("saved time = %d, want 3", saved.Time())
	}
}

func TestPrintTaskList(t *testing.T) {
	st := state.NewVolatile()
	store := tasks.NewStore(st).WithLogger(logging.Nop())
	_ = store.Add(tasks.New(tasks.KindUpgrade, 3, world.NewPosition(40, 40, "W1N1"), "ctl0"))
	_ = store.Add(tasks.New(tasks.KindHarvest, 1, world.NewPosition(10, 10, "W1N1"), "src0"))
	st.AppendTaskRecord("{broken")

	var out bytes.Buffer
	printTaskList(&out, store, 0)
	got := out.String()
	for _, want := range []string{"upgrade", "harvest", "ctl0", "2 of 2 tasks", "1 malformed records"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	printTaskList(&out, store, tasks.KindHarvest)
	if strings.Contains(out.String(), "ctl0") || !strings.Contains(out.String(), "1 of 2 tasks") {
		t.Errorf("filtered output:\n%s", out.String())
	}

	out.Reset()
	printTaskList(&out, tasks.NewStore(state.NewVolatile()), 0)
	if !strings.Contains(out.String(), "No tasks.") {
		t.Errorf("empty output = %q", out.String())
	}
}

func TestPrintTaskListWarnsOncePerMalformedRecord(t *testing.T) {
	st := state.NewVolatile()
	var logs bytes.Buffer
	store := tasks.NewStore(st).WithLogger(logging.NewWriter(&logs, "warn"))
	_ = store.Add(tasks.New(tasks.KindHarvest, 1, world.NewPosition(10, 10, "W1N1"), "src0"))
	st.AppendTaskRecord("{broken")

	var out bytes.Buffer
	printTaskList(&out, store, 0)
	if n := strings.Count(logs.String(), "skipping malformed task record"); n != 1 {
		t.Errorf("malformed warnings = %d, want 1:\n%s", n, logs.String())
	}
}

func TestPrintCreeps(t *testing.T) {
	w := sim.New()
	w.AddRoom("W1N1")
	w.AddCreep("Creep1", "c1", world.NewPosition(5, 5, "W1N1"), []string{"work", "carry", "move"}, 20)

	st := state.NewVolatile()
	st.SetCreep("Creep1", state.CreepMemory{Role: "worker", Room: "W1N1", Working: true})
	st.SetCreep("Ghost", state.CreepMemory{Role: "worker", Room: "W1N1"})

	var out bytes.Buffer
	printCreeps(&out, w, st)
	got := out.String()
	for _, want := range []string{"Creep1", "20/50", "true", "Ghost", "(gone)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderStatus(t *testing.T) {
	st := state.NewVolatile()
	st.SetTick(77)
	store := tasks.NewStore(st).WithLogger(logging.Nop())
	_ = store.Add(tasks.New(tasks.KindHarvest, 1, world.NewPosition(10, 10, "W1N1"), "src0"))
	st.SetCreep("Creep1", state.CreepMemory{Role: "worker", Room: "W1N1", Working: true})

	got := renderStatus(statusView{
		State: st,
		History: []state.TickRecord{
			{Tick: 77, StartedAt: time.Now(), Duration: 4, Creeps: 1, Tasks: 1, Added: 1, Spawned: "Creep70"},
		},
		Storage: &db.Info{Path: "/tmp/hivemind.db", SchemaVersion: 3, SizeBytes: 3 << 10, HistoryRows: 12},
	}, true)

	for _, want := range []string{"Hivemind Status", "stopped", "77", "harvest 1, fill_container 0, upgrade 0", "1 in memory, 1 working", "tick 77", "spawned Creep70", "/tmp/hivemind.db (schema v3, 3.0 KiB, 12 history rows)"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}

	empty := renderStatus(statusView{State: state.NewVolatile()}, true)
	if strings.Contains(empty, "Storage") {
		t.Errorf("status without storage info shows a storage line:\n%s", empty)
	}
	if !strings.Contains(empty, "No tick history.") {
		t.Errorf("empty status:\n%s", empty)
	}
}

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"warn","time":"2026-01-02T10:11:12Z","component":"dispatch","tick":42,"creep":"Creep7","message":"no path"}`
	got := formatLogLine(line)
	for _, want := range []string{"WRN", "[dispatch]", "t=42", "Creep7:", "no path"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatLogLine() = %q, missing %q", got, want)
		}
	}

	if got := formatLogLine("plain text"); got != "plain text" {
		t.Errorf("non-JSON line changed: %q", got)
	}
}

func TestFormatLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DBG"},
		{"info", "INF"},
		{"warn", "WRN"},
		{"error", "ERR"},
		{"fatal", "FAT"},
		{"x", "X"},
	}
	for _, tt := range tests {
		if got := formatLogLevel(tt.level); got != tt.want {
			t.Errorf("formatLogLevel(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestReadLastLines(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "hivemind-2026-01-01.log")
	newer := filepath.Join(dir, "hivemind-2026-01-02.log")
	if err := os.WriteFile(older, []byte("a\nb\nc\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("d\ne\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got := readLastLines([]string{newer, older}, 3)
	if strings.Join(got, "") != "cde" {
		t.Errorf("readLastLines() = %v, want [c d e]", got)
	}
}

func TestShowLogsMissingDir(t *testing.T) {
	var out bytes.Buffer
	if err := showLogs(&out, filepath.Join(t.TempDir(), "nope"), 10); err != nil {
		t.Fatalf("showLogs() error: %v", err)
	}
	if !strings.Contains(out.String(), "No log files found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRenderStatsHuman(t *testing.T) {
	var out bytes.Buffer
	renderStatsHuman(&out, &stats.StatsResult{})
	if !strings.Contains(out.String(), "No tick history yet.") {
		t.Errorf("empty stats output = %q", out.String())
	}

	out.Reset()
	renderStatsHuman(&out, stats.Aggregate([]state.TickRecord{
		{Tick: 3, Creeps: 2, Tasks: 3, Added: 3, Spawned: "Creep3", Duration: 5},
		{Tick: 4, Creeps: 2, Tasks: 3, Skipped: 1, Duration: 7},
	}))
	for _, want := range []string{"Ticks:      2 (3..4)", "avg 6ms, max 7ms", "peak 2", "Spawned:    1 (Creep3)", "+3 added", "1 records dropped"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stats output missing %q:\n%s", want, out.String())
		}
	}
}
