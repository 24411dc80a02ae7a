package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/db"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/sim"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Colony: config.ColonyConfig{
			Spawn:      "Home",
			MaxCreeps:  4,
			Body:       []string{"work", "work", "carry", "move"},
			NamePrefix: "Bee",
		},
		Tasks: config.TasksConfig{
			Priorities: map[string]int{"upgrade": 7},
		},
	}

	got := ConfigFrom(cfg)
	if got.Spawn != "Home" || got.MaxCreeps != 4 || got.NamePrefix != "Bee" {
		t.Errorf("ConfigFrom() = %+v", got)
	}
	if got.Role != DefaultRole {
		t.Errorf("Role = %q, want default %q", got.Role, DefaultRole)
	}
	if len(got.Body) != 4 {
		t.Errorf("Body = %v", got.Body)
	}
	if got.priority(tasks.KindUpgrade) != 7 || got.priority(tasks.KindHarvest) != 1 {
		t.Errorf("priorities = %v", got.Priorities)
	}
	if got.EvictStale {
		t.Error("EvictStale should follow the loaded config")
	}

	if def := ConfigFrom(nil); def.Spawn != DefaultSpawn || !def.EvictStale {
		t.Errorf("ConfigFrom(nil) = %+v, want defaults", def)
	}
}

func TestTickNilWorld(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig(), nil)
	if _, err := d.Tick(context.Background(), nil); !errors.Is(err, ErrNilWorld) {
		t.Errorf("Tick(nil) error = %v, want ErrNilWorld", err)
	}
}

func TestTickCancelledContext(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Tick(ctx, newRoom(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick() error = %v, want context.Canceled", err)
	}
}

func TestTickSpawnsCreep(t *testing.T) {
	w := newRoom(t)
	w.SetTime(17)
	var events []Event
	d, st := newTestDispatcher(t, DefaultConfig(), &events)

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	if report.Spawned() != "Creep17" {
		t.Errorf("Spawned() = %q, want Creep17 (spawn %+v)", report.Spawned(), report.Spawn)
	}
	mem, ok := st.Creep("Creep17")
	if !ok {
		t.Fatal("memory not written at spawn time")
	}
	if mem.Role != "worker" || mem.Room != testRoom || mem.Working {
		t.Errorf("memory = %+v", mem)
	}
	if len(report.Removed) != 0 {
		t.Errorf("memory of the creep being spawned was removed: %v", report.Removed)
	}
	if st.Tick() != 17 {
		t.Errorf("state tick = %d, want 17", st.Tick())
	}

	var spawned, ended bool
	for _, e := range events {
		switch e.Type {
		case EventCreepSpawned:
			spawned = e.Creep == "Creep17"
		case EventTickEnd:
			ended = e.Report == report
		}
	}
	if !spawned || !ended {
		t.Errorf("events missing: spawned=%v ended=%v", spawned, ended)
	}
}

func TestTickRespectsMaxCreeps(t *testing.T) {
	w := newRoom(t)
	w.AddCreep("A", "", at(20, 20), workerBody, 0)
	w.AddCreep("B", "", at(21, 20), workerBody, 0)
	d, _ := newTestDispatcher(t, DefaultConfig(), nil)

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if report.Spawn != nil {
		t.Errorf("spawn attempted at the population cap: %+v", report.Spawn)
	}
}

func TestTickScenarioTasks(t *testing.T) {
	w := newRoom(t)
	d, _ := newTestDispatcher(t, DefaultConfig(), nil)

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Added) != 2 || report.Tasks != 2 {
		t.Errorf("added %d, tasks %d; want 2 and 2", len(report.Added), report.Tasks)
	}
	list := d.Store().List()
	if list[0].Kind != tasks.KindHarvest || list[1].Kind != tasks.KindUpgrade {
		t.Errorf("order = %v, want harvest then upgrade", list)
	}

	again, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Added) != 0 || again.Tasks != 2 {
		t.Errorf("second tick added %v, tasks %d", again.Added, again.Tasks)
	}
}

func TestTickDropsMalformedRecords(t *testing.T) {
	w := newRoom(t)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)
	st.AppendTaskRecord("{broken")

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	for _, r := range st.TaskRecords() {
		if r == "{broken" {
			t.Error("malformed record survived prioritizing")
		}
	}
}

func TestTickCleansMemory(t *testing.T) {
	w := newRoom(t)
	w.AddCreep("Alive", "", at(20, 20), workerBody, 0)
	w.AddCreep("Other", "", at(21, 20), workerBody, 0)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)
	st.SetCreep("Alive", state.CreepMemory{Role: "worker", Room: testRoom})
	st.SetCreep("Ghost", state.CreepMemory{Role: "worker", Room: testRoom})

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "Ghost" {
		t.Errorf("Removed = %v, want [Ghost]", report.Removed)
	}
	if _, ok := st.Creep("Ghost"); ok {
		t.Error("Ghost memory still present")
	}
	if _, ok := st.Creep("Alive"); !ok {
		t.Error("Alive memory removed")
	}
}

func TestTickCreepDiesBetweenTicks(t *testing.T) {
	w := newRoom(t)
	w.AddCreep("A", "", at(20, 20), workerBody, 0)
	w.AddCreep("B", "", at(21, 20), workerBody, 0)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)

	if _, err := d.Tick(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Creep("B"); !ok {
		t.Fatal("B should have memory after its first tick")
	}

	w.RemoveCreep("B")
	w.Advance()
	if _, err := d.Tick(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Creep("B"); ok {
		t.Error("memory of dead creep kept after the next tick")
	}
}

func TestTickAdoptsCreepWithoutMemory(t *testing.T) {
	w := newRoom(t)
	w.AddCreep("Stray", "", at(11, 10), workerBody, 0)
	w.AddCreep("Other", "", at(30, 30), workerBody, 0)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	mem, ok := st.Creep("Stray")
	if !ok || mem.Role != DefaultRole || mem.Room != testRoom {
		t.Fatalf("Stray memory = %+v, %v", mem, ok)
	}

	stray := report.Creeps[1]
	if stray.Name != "Stray" {
		t.Fatalf("creeps not ordered by name: %v", report.Creeps)
	}
	if !stray.Working || stray.Task == nil || stray.Task.Kind != tasks.KindHarvest {
		t.Errorf("Stray = %+v, want working on harvest", stray)
	}
	if len(stray.Steps) != 1 || stray.Steps[0].Action != ActionHarvest || stray.Steps[0].Result != world.OK {
		t.Errorf("Stray steps = %v", stray.Steps)
	}
}

func TestTickIdleCreepMovesToSpawn(t *testing.T) {
	w := sim.New()
	w.AddSpawn("spawn0", "Spawn1", at(25, 25), 0)
	c := w.AddCreep("Lonely", "", at(20, 20), workerBody, 10)
	w.AddCreep("Other", "", at(30, 30), workerBody, 0)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)
	st.SetCreep("Lonely", state.CreepMemory{Role: "worker", Room: testRoom})

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	lonely := report.Creeps[0]
	if lonely.Task != nil || !lonely.Idle() {
		t.Errorf("Lonely = %+v, want idle without a task", lonely)
	}
	if len(lonely.Steps) != 1 || lonely.Steps[0] != (Step{ActionMove, "Spawn1", world.OK}) {
		t.Errorf("steps = %v, want a move to Spawn1", lonely.Steps)
	}
	if c.Pos() != at(21, 21) {
		t.Errorf("pos = %v", c.Pos())
	}
}

func TestTickNonWorkerRoleStaysIdle(t *testing.T) {
	w := newRoom(t)
	w.AddCreep("Hauler", "", at(11, 10), workerBody, 0)
	w.AddCreep("Other", "", at(30, 30), workerBody, 0)
	d, st := newTestDispatcher(t, DefaultConfig(), nil)
	st.SetCreep("Hauler", state.CreepMemory{Role: "hauler", Room: testRoom})

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if report.Creeps[0].Task != nil {
		t.Errorf("hauler got a task: %v", report.Creeps[0].Task)
	}
}

func TestTickMissingSpawn(t *testing.T) {
	w := sim.New()
	w.AddSource("src0", at(10, 10), 100)
	w.AddCreep("A", "", at(11, 10), workerBody, 0)
	d, _ := newTestDispatcher(t, DefaultConfig(), nil)

	report, err := d.Tick(context.Background(), w)
	if err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if report.Spawn != nil || len(report.Added) != 0 {
		t.Errorf("report = %+v, want no spawn and no new tasks", report)
	}
}

func TestReportRecord(t *testing.T) {
	r := &Report{
		ID:      "abc",
		Tick:    5,
		Added:   []tasks.Task{{}, {}},
		Tasks:   3,
		Spawn:   &SpawnReport{Spawn: "Spawn1", Name: "Creep5", Result: world.OK},
		Removed: []string{"A", "B"},
		Creeps:  []CreepReport{{Name: "X"}},
	}
	rec := r.Record()
	if rec.ID != "abc" || rec.Tick != 5 || rec.Added != 2 || rec.Tasks != 3 || rec.Creeps != 1 {
		t.Errorf("Record() = %+v", rec)
	}
	if rec.Spawned != "Creep5" || rec.Removed != "A,B" {
		t.Errorf("Record() spawned=%q removed=%q", rec.Spawned, rec.Removed)
	}

	r.Spawn.Result = world.ErrBusy
	if r.Record().Spawned != "" {
		t.Error("failed spawn recorded as spawned")
	}
}

func TestRunPersists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	database, err := db.Open(filepath.Join(home, "hivemind.db"))
	if err != nil {
		t.Fatalf("db.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	st, err := state.New(database)
	if err != nil {
		t.Fatal(err)
	}
	d := New(st, WithLogger(logging.Nop()))
	w := newRoom(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.Run(ctx, w); err != nil {
			t.Fatalf("Run() tick %d error: %v", w.Time(), err)
		}
		w.Advance()
	}

	reloaded, err := state.New(database)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Tick() != 2 {
		t.Errorf("persisted tick = %d, want 2", reloaded.Tick())
	}
	if got := len(reloaded.TaskRecords()); got != 2 {
		t.Errorf("persisted %d task records, want 2", got)
	}
	if _, ok := reloaded.Creep("Creep0"); !ok {
		t.Error("spawned creep memory not persisted")
	}

	history, err := reloaded.TickHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 || history[0].Tick != 2 {
		t.Errorf("history = %+v", history)
	}
	if history[2].Spawned != "Creep0" {
		t.Errorf("first tick spawned = %q, want Creep0", history[2].Spawned)
	}
}

func TestSimulationDeliversEnergy(t *testing.T) {
	w := sim.Generate(sim.GenConfig{Seed: 7, Room: testRoom})
	d, st := newTestDispatcher(t, DefaultConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		if _, err := d.Tick(ctx, w); err != nil {
			t.Fatalf("tick %d: %v", w.Time(), err)
		}
		w.Advance()
	}

	if n := len(w.Creeps()); n == 0 {
		t.Fatal("no creeps hatched")
	}
	for _, c := range w.Creeps() {
		if _, ok := st.Creep(c.Name()); !ok {
			t.Errorf("creep %s has no memory", c.Name())
		}
	}

	room := w.Room(testRoom)
	stored := 0
	for _, s := range room.Structures() {
		if s.StructureType() == world.StructureContainer {
			stored += s.Store().Used
		}
	}
	if stored == 0 {
		t.Error("no energy reached the container after 200 ticks")
	}
}
