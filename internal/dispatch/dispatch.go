// Package dispatch runs the colony for one tick: it reconciles the task list
// against the world, spawns creeps, assigns tasks and drives every creep one
// step, then drops memory of creeps that are gone.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

// Defaults for a colony.
const (
	DefaultSpawn      = "Spawn1"
	DefaultMaxCreeps  = 2
	DefaultRole       = tasks.WorkerRole
	DefaultNamePrefix = "Creep"
)

// DefaultBody is the body of a new creep.
var DefaultBody = []string{"work", "carry", "move"}

// ErrNilWorld is returned when a tick is run without a world.
var ErrNilWorld = errors.New("dispatch: world is nil")

// Config holds dispatcher configuration.
type Config struct {
	Spawn      string             // Spawn used for spawning and as the idle rally point
	MaxCreeps  int                // Population cap
	Role       string             // Role written into new and adopted creep memory
	Body       []string           // Body of new creeps
	NamePrefix string             // New creeps are named prefix + tick
	Priorities map[tasks.Kind]int // Overrides of tasks.Kind.DefaultPriority
	EvictStale bool               // Drop tasks whose target no longer resolves
}

// DefaultConfig returns default dispatcher config.
func DefaultConfig() Config {
	return Config{
		Spawn:      DefaultSpawn,
		MaxCreeps:  DefaultMaxCreeps,
		Role:       DefaultRole,
		Body:       slices.Clone(DefaultBody),
		NamePrefix: DefaultNamePrefix,
		EvictStale: true,
	}
}

// ConfigFrom maps loaded configuration onto dispatcher config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.Colony.Spawn != "" {
		c.Spawn = cfg.Colony.Spawn
	}
	c.MaxCreeps = cfg.Colony.MaxCreeps
	if cfg.Colony.Role != "" {
		c.Role = cfg.Colony.Role
	}
	if len(cfg.Colony.Body) > 0 {
		c.Body = slices.Clone(cfg.Colony.Body)
	}
	if cfg.Colony.NamePrefix != "" {
		c.NamePrefix = cfg.Colony.NamePrefix
	}
	c.Priorities = make(map[tasks.Kind]int, len(tasks.Kinds))
	for _, k := range tasks.Kinds {
		c.Priorities[k] = cfg.TaskPriority(k.String(), k.DefaultPriority())
	}
	c.EvictStale = cfg.Tasks.EvictStale
	return c
}

func (c Config) priority(k tasks.Kind) int {
	if p, ok := c.Priorities[k]; ok {
		return p
	}
	return k.DefaultPriority()
}

// Dispatcher runs colony ticks against persisted memory.
type Dispatcher struct {
	state        *state.State
	store        *tasks.Store
	config       Config
	logger       *logging.Logger
	eventHandler EventHandler // optional callback for real-time events
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig sets dispatcher configuration.
func WithConfig(c Config) Option {
	return func(d *Dispatcher) {
		d.config = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithEventHandler sets an optional callback for real-time dispatcher events.
func WithEventHandler(h EventHandler) Option {
	return func(d *Dispatcher) {
		d.eventHandler = h
	}
}

// New creates a dispatcher over st.
func New(st *state.State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  st,
		config: DefaultConfig(),
		logger: logging.Component("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.store = tasks.NewStore(st).WithLogger(d.logger.WithComponent("tasks"))
	return d
}

// Store returns the task store.
func (d *Dispatcher) Store() *tasks.Store {
	return d.store
}

// emit sends an event to the registered handler, if any.
func (d *Dispatcher) emit(e Event) {
	if d.eventHandler != nil {
		e.Time = time.Now()
		d.eventHandler(e)
	}
}

// Run loads memory, runs one tick, saves memory and records the tick in the
// history.
func (d *Dispatcher) Run(ctx context.Context, w world.World) (*Report, error) {
	if err := d.state.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}

	report, err := d.Tick(ctx, w)
	if err != nil {
		return nil, err
	}

	if err := d.state.Save(ctx); err != nil {
		return report, fmt.Errorf("saving memory: %w", err)
	}
	if err := d.state.AddTickRecord(ctx, report.Record()); err != nil {
		d.logger.Warnf("recording tick %d: %v", report.Tick, err)
	}
	return report, nil
}

// Tick runs one tick against in-memory state. Nothing is persisted.
func (d *Dispatcher) Tick(ctx context.Context, w world.World) (*Report, error) {
	if w == nil {
		return nil, ErrNilWorld
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	tick := w.Time()
	log := d.logger.WithTick(tick)
	report := &Report{
		ID:        uuid.NewString(),
		Tick:      tick,
		StartedAt: start,
		Creeps:    make([]CreepReport, 0),
	}

	log.Debug("tick start")
	d.emit(Event{Type: EventTickStart, Tick: tick})

	spawn := w.Spawn(d.config.Spawn)
	if spawn == nil {
		log.Warnf("spawn %s not found", d.config.Spawn)
	}

	creeps := w.Creeps()
	if spawn != nil && len(creeps) < d.config.MaxCreeps {
		report.Spawn = d.spawnCreep(spawn, tick, log)
	}

	var room world.Room
	if spawn != nil {
		room = w.Room(spawn.Pos().RoomName)
	}
	rec, err := Reconcile(w, room, d.store, d.config)
	if err != nil {
		return nil, fmt.Errorf("reconciling tasks: %w", err)
	}
	report.Added, report.Evicted = rec.Added, rec.Evicted
	for i := range rec.Evicted {
		log.InfoCtx("evicted task", map[string]any{"kind": rec.Evicted[i].Kind.String(), "id": rec.Evicted[i].ID})
		d.emit(Event{Type: EventTaskEvicted, Tick: tick, Task: &rec.Evicted[i]})
	}
	for i := range rec.Added {
		log.InfoCtx("added task", map[string]any{"kind": rec.Added[i].Kind.String(), "id": rec.Added[i].ID})
		d.emit(Event{Type: EventTaskAdded, Tick: tick, Task: &rec.Added[i]})
	}

	skipped, err := d.store.Prioritize()
	if err != nil {
		return nil, fmt.Errorf("prioritizing tasks: %w", err)
	}
	report.Skipped = skipped
	report.Tasks = len(d.store.List())

	for _, creep := range creeps {
		outcome := d.runCreep(w, creep, spawn, log.WithCreep(creep.Name()))
		report.Creeps = append(report.Creeps, outcome)
		d.emit(Event{Type: EventCreepAction, Tick: tick, Creep: outcome.Name, Outcome: &outcome})
	}

	report.Removed = d.cleanupMemory(creeps, spawn)
	for _, name := range report.Removed {
		log.Infof("removed memory of %s", name)
		d.emit(Event{Type: EventMemoryRemoved, Tick: tick, Creep: name})
	}

	d.state.SetTick(tick)
	report.Duration = time.Since(start)

	log.InfoCtx("tick complete", map[string]any{
		"creeps":   len(report.Creeps),
		"tasks":    report.Tasks,
		"added":    len(report.Added),
		"evicted":  len(report.Evicted),
		"duration": report.Duration.String(),
	})
	d.emit(Event{Type: EventTickEnd, Tick: tick, Report: report})
	return report, nil
}

func (d *Dispatcher) spawnCreep(spawn world.Spawn, tick int64, log *logging.Logger) *SpawnReport {
	name := d.config.NamePrefix + strconv.FormatInt(tick, 10)
	code := spawn.SpawnCreep(d.config.Body, name)
	sr := &SpawnReport{Spawn: spawn.Name(), Name: name, Result: code}

	if code != world.OK {
		log.Debugf("spawn %s cannot spawn %s: %s", spawn.Name(), name, code)
		return sr
	}
	d.state.SetCreep(name, state.CreepMemory{
		Role: d.config.Role,
		Room: spawn.Pos().RoomName,
	})
	log.Infof("spawning %s at %s", name, spawn.Name())
	d.emit(Event{Type: EventCreepSpawned, Tick: tick, Creep: name})
	return sr
}

// runCreep updates one creep's working flag and drives its step.
func (d *Dispatcher) runCreep(w world.World, creep world.Creep, spawn world.Spawn, log *logging.Logger) CreepReport {
	name := creep.Name()
	mem, ok := d.state.Creep(name)
	if !ok {
		mem = state.CreepMemory{Role: d.config.Role, Room: creep.Pos().RoomName}
		log.Infof("adopting creep without memory as %s", mem.Role)
	}

	worker := tasks.Worker{Name: name, Role: mem.Role, Room: creep.Pos().RoomName}
	var task *tasks.Task
	if t, found := d.store.ForCreep(worker); found {
		task = &t
	}

	mem.Working = UpdateWorking(mem.Working, creep.Store(), task)
	d.state.SetCreep(name, mem)

	outcome := CreepReport{Name: name, Working: mem.Working, Task: task}
	if mem.Working && task != nil {
		steps, err := Perform(w, creep, *task, log)
		if err != nil {
			log.Err(err).Msg("task failed")
		}
		outcome.Steps = steps
		return outcome
	}

	if spawn == nil {
		return outcome
	}
	outcome.Steps = []Step{MoveToSpawn(creep, spawn)}
	return outcome
}

// cleanupMemory drops memory of creeps that are neither alive nor being
// spawned and returns their names.
func (d *Dispatcher) cleanupMemory(creeps []world.Creep, spawn world.Spawn) []string {
	alive := make(map[string]bool, len(creeps)+1)
	for _, c := range creeps {
		alive[c.Name()] = true
	}
	if spawn != nil {
		if name, ok := spawn.Spawning(); ok {
			alive[name] = true
		}
	}

	var removed []string
	for _, name := range d.state.CreepNames() {
		if !alive[name] {
			d.state.DeleteCreep(name)
			removed = append(removed, name)
		}
	}
	return removed
}
