// Package state holds the colony's persisted memory: the serialized task list,
// per-creep memory and the last processed tick. It is read and rewritten
// wholesale once per tick.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/marcus/hivemind/internal/db"
)

// ErrIndexOutOfRange is returned when removing a task record that does not exist.
var ErrIndexOutOfRange = errors.New("task record index out of range")

const (
	stateVersion    = 1
	tickHistoryKeep = 500
	metaTick        = "tick"
)

// CreepMemory is the per-creep record kept between ticks.
type CreepMemory struct {
	Role    string `json:"role" db:"role"`
	Room    string `json:"room" db:"room"`
	Working bool   `json:"working" db:"working"`
}

// StateData is the serialized state structure.
type StateData struct {
	Version    int                    `json:"version"`
	Tick       int64                  `json:"tick"`
	Tasks      []string               `json:"tasks"`
	Creeps     map[string]CreepMemory `json:"creeps"`
	LastUpdate time.Time              `json:"last_update"`
}

// TickRecord summarizes one processed tick.
type TickRecord struct {
	ID        string    `json:"id" db:"id"`
	Tick      int64     `json:"tick" db:"tick"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	Duration  int64     `json:"duration_ms" db:"duration_ms"`
	Creeps    int       `json:"creeps" db:"creeps"`
	Tasks     int       `json:"tasks" db:"tasks"`
	Added     int       `json:"added" db:"added"`
	Evicted   int       `json:"evicted" db:"evicted"`
	Skipped   int       `json:"skipped" db:"skipped"`
	Spawned   string    `json:"spawned,omitempty" db:"spawned"`
	Removed   string    `json:"removed,omitempty" db:"removed"`
}

// State manages persisted colony memory. A nil database gives a volatile
// state whose Load and Save are no-ops.
type State struct {
	mu   sync.RWMutex
	db   *sqlx.DB
	data *StateData
}

type creepRow struct {
	Name string `db:"name"`
	CreepMemory
}

// New creates a State backed by database and loads what is stored there.
func New(database *db.DB) (*State, error) {
	if database == nil || database.SQL() == nil {
		return nil, errors.New("state: db is nil")
	}

	s := &State{
		db:   sqlx.NewDb(database.SQL(), "sqlite"),
		data: newStateData(),
	}

	if err := s.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	return s, nil
}

// NewVolatile creates a State that is never persisted.
func NewVolatile() *State {
	return &State{data: newStateData()}
}

// newStateData creates an empty StateData. Tasks stay nil until first access.
func newStateData() *StateData {
	return &StateData{
		Version: stateVersion,
		Creeps:  make(map[string]CreepMemory),
	}
}

// Persistent reports whether the state is backed by a database.
func (s *State) Persistent() bool {
	return s.db != nil
}

// Load replaces the in-memory state with what is stored in the database.
func (s *State) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := newStateData()

	var records []string
	if err := s.db.SelectContext(ctx, &records, `SELECT record FROM task_records ORDER BY position`); err != nil {
		return fmt.Errorf("query task records: %w", err)
	}
	if len(records) > 0 {
		loaded.Tasks = records
	}

	var rows []creepRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, role, room, working FROM creep_memory`); err != nil {
		return fmt.Errorf("query creep memory: %w", err)
	}
	for _, r := range rows {
		loaded.Creeps[r.Name] = r.CreepMemory
	}

	var tick string
	err := s.db.GetContext(ctx, &tick, `SELECT value FROM memory_meta WHERE key = ?`, metaTick)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("query tick: %w", err)
	default:
		loaded.Tick, err = strconv.ParseInt(tick, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing stored tick %q: %w", tick, err)
		}
	}

	s.data = loaded
	return nil
}

// Save rewrites the stored task list, creep memory and tick in one transaction.
func (s *State) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.LastUpdate = time.Now()
	if s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_records`); err != nil {
		return fmt.Errorf("clearing task records: %w", err)
	}
	for i, record := range s.data.Tasks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_records (position, record) VALUES (?, ?)`, i, record); err != nil {
			return fmt.Errorf("writing task record %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM creep_memory`); err != nil {
		return fmt.Errorf("clearing creep memory: %w", err)
	}
	for name, mem := range s.data.Creeps {
		row := creepRow{Name: name, CreepMemory: mem}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO creep_memory (name, role, room, working) VALUES (:name, :role, :room, :working)`, row); err != nil {
			return fmt.Errorf("writing memory for %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO memory_meta (key, value) VALUES (?, ?)`, metaTick, strconv.FormatInt(s.data.Tick, 10)); err != nil {
		return fmt.Errorf("writing tick: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// TaskRecords returns a copy of the serialized task list, initializing it on
// first access.
func (s *State) TaskRecords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Tasks == nil {
		s.data.Tasks = []string{}
	}
	out := make([]string, len(s.data.Tasks))
	copy(out, s.data.Tasks)
	return out
}

// SetTaskRecords replaces the serialized task list.
func (s *State) SetTaskRecords(records []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Tasks = make([]string, len(records))
	copy(s.data.Tasks, records)
}

// AppendTaskRecord adds a serialized task at the end of the list.
func (s *State) AppendTaskRecord(record string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Tasks = append(s.data.Tasks, record)
}

// RemoveTaskRecord deletes the serialized task at index.
func (s *State) RemoveTaskRecord(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.data.Tasks) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.data.Tasks))
	}
	s.data.Tasks = append(s.data.Tasks[:index], s.data.Tasks[index+1:]...)
	return nil
}

// Creep returns the memory of a creep.
func (s *State) Creep(name string) (CreepMemory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem, ok := s.data.Creeps[name]
	return mem, ok
}

// SetCreep stores the memory of a creep.
func (s *State) SetCreep(name string, mem CreepMemory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Creeps[name] = mem
}

// DeleteCreep forgets a creep.
func (s *State) DeleteCreep(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.Creeps, name)
}

// CreepNames returns the names of all creeps with memory, sorted.
func (s *State) CreepNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data.Creeps))
	for name := range s.data.Creeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tick returns the last processed tick.
func (s *State) Tick() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Tick
}

// SetTick records the last processed tick.
func (s *State) SetTick(tick int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tick = tick
}

// Snapshot returns a deep copy of the current state.
func (s *State) Snapshot() StateData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := StateData{
		Version:    s.data.Version,
		Tick:       s.data.Tick,
		Creeps:     make(map[string]CreepMemory, len(s.data.Creeps)),
		LastUpdate: s.data.LastUpdate,
	}
	if s.data.Tasks != nil {
		out.Tasks = make([]string, len(s.data.Tasks))
		copy(out.Tasks, s.data.Tasks)
	}
	for k, v := range s.data.Creeps {
		out.Creeps[k] = v
	}
	return out
}

// Restore replaces the in-memory state. Call Save to persist it.
func (s *State) Restore(data StateData) {
	restored := newStateData()
	restored.Tick = data.Tick
	restored.LastUpdate = data.LastUpdate
	if data.Tasks != nil {
		restored.Tasks = make([]string, len(data.Tasks))
		copy(restored.Tasks, data.Tasks)
	}
	for k, v := range data.Creeps {
		restored.Creeps[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = restored
}

// AddTickRecord stores a tick summary and trims old history.
func (s *State) AddTickRecord(ctx context.Context, rec TickRecord) error {
	if s.db == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("tick-%d-%d", rec.Tick, time.Now().UnixNano())
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO tick_history
		(id, tick, started_at, duration_ms, creeps, tasks, added, evicted, skipped, spawned, removed)
		VALUES (:id, :tick, :started_at, :duration_ms, :creeps, :tasks, :added, :evicted, :skipped, :spawned, :removed)`, rec)
	if err != nil {
		return fmt.Errorf("insert tick record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM tick_history WHERE id NOT IN (
		SELECT id FROM tick_history ORDER BY tick DESC, started_at DESC LIMIT ?)`, tickHistoryKeep)
	if err != nil {
		return fmt.Errorf("trim tick history: %w", err)
	}
	return nil
}

// TickHistory returns the last n tick records, most recent first.
func (s *State) TickHistory(ctx context.Context, n int) ([]TickRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if n <= 0 {
		n = tickHistoryKeep
	}

	var records []TickRecord
	err := s.db.SelectContext(ctx, &records, `SELECT id, tick, started_at, duration_ms, creeps, tasks, added, evicted, skipped, spawned, removed
		FROM tick_history ORDER BY tick DESC, started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query tick history: %w", err)
	}
	return records, nil
}
