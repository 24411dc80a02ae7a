package tasks

import (
	"sort"

	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/state"
)

// Store is the ordered task list kept in colony memory. Every read
// deserializes the persisted records; writes go straight back to memory.
type Store struct {
	state *state.State
	log   *logging.Logger
}

// Entry is a task together with its position in the persisted list.
type Entry struct {
	Index int
	Task  Task
}

// NewStore creates a Store over st.
func NewStore(st *state.State) *Store {
	return &Store{
		state: st,
		log:   logging.Component("tasks"),
	}
}

// WithLogger replaces the store's logger.
func (s *Store) WithLogger(l *logging.Logger) *Store {
	if l != nil {
		s.log = l
	}
	return s
}

// Add appends t. Callers check for an existing task first.
func (s *Store) Add(t Task) error {
	record, err := t.Serialize()
	if err != nil {
		return err
	}
	s.state.AppendTaskRecord(record)
	return nil
}

// List returns every well-formed task in persisted order. Malformed records
// are skipped and logged.
func (s *Store) List() []Task {
	entries := s.Entries()
	out := make([]Task, len(entries))
	for i, e := range entries {
		out[i] = e.Task
	}
	return out
}

// Entries is List with the persisted index of each task.
func (s *Store) Entries() []Entry {
	entries, _ := s.decode(s.state.TaskRecords())
	return entries
}

// Scan decodes the list once and returns the well-formed entries along with
// the number of malformed records.
func (s *Store) Scan() ([]Entry, int) {
	entries, bad := s.decode(s.state.TaskRecords())
	return entries, len(bad)
}

// ForCreep returns the first task suitable for w.
func (s *Store) ForCreep(w Worker) (Task, bool) {
	for _, e := range s.Entries() {
		if e.Task.SuitableFor(w) {
			return e.Task, true
		}
	}
	return Task{}, false
}

// Remove deletes the record at index.
func (s *Store) Remove(index int) error {
	return s.state.RemoveTaskRecord(index)
}

// RemoveWhere deletes every well-formed task matching fn through Remove and
// returns the removed tasks. Malformed records are left in place.
func (s *Store) RemoveWhere(fn func(Task) bool) []Task {
	entries := s.Entries()
	var removed []Task
	for i := len(entries) - 1; i >= 0; i-- {
		if !fn(entries[i].Task) {
			continue
		}
		if err := s.Remove(entries[i].Index); err != nil {
			s.log.Warnf("removing task %s: %v", entries[i].Task.ID, err)
			continue
		}
		removed = append(removed, entries[i].Task)
	}
	// restore list order
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}
	return removed
}

// Prioritize stable-sorts the list ascending by priority and writes it back.
// Malformed records are dropped. It returns how many were dropped.
func (s *Store) Prioritize() (int, error) {
	entries, bad := s.decode(s.state.TaskRecords())
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Task.Priority < entries[j].Task.Priority
	})

	records := make([]string, 0, len(entries))
	for _, e := range entries {
		record, err := e.Task.Serialize()
		if err != nil {
			return 0, err
		}
		records = append(records, record)
	}
	s.state.SetTaskRecords(records)

	if len(bad) > 0 {
		s.log.Warnf("dropped %d malformed task records", len(bad))
	}
	return len(bad), nil
}

// Clear empties the task list.
func (s *Store) Clear() {
	s.state.SetTaskRecords(nil)
}

func (s *Store) decode(records []string) ([]Entry, []int) {
	entries := make([]Entry, 0, len(records))
	var bad []int
	for i, record := range records {
		t, err := Deserialize(record)
		if err != nil {
			s.log.WarnCtx("skipping malformed task record", map[string]any{
				"index": i,
				"error": err.Error(),
			})
			bad = append(bad, i)
			continue
		}
		entries = append(entries, Entry{Index: i, Task: t})
	}
	return entries, bad
}
