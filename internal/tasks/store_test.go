package tasks

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/world"
)

func newTestStore(t *testing.T) (*Store, *state.State) {
	t.Helper()
	st := state.NewVolatile()
	return NewStore(st).WithLogger(logging.Nop()), st
}

func mustAdd(t *testing.T, s *Store, tasks ...Task) {
	t.Helper()
	for _, task := range tasks {
		if err := s.Add(task); err != nil {
			t.Fatalf("Add(%v) error: %v", task, err)
		}
	}
}

func TestStoreStartsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
	if _, ok := s.ForCreep(Worker{Role: "worker", Room: "W1N1"}); ok {
		t.Error("ForCreep() found a task in an empty store")
	}
}

func TestStoreAddAndList(t *testing.T) {
	s, st := newTestStore(t)
	pos := world.NewPosition(5, 5, "W1N1")

	mustAdd(t, s,
		New(KindUpgrade, 3, pos, "ctl"),
		New(KindHarvest, 1, pos, "src"),
		New(KindHarvest, 1, pos, "src"),
	)

	got := s.List()
	if len(got) != 3 {
		t.Fatalf("len(List()) = %d, want 3 (no uniqueness enforcement)", len(got))
	}
	if got[0].ID != "ctl" || got[1].ID != "src" {
		t.Errorf("List() order = %v, want insertion order", got)
	}
	if len(st.TaskRecords()) != 3 {
		t.Errorf("persisted records = %d, want 3", len(st.TaskRecords()))
	}
}

func TestStoreSkipsMalformedRecords(t *testing.T) {
	s, st := newTestStore(t)
	mustAdd(t, s, New(KindHarvest, 1, world.NewPosition(1, 1, "W1N1"), "src"))
	st.AppendTaskRecord("not json")
	mustAdd(t, s, New(KindUpgrade, 3, world.NewPosition(2, 2, "W1N1"), "ctl"))

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[1].Index != 2 {
		t.Errorf("entries[1].Index = %d, want 2", entries[1].Index)
	}
}

func TestStoreScanLogsEachMalformedRecordOnce(t *testing.T) {
	st := state.NewVolatile()
	var buf bytes.Buffer
	s := NewStore(st).WithLogger(logging.NewWriter(&buf, "warn"))
	mustAdd(t, s, New(KindHarvest, 1, world.NewPosition(1, 1, "W1N1"), "src"))
	st.AppendTaskRecord("not json")
	st.AppendTaskRecord(`{"type":"build"}`)

	entries, malformed := s.Scan()
	if len(entries) != 1 || entries[0].Task.ID != "src" {
		t.Errorf("Scan() entries = %v, want [src]", entries)
	}
	if malformed != 2 {
		t.Errorf("Scan() malformed = %d, want 2", malformed)
	}
	if n := strings.Count(buf.String(), "skipping malformed task record"); n != 2 {
		t.Errorf("malformed warnings = %d, want 2 (one per record)", n)
	}
}

func TestStoreForCreep(t *testing.T) {
	s, _ := newTestStore(t)
	mustAdd(t, s,
		New(KindHarvest, 1, world.NewPosition(1, 1, "W2N2"), "far"),
		New(KindHarvest, 1, world.NewPosition(1, 1, "W1N1"), "near"),
		New(KindUpgrade, 3, world.NewPosition(1, 1, "W1N1"), "ctl"),
	)

	task, ok := s.ForCreep(Worker{Name: "a", Role: "worker", Room: "W1N1"})
	if !ok || task.ID != "near" {
		t.Errorf("ForCreep(worker W1N1) = %v, %v; want near", task, ok)
	}

	// Two creeps may be handed the same task.
	again, ok := s.ForCreep(Worker{Name: "b", Role: "worker", Room: "W1N1"})
	if !ok || again.ID != task.ID {
		t.Errorf("second ForCreep = %v, %v; want %s", again, ok, task.ID)
	}

	if _, ok := s.ForCreep(Worker{Name: "c", Role: "hauler", Room: "W1N1"}); ok {
		t.Error("ForCreep returned a task for a non-worker role")
	}
	if _, ok := s.ForCreep(Worker{Name: "d", Role: "worker", Room: "W9N9"}); ok {
		t.Error("ForCreep returned a task for a room with none")
	}
}

func TestStoreRemove(t *testing.T) {
	s, _ := newTestStore(t)
	pos := world.NewPosition(1, 1, "W1N1")
	mustAdd(t, s, New(KindHarvest, 1, pos, "a"), New(KindHarvest, 1, pos, "b"))

	if err := s.Remove(0); err != nil {
		t.Fatalf("Remove(0) error: %v", err)
	}
	if got := s.List(); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("after Remove(0) = %v", got)
	}
	if err := s.Remove(3); !errors.Is(err, state.ErrIndexOutOfRange) {
		t.Errorf("Remove(3) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestStoreRemoveWhere(t *testing.T) {
	s, st := newTestStore(t)
	pos := world.NewPosition(1, 1, "W1N1")
	mustAdd(t, s, New(KindHarvest, 1, pos, "a"))
	st.AppendTaskRecord("garbage")
	mustAdd(t, s, New(KindHarvest, 1, pos, "b"), New(KindUpgrade, 3, pos, "c"))

	removed := s.RemoveWhere(func(task Task) bool { return task.Kind == KindHarvest })
	if len(removed) != 2 || removed[0].ID != "a" || removed[1].ID != "b" {
		t.Errorf("RemoveWhere() = %v, want [a b]", removed)
	}
	records := st.TaskRecords()
	if len(records) != 2 || records[0] != "garbage" {
		t.Errorf("records after RemoveWhere = %v", records)
	}
}

func TestStorePrioritize(t *testing.T) {
	s, st := newTestStore(t)
	pos := world.NewPosition(1, 1, "W1N1")
	mustAdd(t, s,
		New(KindUpgrade, 3, pos, "u1"),
		New(KindHarvest, 1, pos, "h1"),
		New(KindFillContainer, 2, pos, "f1"),
		New(KindHarvest, 1, pos, "h2"),
		New(KindUpgrade, 3, pos, "u2"),
	)
	st.AppendTaskRecord(`{"type":"harvest"}`)

	dropped, err := s.Prioritize()
	if err != nil {
		t.Fatalf("Prioritize() error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	got := s.List()
	for i := 0; i+1 < len(got); i++ {
		if got[i].Priority > got[i+1].Priority {
			t.Errorf("priority[%d]=%d > priority[%d]=%d", i, got[i].Priority, i+1, got[i+1].Priority)
		}
	}

	wantIDs := []string{"h1", "h2", "f1", "u1", "u2"}
	if len(got) != len(wantIDs) {
		t.Fatalf("len = %d, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s (stable order)", i, got[i].ID, id)
		}
	}
	if len(st.TaskRecords()) != len(wantIDs) {
		t.Errorf("persisted %d records, want %d", len(st.TaskRecords()), len(wantIDs))
	}
}

func TestStoreClear(t *testing.T) {
	s, _ := newTestStore(t)
	mustAdd(t, s, New(KindHarvest, 1, world.NewPosition(1, 1, "W1N1"), "src"))
	s.Clear()
	if len(s.List()) != 0 {
		t.Error("Clear() left tasks behind")
	}
}
