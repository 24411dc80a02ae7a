package dispatch

import (
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

// Reconciliation is what one reconcile pass changed.
type Reconciliation struct {
	Added   []tasks.Task
	Evicted []tasks.Task
}

type taskKey struct {
	kind tasks.Kind
	id   string
}

// Reconcile brings the task list in line with room. Each active source,
// container with free capacity and the controller gets exactly one task of
// its kind. With evict set, tasks whose target no longer resolves are
// removed first; tasks in rooms that are not visible are kept.
func Reconcile(w world.World, room world.Room, store *tasks.Store, cfg Config) (Reconciliation, error) {
	var res Reconciliation

	if cfg.EvictStale {
		res.Evicted = store.RemoveWhere(func(t tasks.Task) bool {
			return w.Room(t.Location.RoomName) != nil && w.GetObjectByID(t.ID) == nil
		})
	}
	if room == nil {
		return res, nil
	}

	existing := make(map[taskKey]bool)
	for _, t := range store.List() {
		existing[taskKey{t.Kind, t.ID}] = true
	}

	add := func(kind tasks.Kind, obj world.Object) error {
		key := taskKey{kind, obj.ID()}
		if existing[key] {
			return nil
		}
		t := tasks.New(kind, cfg.priority(kind), obj.Pos(), obj.ID())
		if err := store.Add(t); err != nil {
			return err
		}
		existing[key] = true
		res.Added = append(res.Added, t)
		return nil
	}

	for _, src := range room.ActiveSources() {
		if err := add(tasks.KindHarvest, src); err != nil {
			return res, err
		}
	}
	for _, ctr := range world.Containers(room) {
		if err := add(tasks.KindFillContainer, ctr); err != nil {
			return res, err
		}
	}
	if ctl := room.Controller(); ctl != nil {
		if err := add(tasks.KindUpgrade, ctl); err != nil {
			return res, err
		}
	}
	return res, nil
}
