package dispatch

import (
	"testing"

	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/sim"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

const testRoom = "W1N1"

var workerBody = []string{sim.PartWork, sim.PartCarry, sim.PartMove}

func at(x, y int) world.Position {
	return world.NewPosition(x, y, testRoom)
}

// newRoom builds a room with a full spawn at the center, one source and a
// controller. No containers.
func newRoom(t *testing.T) *sim.World {
	t.Helper()
	w := sim.New()
	w.AddSpawn("spawn0", "Spawn1", at(25, 25), sim.SpawnEnergyCapacity)
	w.AddSource("src0", at(10, 10), 100)
	w.SetController("ctl0", at(40, 40), 1)
	return w
}

func newTestStore(t *testing.T) (*tasks.Store, *state.State) {
	t.Helper()
	st := state.NewVolatile()
	return tasks.NewStore(st).WithLogger(logging.Nop()), st
}

func hasTask(store *tasks.Store, kind tasks.Kind, id string) bool {
	for _, task := range store.List() {
		if task.Kind == kind && task.ID == id {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T, cfg Config, events *[]Event) (*Dispatcher, *state.State) {
	t.Helper()
	st := state.NewVolatile()
	opts := []Option{WithConfig(cfg), WithLogger(logging.Nop())}
	if events != nil {
		opts = append(opts, WithEventHandler(func(e Event) {
			*events = append(*events, e)
		}))
	}
	return New(st, opts...), st
}
