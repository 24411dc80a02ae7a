package dispatch

import (
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

// UpdateWorking returns the creep's next working flag. The capacity rule is
// refined by the kind of the task the creep would take, if any:
//
//   - working with an empty store goes idle, unless its task gathers energy
//   - idle with a full store starts working
//   - idle with a harvest task and room to carry starts working
func UpdateWorking(working bool, store world.Store, task *tasks.Task) bool {
	switch {
	case working && store.Used == 0 && (task == nil || task.Kind.Consumes()):
		return false
	case !working && store.Free() == 0:
		return true
	case !working && task != nil && task.Kind.Acquires() && store.Free() > 0:
		return true
	}
	return working
}
