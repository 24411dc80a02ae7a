package dispatch

import (
	"time"

	"github.com/marcus/hivemind/internal/tasks"
)

// EventType classifies dispatcher lifecycle events.
type EventType int

const (
	EventTickStart     EventType = iota // tick processing begins
	EventTaskAdded                      // reconciliation added a task
	EventTaskEvicted                    // a task's target no longer exists
	EventCreepSpawned                   // a spawn accepted a new creep
	EventCreepAction                    // a creep finished its step
	EventMemoryRemoved                  // memory of a vanished creep was dropped
	EventTickEnd                        // tick processing finished
)

func (t EventType) String() string {
	switch t {
	case EventTickStart:
		return "tick_start"
	case EventTaskAdded:
		return "task_added"
	case EventTaskEvicted:
		return "task_evicted"
	case EventCreepSpawned:
		return "creep_spawned"
	case EventCreepAction:
		return "creep_action"
	case EventMemoryRemoved:
		return "memory_removed"
	case EventTickEnd:
		return "tick_end"
	default:
		return "unknown"
	}
}

// Event carries data about a dispatcher lifecycle event.
type Event struct {
	Type    EventType
	Time    time.Time
	Tick    int64
	Creep   string       // creep name, when the event concerns one
	Task    *tasks.Task  // task added or evicted
	Outcome *CreepReport // for EventCreepAction
	Report  *Report      // for EventTickEnd
	Message string
}

// EventHandler is a callback that receives dispatcher events.
type EventHandler func(Event)
