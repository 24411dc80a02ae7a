// Package tasks defines colony work items and the persisted, prioritized
// task list creeps draw their assignments from.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcus/hivemind/internal/world"
)

// Kind is the closed set of task kinds.
type Kind int

const (
	KindHarvest Kind = iota + 1
	KindFillContainer
	KindUpgrade
)

// ErrUnknownKind is returned for task kinds outside the closed set.
var ErrUnknownKind = errors.New("unknown task kind")

// Kinds lists every task kind in default priority order.
var Kinds = []Kind{KindHarvest, KindFillContainer, KindUpgrade}

func (k Kind) String() string {
	switch k {
	case KindHarvest:
		return "harvest"
	case KindFillContainer:
		return "fill_container"
	case KindUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// DefaultPriority is the priority used when configuration does not override it.
func (k Kind) DefaultPriority() int {
	switch k {
	case KindHarvest:
		return 1
	case KindFillContainer:
		return 2
	case KindUpgrade:
		return 3
	default:
		return 0
	}
}

// Acquires reports whether the task gathers energy.
func (k Kind) Acquires() bool {
	return k == KindHarvest
}

// Consumes reports whether the task spends carried energy.
func (k Kind) Consumes() bool {
	return k == KindFillContainer || k == KindUpgrade
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k.String() == "unknown" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Task is a unit of prioritized work bound to a world object.
type Task struct {
	Kind     Kind           `json:"type"`
	Priority int            `json:"priority"`
	Location world.Position `json:"location"`
	ID       string         `json:"id"`
}

// New creates a task.
func New(kind Kind, priority int, location world.Position, id string) Task {
	return Task{Kind: kind, Priority: priority, Location: location, ID: id}
}

// Worker is what suitability is judged on: a creep's role and current room.
type Worker struct {
	Name string
	Role string
	Room string
}

// WorkerRole is the only role that takes tasks from the list.
const WorkerRole = "worker"

// SuitableFor reports whether w may take the task.
func (t Task) SuitableFor(w Worker) bool {
	return w.Role == WorkerRole && w.Room == t.Location.RoomName
}

// Serialize encodes the task as a flat JSON record.
func (t Task) Serialize() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("serializing task %s: %w", t.ID, err)
	}
	return string(data), nil
}

// Deserialize decodes and validates a record written by Serialize.
func Deserialize(record string) (Task, error) {
	if err := validateRecord(record); err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal([]byte(record), &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return t, nil
}

func (t Task) String() string {
	return fmt.Sprintf("%s(p%d %s @ %s)", t.Kind, t.Priority, t.ID, t.Location)
}
