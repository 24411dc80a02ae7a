// Package world defines the boundary between the colony controller and the
// game simulation. The controller never owns the host's objects; it drives
// them through these interfaces.
package world

import "fmt"

// ResultCode is the outcome of a creep or spawn action.
type ResultCode int

// Result codes returned by world actions. Values follow the game's constants.
const (
	OK                    ResultCode = 0
	ErrNotOwner           ResultCode = -1
	ErrNoPath             ResultCode = -2
	ErrNameExists         ResultCode = -3
	ErrBusy               ResultCode = -4
	ErrNotFound           ResultCode = -5
	ErrNotEnoughResources ResultCode = -6
	ErrInvalidTarget      ResultCode = -7
	ErrFull               ResultCode = -8
	ErrNotInRange         ResultCode = -9
	ErrInvalidArgs        ResultCode = -10
)

func (c ResultCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrNotOwner:
		return "ERR_NOT_OWNER"
	case ErrNoPath:
		return "ERR_NO_PATH"
	case ErrNameExists:
		return "ERR_NAME_EXISTS"
	case ErrBusy:
		return "ERR_BUSY"
	case ErrNotFound:
		return "ERR_NOT_FOUND"
	case ErrNotEnoughResources:
		return "ERR_NOT_ENOUGH_RESOURCES"
	case ErrInvalidTarget:
		return "ERR_INVALID_TARGET"
	case ErrFull:
		return "ERR_FULL"
	case ErrNotInRange:
		return "ERR_NOT_IN_RANGE"
	case ErrInvalidArgs:
		return "ERR_INVALID_ARGS"
	default:
		return fmt.Sprintf("ERR(%d)", int(c))
	}
}

// MarshalText encodes the code by name.
func (c ResultCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a name produced by MarshalText.
func (c *ResultCode) UnmarshalText(b []byte) error {
	s := string(b)
	var n int
	if _, err := fmt.Sscanf(s, "ERR(%d)", &n); err == nil {
		*c = ResultCode(n)
		return nil
	}
	for code := OK; code >= ErrInvalidArgs; code-- {
		if code.String() == s {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("unknown result code %q", s)
}

// Interaction ranges.
const (
	RangeAdjacent = 1
	RangeUpgrade  = 3
)

// StructureType names a kind of owned structure.
type StructureType string

const (
	StructureSpawn     StructureType = "spawn"
	StructureExtension StructureType = "extension"
	StructureContainer StructureType = "container"
	StructureStorage   StructureType = "storage"
)

// Store is an energy store snapshot.
type Store struct {
	Used     int
	Capacity int
}

// Free returns the remaining capacity.
func (s Store) Free() int {
	if s.Capacity <= s.Used {
		return 0
	}
	return s.Capacity - s.Used
}

// Object is anything in the world with an id and a position.
type Object interface {
	ID() string
	Pos() Position
}

// Source is a regenerating energy node.
type Source interface {
	Object
	Energy() int
}

// Structure is an owned structure with an energy store.
type Structure interface {
	Object
	StructureType() StructureType
	Store() Store
}

// Controller is a room controller.
type Controller interface {
	Object
	Level() int
}

// Spawn creates creeps.
type Spawn interface {
	Structure
	Name() string
	// Spawning returns the name of the creep being spawned, if any.
	Spawning() (string, bool)
	SpawnCreep(body []string, name string) ResultCode
}

// Creep is a controllable agent. Each action is one intent for the current tick.
type Creep interface {
	Object
	Name() string
	Store() Store
	Harvest(Source) ResultCode
	Transfer(Structure) ResultCode
	UpgradeController(Controller) ResultCode
	MoveTo(Position) ResultCode
}

// Room is a visible room.
type Room interface {
	Name() string
	ActiveSources() []Source
	Structures() []Structure
	// Controller returns nil when the room has none.
	Controller() Controller
}

// World is the live snapshot for one tick.
type World interface {
	Time() int64
	// Room returns nil when the room is not visible.
	Room(name string) Room
	// Creeps returns live creeps ordered by name.
	Creeps() []Creep
	// Spawn returns nil when no spawn has that name.
	Spawn(name string) Spawn
	// GetObjectByID returns nil when the id does not resolve.
	GetObjectByID(id string) Object
}
