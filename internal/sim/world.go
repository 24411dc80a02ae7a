// Package sim is an in-memory rendition of the game world. It implements
// world.World so the dispatcher can run without a live server, and loads and
// saves rooms as YAML files.
package sim

import (
	"sort"

	"github.com/google/uuid"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/world"
)

// World is a simulated game world.
type World struct {
	tick      int64
	roomNames []string
	rooms     map[string]*Room
	creeps    map[string]*Creep
	log       *logging.Logger
}

// New creates an empty world at tick 0.
func New() *World {
	return &World{
		rooms:  make(map[string]*Room),
		creeps: make(map[string]*Creep),
		log:    logging.Component("sim"),
	}
}

var _ world.World = (*World)(nil)

// Room is a simulated room.
type Room struct {
	name       string
	sources    []*Source
	structures []*Structure
	controller *Controller
}

var _ world.Room = (*Room)(nil)

func (r *Room) Name() string { return r.name }

// ActiveSources returns the sources that still hold energy.
func (r *Room) ActiveSources() []world.Source {
	var out []world.Source
	for _, s := range r.sources {
		if s.energy > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Sources returns every source, active or not.
func (r *Room) Sources() []*Source {
	return r.sources
}

func (r *Room) Structures() []world.Structure {
	out := make([]world.Structure, 0, len(r.structures))
	for _, s := range r.structures {
		out = append(out, s.asObject())
	}
	return out
}

func (r *Room) Controller() world.Controller {
	if r.controller == nil {
		return nil
	}
	return r.controller
}

// AddRoom adds an empty room. Adding an existing name returns that room.
func (w *World) AddRoom(name string) *Room {
	if r, ok := w.rooms[name]; ok {
		return r
	}
	r := &Room{name: name}
	w.rooms[name] = r
	w.roomNames = append(w.roomNames, name)
	return r
}

// AddSource places a full source.
func (w *World) AddSource(id string, pos world.Position, capacity int) *Source {
	r := w.AddRoom(pos.RoomName)
	s := &Source{id: id, pos: pos, energy: capacity, capacity: capacity}
	r.sources = append(r.sources, s)
	return s
}

// AddStructure places a structure holding used energy out of capacity.
func (w *World) AddStructure(id string, typ world.StructureType, pos world.Position, used, capacity int) *Structure {
	r := w.AddRoom(pos.RoomName)
	s := &Structure{
		id:    id,
		pos:   pos,
		typ:   typ,
		store: world.Store{Used: used, Capacity: capacity},
		w:     w,
	}
	r.structures = append(r.structures, s)
	return s
}

// AddSpawn places a named spawn.
func (w *World) AddSpawn(id, name string, pos world.Position, used int) *Spawn {
	s := w.AddStructure(id, world.StructureSpawn, pos, used, SpawnEnergyCapacity)
	s.name = name
	return &Spawn{s}
}

// SetController places the room's controller.
func (w *World) SetController(id string, pos world.Position, level int) *Controller {
	r := w.AddRoom(pos.RoomName)
	r.controller = &Controller{id: id, pos: pos, level: level}
	return r.controller
}

// AddCreep places a live creep. An empty id gets a generated one.
func (w *World) AddCreep(name, id string, pos world.Position, body []string, energy int) *Creep {
	if id == "" {
		id = uuid.NewString()
	}
	c := &Creep{
		id:          id,
		name:        name,
		pos:         pos,
		body:        append([]string(nil), body...),
		ticksToLive: CreepLifeTime,
		w:           w,
	}
	c.store = world.Store{Used: energy, Capacity: c.parts(PartCarry) * CarryCapacity}
	w.creeps[name] = c
	return c
}

// RemoveCreep deletes a creep from the world.
func (w *World) RemoveCreep(name string) {
	delete(w.creeps, name)
}

// Time returns the current tick.
func (w *World) Time() int64 { return w.tick }

// SetTime sets the current tick.
func (w *World) SetTime(tick int64) { w.tick = tick }

// Room returns the named room, or nil when it does not exist.
func (w *World) Room(name string) world.Room {
	r, ok := w.rooms[name]
	if !ok {
		return nil
	}
	return r
}

// SimRoom returns the concrete room.
func (w *World) SimRoom(name string) (*Room, bool) {
	r, ok := w.rooms[name]
	return r, ok
}

// RoomNames returns room names in insertion order.
func (w *World) RoomNames() []string {
	return append([]string(nil), w.roomNames...)
}

// Creeps returns live creeps ordered by name.
func (w *World) Creeps() []world.Creep {
	names := make([]string, 0, len(w.creeps))
	for name := range w.creeps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]world.Creep, 0, len(names))
	for _, name := range names {
		out = append(out, w.creeps[name])
	}
	return out
}

// Creep returns the concrete creep.
func (w *World) Creep(name string) (*Creep, bool) {
	c, ok := w.creeps[name]
	return c, ok
}

// Spawn returns the named spawn, or nil.
func (w *World) Spawn(name string) world.Spawn {
	for _, rn := range w.roomNames {
		for _, s := range w.rooms[rn].structures {
			if s.typ == world.StructureSpawn && s.name == name {
				return &Spawn{s}
			}
		}
	}
	return nil
}

// GetObjectByID resolves sources, structures, controllers and creeps.
func (w *World) GetObjectByID(id string) world.Object {
	if s := w.sourceByID(id); s != nil {
		return s
	}
	if s := w.structureByID(id); s != nil {
		return s.asObject()
	}
	if c := w.controllerByID(id); c != nil {
		return c
	}
	for _, c := range w.creeps {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (w *World) sourceByID(id string) *Source {
	for _, r := range w.rooms {
		for _, s := range r.sources {
			if s.id == id {
				return s
			}
		}
	}
	return nil
}

func (w *World) structureByID(id string) *Structure {
	for _, r := range w.rooms {
		for _, s := range r.structures {
			if s.id == id {
				return s
			}
		}
	}
	return nil
}

func (w *World) controllerByID(id string) *Controller {
	for _, r := range w.rooms {
		if r.controller != nil && r.controller.id == id {
			return r.controller
		}
	}
	return nil
}

func (w *World) nameTaken(name string) bool {
	if _, ok := w.creeps[name]; ok {
		return true
	}
	for _, r := range w.rooms {
		for _, s := range r.structures {
			if s.spawning != nil && s.spawning.name == name {
				return true
			}
		}
	}
	return false
}

// Advance ends the current tick: sources and spawns regenerate, pending
// creeps hatch, old creeps die and the clock moves forward.
func (w *World) Advance() {
	w.tick++

	for _, rn := range w.roomNames {
		r := w.rooms[rn]
		for _, s := range r.sources {
			s.regenerate()
		}
		for _, s := range r.structures {
			if s.typ != world.StructureSpawn {
				continue
			}
			if s.store.Used < s.store.Capacity {
				s.store.Used = min(s.store.Used+SpawnRegenPerTick, s.store.Capacity)
			}
			w.hatch(s)
		}
	}

	for name, c := range w.creeps {
		c.moved = false
		c.ticksToLive--
		if c.ticksToLive <= 0 {
			w.log.Infof("creep %s died of old age", name)
			delete(w.creeps, name)
		}
	}
}

func (w *World) hatch(s *Structure) {
	if s.spawning == nil {
		return
	}
	s.spawning.remaining--
	if s.spawning.remaining > 0 {
		return
	}
	pos := world.NewPosition(s.pos.X, clamp(s.pos.Y+1, 0, maxCoord), s.pos.RoomName)
	c := w.AddCreep(s.spawning.name, "", pos, s.spawning.body, 0)
	w.log.Infof("spawn %s hatched %s at %s", s.name, c.name, c.pos)
	s.spawning = nil
}
