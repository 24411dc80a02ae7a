package sim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/marcus/hivemind/internal/world"
	"gopkg.in/yaml.v3"
)

// ErrInvalidWorld is returned for world files that cannot be built.
var ErrInvalidWorld = errors.New("invalid world file")

// File is the YAML layout of a saved world.
type File struct {
	Tick   int64       `yaml:"tick"`
	Rooms  []RoomFile  `yaml:"rooms"`
	Creeps []CreepFile `yaml:"creeps,omitempty"`
}

// RoomFile describes one room.
type RoomFile struct {
	Name       string          `yaml:"name"`
	Sources    []SourceFile    `yaml:"sources,omitempty"`
	Structures []StructureFile `yaml:"structures,omitempty"`
	Controller *ControllerFile `yaml:"controller,omitempty"`
}

// SourceFile describes a source.
type SourceFile struct {
	ID                  string `yaml:"id"`
	X                   int    `yaml:"x"`
	Y                   int    `yaml:"y"`
	Energy              int    `yaml:"energy"`
	Capacity            int    `yaml:"capacity"`
	TicksToRegeneration int    `yaml:"ticks_to_regeneration,omitempty"`
}

// StructureFile describes a structure. Name and Spawning apply to spawns.
type StructureFile struct {
	ID       string        `yaml:"id"`
	Type     string        `yaml:"type"`
	Name     string        `yaml:"name,omitempty"`
	X        int           `yaml:"x"`
	Y        int           `yaml:"y"`
	Energy   int           `yaml:"energy"`
	Capacity int           `yaml:"capacity"`
	Spawning *SpawningFile `yaml:"spawning,omitempty"`
}

// SpawningFile describes a creep being spawned.
type SpawningFile struct {
	Name      string   `yaml:"name"`
	Body      []string `yaml:"body"`
	Remaining int      `yaml:"remaining"`
}

// ControllerFile describes a controller.
type ControllerFile struct {
	ID       string `yaml:"id"`
	X        int    `yaml:"x"`
	Y        int    `yaml:"y"`
	Level    int    `yaml:"level"`
	Progress int    `yaml:"progress,omitempty"`
}

// CreepFile describes a live creep.
type CreepFile struct {
	Name        string         `yaml:"name"`
	ID          string         `yaml:"id"`
	Pos         world.Position `yaml:"pos"`
	Body        []string       `yaml:"body"`
	Energy      int            `yaml:"energy"`
	TicksToLive int            `yaml:"ticks_to_live"`
}

var structureTypes = map[string]world.StructureType{
	string(world.StructureSpawn):     world.StructureSpawn,
	string(world.StructureExtension): world.StructureExtension,
	string(world.StructureContainer): world.StructureContainer,
	string(world.StructureStorage):   world.StructureStorage,
}

// Load reads a world from a YAML file.
func Load(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading world %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a world from YAML.
func Parse(data []byte) (*World, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing world: %w", err)
	}
	return FromFile(f)
}

// FromFile builds a world from its file layout.
func FromFile(f File) (*World, error) {
	w := New()
	w.tick = f.Tick
	ids := make(map[string]bool)
	claim := func(id string) error {
		if id == "" {
			return fmt.Errorf("%w: object without id", ErrInvalidWorld)
		}
		if ids[id] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidWorld, id)
		}
		ids[id] = true
		return nil
	}

	for _, rf := range f.Rooms {
		if rf.Name == "" {
			return nil, fmt.Errorf("%w: room without name", ErrInvalidWorld)
		}
		w.AddRoom(rf.Name)
		for _, sf := range rf.Sources {
			if err := claim(sf.ID); err != nil {
				return nil, err
			}
			s := w.AddSource(sf.ID, world.NewPosition(sf.X, sf.Y, rf.Name), sf.Capacity)
			s.energy = sf.Energy
			s.ticksToRegeneration = sf.TicksToRegeneration
		}
		for _, st := range rf.Structures {
			if err := claim(st.ID); err != nil {
				return nil, err
			}
			typ, ok := structureTypes[st.Type]
			if !ok {
				return nil, fmt.Errorf("%w: unknown structure type %q", ErrInvalidWorld, st.Type)
			}
			s := w.AddStructure(st.ID, typ, world.NewPosition(st.X, st.Y, rf.Name), st.Energy, st.Capacity)
			s.name = st.Name
			if st.Spawning != nil {
				s.spawning = &spawning{
					name:      st.Spawning.Name,
					body:      append([]string(nil), st.Spawning.Body...),
					remaining: st.Spawning.Remaining,
				}
			}
		}
		if cf := rf.Controller; cf != nil {
			if err := claim(cf.ID); err != nil {
				return nil, err
			}
			c := w.SetController(cf.ID, world.NewPosition(cf.X, cf.Y, rf.Name), cf.Level)
			c.progress = cf.Progress
		}
	}

	for _, cf := range f.Creeps {
		if _, ok := w.rooms[cf.Pos.RoomName]; !ok {
			return nil, fmt.Errorf("%w: creep %s in unknown room %q", ErrInvalidWorld, cf.Name, cf.Pos.RoomName)
		}
		if _, ok := w.creeps[cf.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate creep %q", ErrInvalidWorld, cf.Name)
		}
		c := w.AddCreep(cf.Name, cf.ID, cf.Pos, cf.Body, cf.Energy)
		if cf.TicksToLive > 0 {
			c.ticksToLive = cf.TicksToLive
		}
	}
	return w, nil
}

// File returns the world's file layout.
func (w *World) File() File {
	f := File{Tick: w.tick}
	for _, rn := range w.roomNames {
		r := w.rooms[rn]
		rf := RoomFile{Name: r.name}
		for _, s := range r.sources {
			rf.Sources = append(rf.Sources, SourceFile{
				ID:                  s.id,
				X:                   s.pos.X,
				Y:                   s.pos.Y,
				Energy:              s.energy,
				Capacity:            s.capacity,
				TicksToRegeneration: s.ticksToRegeneration,
			})
		}
		for _, s := range r.structures {
			sf := StructureFile{
				ID:       s.id,
				Type:     string(s.typ),
				Name:     s.name,
				X:        s.pos.X,
				Y:        s.pos.Y,
				Energy:   s.store.Used,
				Capacity: s.store.Capacity,
			}
			if s.spawning != nil {
				sf.Spawning = &SpawningFile{
					Name:      s.spawning.name,
					Body:      append([]string(nil), s.spawning.body...),
					Remaining: s.spawning.remaining,
				}
			}
			rf.Structures = append(rf.Structures, sf)
		}
		if c := r.controller; c != nil {
			rf.Controller = &ControllerFile{
				ID:       c.id,
				X:        c.pos.X,
				Y:        c.pos.Y,
				Level:    c.level,
				Progress: c.progress,
			}
		}
		f.Rooms = append(f.Rooms, rf)
	}

	names := make([]string, 0, len(w.creeps))
	for name := range w.creeps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := w.creeps[name]
		f.Creeps = append(f.Creeps, CreepFile{
			Name:        c.name,
			ID:          c.id,
			Pos:         c.pos,
			Body:        append([]string(nil), c.body...),
			Energy:      c.store.Used,
			TicksToLive: c.ticksToLive,
		})
	}
	return f
}

// Marshal encodes the world as YAML.
func (w *World) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(w.File())
	if err != nil {
		return nil, fmt.Errorf("encoding world: %w", err)
	}
	return data, nil
}

// Save writes the world to path atomically.
func (w *World) Save(path string) error {
	data, err := w.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating world dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing world: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing world: %w", err)
	}
	return nil
}
