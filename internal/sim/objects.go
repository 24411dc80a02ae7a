package sim

import (
	"slices"

	"github.com/marcus/hivemind/internal/world"
)

// Body parts understood by the simulation.
const (
	PartWork  = "work"
	PartCarry = "carry"
	PartMove  = "move"
)

// Simulation constants, taken from the game's defaults.
const (
	CarryCapacity        = 50
	HarvestPower         = 2
	UpgradePower         = 1
	CreepLifeTime        = 1500
	SpawnTimePerPart     = 3
	SpawnEnergyCapacity  = 300
	SpawnRegenPerTick    = 1
	SourceEnergyCapacity = 3000
	SourceRegenTime      = 300
	ContainerCapacity    = 2000
	ExtensionCapacity    = 50
	StorageCapacity      = 1000000
	maxCoord             = 49
)

// partCost is the spawn energy cost of each body part.
var partCost = map[string]int{
	PartWork:  100,
	PartCarry: 50,
	PartMove:  50,
}

// controllerProgress is the progress needed to leave each level.
var controllerProgress = map[int]int{
	1: 200,
	2: 45000,
	3: 135000,
	4: 405000,
	5: 1215000,
	6: 3645000,
	7: 10935000,
}

// BodyCost returns the spawn cost of body and whether every part is known.
func BodyCost(body []string) (int, bool) {
	total := 0
	for _, part := range body {
		cost, ok := partCost[part]
		if !ok {
			return 0, false
		}
		total += cost
	}
	return total, len(body) > 0
}

// Source is a regenerating energy node.
type Source struct {
	id                  string
	pos                 world.Position
	energy              int
	capacity            int
	ticksToRegeneration int
}

func (s *Source) ID() string               { return s.id }
func (s *Source) Pos() world.Position      { return s.pos }
func (s *Source) Energy() int              { return s.energy }
func (s *Source) EnergyCapacity() int      { return s.capacity }
func (s *Source) TicksToRegeneration() int { return s.ticksToRegeneration }

// regenerate advances the source's refill timer by one tick.
func (s *Source) regenerate() {
	if s.energy >= s.capacity && s.ticksToRegeneration == 0 {
		return
	}
	if s.ticksToRegeneration == 0 {
		s.ticksToRegeneration = SourceRegenTime
	}
	s.ticksToRegeneration--
	if s.ticksToRegeneration == 0 {
		s.energy = s.capacity
	}
}

// Structure is an owned structure with an energy store. Spawns carry a name
// and spawning state.
type Structure struct {
	id       string
	pos      world.Position
	typ      world.StructureType
	store    world.Store
	name     string
	spawning *spawning
	w        *World
}

type spawning struct {
	name      string
	body      []string
	remaining int
}

func (s *Structure) ID() string                         { return s.id }
func (s *Structure) Pos() world.Position                { return s.pos }
func (s *Structure) StructureType() world.StructureType { return s.typ }
func (s *Structure) Store() world.Store                 { return s.store }

// asObject wraps spawns so they satisfy world.Spawn.
func (s *Structure) asObject() world.Structure {
	if s.typ == world.StructureSpawn {
		return &Spawn{s}
	}
	return s
}

// Spawn is the world.Spawn view of a spawn structure.
type Spawn struct {
	*Structure
}

// Name returns the spawn's name.
func (s *Spawn) Name() string { return s.name }

// Spawning returns the name of the creep being spawned, if any.
func (s *Spawn) Spawning() (string, bool) {
	if s.spawning == nil {
		return "", false
	}
	return s.spawning.name, true
}

// SpawnCreep starts spawning a creep. The creep appears after Advance has
// run once per spawn-time tick.
func (s *Spawn) SpawnCreep(body []string, name string) world.ResultCode {
	cost, ok := BodyCost(body)
	if !ok || name == "" {
		return world.ErrInvalidArgs
	}
	if s.w.nameTaken(name) {
		return world.ErrNameExists
	}
	if s.spawning != nil {
		return world.ErrBusy
	}
	if s.store.Used < cost {
		return world.ErrNotEnoughResources
	}
	s.store.Used -= cost
	s.spawning = &spawning{
		name:      name,
		body:      slices.Clone(body),
		remaining: SpawnTimePerPart * len(body),
	}
	return world.OK
}

// Controller is a room controller.
type Controller struct {
	id       string
	pos      world.Position
	level    int
	progress int
}

func (c *Controller) ID() string          { return c.id }
func (c *Controller) Pos() world.Position { return c.pos }
func (c *Controller) Level() int          { return c.level }
func (c *Controller) Progress() int       { return c.progress }

func (c *Controller) addProgress(amount int) {
	c.progress += amount
	for {
		need, ok := controllerProgress[c.level]
		if !ok || c.progress < need {
			return
		}
		c.progress -= need
		c.level++
	}
}

// Creep is a simulated creep. Actions resolve immediately.
type Creep struct {
	id          string
	name        string
	pos         world.Position
	body        []string
	store       world.Store
	ticksToLive int
	moved       bool
	w           *World
}

func (c *Creep) ID() string          { return c.id }
func (c *Creep) Name() string        { return c.name }
func (c *Creep) Pos() world.Position { return c.pos }
func (c *Creep) Store() world.Store  { return c.store }
func (c *Creep) Body() []string      { return slices.Clone(c.body) }
func (c *Creep) TicksToLive() int    { return c.ticksToLive }

func (c *Creep) parts(part string) int {
	n := 0
	for _, p := range c.body {
		if p == part {
			n++
		}
	}
	return n
}

// Harvest takes energy from an adjacent source.
func (c *Creep) Harvest(target world.Source) world.ResultCode {
	src, ok := target.(*Source)
	if !ok || src == nil || c.w.sourceByID(src.id) != src {
		return world.ErrInvalidTarget
	}
	work := c.parts(PartWork)
	if work == 0 {
		return world.ErrInvalidArgs
	}
	if !c.pos.InRangeTo(src.pos, world.RangeAdjacent) {
		return world.ErrNotInRange
	}
	if src.energy == 0 {
		return world.ErrNotEnoughResources
	}
	if c.store.Free() == 0 {
		return world.ErrFull
	}
	amount := min(work*HarvestPower, src.energy, c.store.Free())
	src.energy -= amount
	c.store.Used += amount
	return world.OK
}

// Transfer moves all carried energy that fits into an adjacent structure.
func (c *Creep) Transfer(target world.Structure) world.ResultCode {
	var st *Structure
	switch t := target.(type) {
	case *Structure:
		st = t
	case *Spawn:
		if t != nil {
			st = t.Structure
		}
	}
	if st == nil || c.w.structureByID(st.id) != st {
		return world.ErrInvalidTarget
	}
	if c.store.Used == 0 {
		return world.ErrNotEnoughResources
	}
	if !c.pos.InRangeTo(st.pos, world.RangeAdjacent) {
		return world.ErrNotInRange
	}
	if st.store.Free() == 0 {
		return world.ErrFull
	}
	amount := min(c.store.Used, st.store.Free())
	c.store.Used -= amount
	st.store.Used += amount
	return world.OK
}

// UpgradeController spends energy on a controller within upgrade range.
func (c *Creep) UpgradeController(target world.Controller) world.ResultCode {
	ctl, ok := target.(*Controller)
	if !ok || ctl == nil || c.w.controllerByID(ctl.id) != ctl {
		return world.ErrInvalidTarget
	}
	work := c.parts(PartWork)
	if work == 0 {
		return world.ErrInvalidArgs
	}
	if c.store.Used == 0 {
		return world.ErrNotEnoughResources
	}
	if !c.pos.InRangeTo(ctl.pos, world.RangeUpgrade) {
		return world.ErrNotInRange
	}
	amount := min(work*UpgradePower, c.store.Used)
	c.store.Used -= amount
	ctl.addProgress(amount)
	return world.OK
}

// MoveTo steps one tile toward pos. A creep already adjacent stays put.
func (c *Creep) MoveTo(pos world.Position) world.ResultCode {
	if c.parts(PartMove) == 0 {
		return world.ErrInvalidArgs
	}
	if pos.RoomName != c.pos.RoomName {
		return world.ErrNoPath
	}
	if c.moved || c.pos.RangeTo(pos) <= 1 {
		return world.OK
	}
	c.pos.X = clamp(c.pos.X+sign(pos.X-c.pos.X), 0, maxCoord)
	c.pos.Y = clamp(c.pos.Y+sign(pos.Y-c.pos.Y), 0, maxCoord)
	c.moved = true
	return world.OK
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
