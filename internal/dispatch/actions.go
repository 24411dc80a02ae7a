package dispatch

import (
	"fmt"

	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

// Action names a creep primitive.
type Action string

const (
	ActionHarvest  Action = "harvest"
	ActionTransfer Action = "transfer"
	ActionUpgrade  Action = "upgrade"
	ActionMove     Action = "move"
)

// Step is one primitive a creep issued and the result the world returned.
type Step struct {
	Action Action           `json:"action"`
	Target string           `json:"target"`
	Result world.ResultCode `json:"result"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s: %s", s.Action, s.Target, s.Result)
}

// actor drives one creep through one step of a task.
type actor struct {
	w     world.World
	creep world.Creep
	log   *logging.Logger
	steps []Step
}

// Perform runs one step of t for creep and returns the primitives it issued.
// A missing target skips the step.
func Perform(w world.World, creep world.Creep, t tasks.Task, log *logging.Logger) ([]Step, error) {
	if log == nil {
		log = logging.Nop()
	}
	a := &actor{w: w, creep: creep, log: log}

	switch t.Kind {
	case tasks.KindHarvest:
		a.harvest(t)
	case tasks.KindFillContainer:
		a.fillContainer(t)
	case tasks.KindUpgrade:
		a.upgrade(t)
	default:
		return nil, fmt.Errorf("%w: %d", tasks.ErrUnknownKind, int(t.Kind))
	}
	return a.steps, nil
}

// MoveToSpawn sends an idle creep to the rally point.
func MoveToSpawn(creep world.Creep, spawn world.Spawn) Step {
	return Step{
		Action: ActionMove,
		Target: spawn.Name(),
		Result: creep.MoveTo(spawn.Pos()),
	}
}

func (a *actor) record(action Action, target string, code world.ResultCode) world.ResultCode {
	a.steps = append(a.steps, Step{Action: action, Target: target, Result: code})
	return code
}

// approach moves toward obj when the previous attempt was out of range.
func (a *actor) approach(code world.ResultCode, obj world.Object) {
	if code == world.ErrNotInRange {
		a.record(ActionMove, obj.ID(), a.creep.MoveTo(obj.Pos()))
	}
}

func (a *actor) harvest(t tasks.Task) {
	if a.creep.Store().Free() == 0 {
		a.deliver()
		return
	}
	src, ok := a.w.GetObjectByID(t.ID).(world.Source)
	if !ok {
		a.log.Warnf("harvest target %s not found", t.ID)
		return
	}
	a.harvestFrom(src)
}

func (a *actor) harvestFrom(src world.Source) {
	code := a.record(ActionHarvest, src.ID(), a.creep.Harvest(src))
	a.approach(code, src)
}

// harvestNearest is the fallback for consuming tasks when the creep is
// empty. Task ids name the consumer, so the source is looked up by range.
func (a *actor) harvestNearest() {
	room := a.w.Room(a.creep.Pos().RoomName)
	if room == nil {
		a.log.Warnf("room %s not visible", a.creep.Pos().RoomName)
		return
	}
	src, ok := world.ClosestByRange(a.creep.Pos(), room.ActiveSources())
	if !ok {
		a.log.Debug("no active source to fall back to")
		return
	}
	a.harvestFrom(src)
}

func (a *actor) fillContainer(t tasks.Task) {
	if a.creep.Store().Used == 0 {
		a.harvestNearest()
		return
	}
	target, ok := a.w.GetObjectByID(t.ID).(world.Structure)
	if !ok {
		a.log.Warnf("container %s not found", t.ID)
		return
	}
	code := a.record(ActionTransfer, target.ID(), a.creep.Transfer(target))
	a.approach(code, target)
}

func (a *actor) upgrade(t tasks.Task) {
	if a.creep.Store().Used == 0 {
		a.harvestNearest()
		return
	}
	room := a.w.Room(t.Location.RoomName)
	if room == nil {
		a.log.Warnf("room %s not visible", t.Location.RoomName)
		return
	}
	ctl := room.Controller()
	if ctl == nil {
		a.log.Warnf("room %s has no controller", t.Location.RoomName)
		return
	}
	a.upgradeController(ctl)
}

func (a *actor) upgradeController(ctl world.Controller) {
	code := a.record(ActionUpgrade, ctl.ID(), a.creep.UpgradeController(ctl))
	a.approach(code, ctl)
}

// deliver hands carried energy to the nearest structure with room for it,
// or to the local controller when nothing has room.
func (a *actor) deliver() {
	room := a.w.Room(a.creep.Pos().RoomName)
	if room == nil {
		a.log.Warnf("room %s not visible", a.creep.Pos().RoomName)
		return
	}
	if target, ok := world.ClosestByRange(a.creep.Pos(), world.EnergySinks(room)); ok {
		code := a.record(ActionTransfer, target.ID(), a.creep.Transfer(target))
		a.approach(code, target)
		return
	}
	ctl := room.Controller()
	if ctl == nil {
		a.log.Debug("nowhere to deliver energy")
		return
	}
	a.upgradeController(ctl)
}
