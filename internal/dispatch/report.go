package dispatch

import (
	"strings"
	"time"

	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/tasks"
	"github.com/marcus/hivemind/internal/world"
)

// Report summarizes one tick.
type Report struct {
	ID        string        `json:"id"`
	Tick      int64         `json:"tick"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Added     []tasks.Task  `json:"added,omitempty"`
	Evicted   []tasks.Task  `json:"evicted,omitempty"`
	Skipped   int           `json:"skipped,omitempty"` // malformed records dropped
	Tasks     int           `json:"tasks"`             // tasks after prioritizing
	Spawn     *SpawnReport  `json:"spawn,omitempty"`
	Removed   []string      `json:"removed,omitempty"` // creeps whose memory was dropped
	Creeps    []CreepReport `json:"creeps"`
}

// SpawnReport records a spawn attempt.
type SpawnReport struct {
	Spawn  string           `json:"spawn"`
	Name   string           `json:"name"`
	Result world.ResultCode `json:"result"`
}

// CreepReport records what one creep did.
type CreepReport struct {
	Name    string      `json:"name"`
	Working bool        `json:"working"`
	Task    *tasks.Task `json:"task,omitempty"`
	Steps   []Step      `json:"steps,omitempty"`
}

// Idle reports whether the creep took the idle fallback.
func (c CreepReport) Idle() bool {
	return !c.Working || c.Task == nil
}

// Spawned returns the name of the creep spawned this tick, if any.
func (r *Report) Spawned() string {
	if r.Spawn == nil || r.Spawn.Result != world.OK {
		return ""
	}
	return r.Spawn.Name
}

// Record converts the report into a tick history row.
func (r *Report) Record() state.TickRecord {
	return state.TickRecord{
		ID:        r.ID,
		Tick:      r.Tick,
		StartedAt: r.StartedAt,
		Duration:  r.Duration.Milliseconds(),
		Creeps:    len(r.Creeps),
		Tasks:     r.Tasks,
		Added:     len(r.Added),
		Evicted:   len(r.Evicted),
		Skipped:   r.Skipped,
		Spawned:   r.Spawned(),
		Removed:   strings.Join(r.Removed, ","),
	}
}
