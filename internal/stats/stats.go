// Package stats computes aggregate statistics from the colony's tick history.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marcus/hivemind/internal/state"
)

// Duration wraps time.Duration for clean JSON serialization as milliseconds.
type Duration struct {
	time.Duration
}

// MarshalJSON serializes Duration as integer milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Milliseconds())
}

// UnmarshalJSON deserializes Duration from integer milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

// String returns a human-readable duration string.
func (d Duration) String() string {
	dur := d.Duration
	if dur < time.Second {
		return fmt.Sprintf("%dms", dur.Milliseconds())
	}
	if dur < time.Minute {
		return fmt.Sprintf("%.1fs", dur.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(dur.Minutes()), int(dur.Seconds())%60)
}

// StatsResult holds all computed statistics, JSON-serializable.
type StatsResult struct {
	// Tick overview
	TotalTicks  int        `json:"total_ticks"`
	FirstTick   int64      `json:"first_tick"`
	LastTick    int64      `json:"last_tick"`
	FirstTickAt *time.Time `json:"first_tick_at,omitempty"`
	LastTickAt  *time.Time `json:"last_tick_at,omitempty"`
	TickRate    float64    `json:"ticks_per_minute"`

	// Processing time
	TotalDuration   Duration `json:"total_duration"`
	AvgTickDuration Duration `json:"avg_tick_duration"`
	MaxTickDuration Duration `json:"max_tick_duration"`

	// Population
	AvgCreeps  float64  `json:"avg_creeps"`
	PeakCreeps int      `json:"peak_creeps"`
	Spawned    []string `json:"spawned,omitempty"`
	Forgotten  []string `json:"forgotten,omitempty"`

	// Task churn
	AvgTasks       float64 `json:"avg_tasks"`
	TasksAdded     int     `json:"tasks_added"`
	TasksEvicted   int     `json:"tasks_evicted"`
	RecordsSkipped int     `json:"records_skipped"`
}

// HistorySource provides tick records, most recent first.
type HistorySource interface {
	TickHistory(ctx context.Context, n int) ([]state.TickRecord, error)
}

// Stats computes aggregate statistics from a history source.
type Stats struct {
	source HistorySource
	limit  int
}

// New creates a Stats instance over the last limit ticks. A limit of zero
// uses all retained history.
func New(source HistorySource, limit int) *Stats {
	return &Stats{source: source, limit: limit}
}

// Compute aggregates the tick history into a StatsResult.
func (s *Stats) Compute(ctx context.Context) (*StatsResult, error) {
	records, err := s.source.TickHistory(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return Aggregate(records), nil
}

// Aggregate summarizes records in any order.
func Aggregate(records []state.TickRecord) *StatsResult {
	result := &StatsResult{}
	if len(records) == 0 {
		return result
	}

	sorted := make([]state.TickRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tick < sorted[j].Tick
	})

	result.TotalTicks = len(sorted)
	result.FirstTick = sorted[0].Tick
	result.LastTick = sorted[len(sorted)-1].Tick

	var creeps, tasks int
	for _, r := range sorted {
		if !r.StartedAt.IsZero() {
			if result.FirstTickAt == nil || r.StartedAt.Before(*result.FirstTickAt) {
				t := r.StartedAt
				result.FirstTickAt = &t
			}
			if result.LastTickAt == nil || r.StartedAt.After(*result.LastTickAt) {
				t := r.StartedAt
				result.LastTickAt = &t
			}
		}

		d := time.Duration(r.Duration) * time.Millisecond
		result.TotalDuration.Duration += d
		if d > result.MaxTickDuration.Duration {
			result.MaxTickDuration.Duration = d
		}

		creeps += r.Creeps
		if r.Creeps > result.PeakCreeps {
			result.PeakCreeps = r.Creeps
		}
		tasks += r.Tasks

		result.TasksAdded += r.Added
		result.TasksEvicted += r.Evicted
		result.RecordsSkipped += r.Skipped

		if r.Spawned != "" {
			result.Spawned = append(result.Spawned, r.Spawned)
		}
		if r.Removed != "" {
			result.Forgotten = append(result.Forgotten, strings.Split(r.Removed, ",")...)
		}
	}

	n := float64(result.TotalTicks)
	result.AvgTickDuration = Duration{time.Duration(int64(result.TotalDuration.Duration) / int64(result.TotalTicks))}
	result.AvgCreeps = float64(creeps) / n
	result.AvgTasks = float64(tasks) / n

	if result.FirstTickAt != nil && result.LastTickAt != nil && result.TotalTicks > 1 {
		if span := result.LastTickAt.Sub(*result.FirstTickAt); span > 0 {
			result.TickRate = float64(result.TotalTicks-1) / span.Minutes()
		}
	}

	return result
}
