package stats

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/marcus/hivemind/internal/state"
)

type fakeHistory struct {
	records []state.TickRecord
	err     error
	asked   int
}

func (f *fakeHistory) TickHistory(_ context.Context, n int) ([]state.TickRecord, error) {
	f.asked = n
	return f.records, f.err
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b) != "1500" {
		t.Errorf("Marshal = %s, want 1500", b)
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte("250"), &d); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if d.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", d.Duration)
	}

	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for non-numeric duration")
	}
}

func TestDuration_String(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{12 * time.Millisecond, "12ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tt := range tests {
		if got := (Duration{tt.d}).String(); got != tt.want {
			t.Errorf("Duration(%v).String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestAggregate_NoData(t *testing.T) {
	result := Aggregate(nil)
	if result.TotalTicks != 0 || result.FirstTickAt != nil || result.AvgCreeps != 0 {
		t.Errorf("empty result = %+v", result)
	}
}

func TestAggregate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Most recent first, as TickHistory returns them.
	records := []state.TickRecord{
		{Tick: 12, StartedAt: base.Add(2 * time.Minute), Duration: 6, Creeps: 2, Tasks: 4, Evicted: 1, Removed: "Creep1,Creep2"},
		{Tick: 11, StartedAt: base.Add(time.Minute), Duration: 2, Creeps: 3, Tasks: 4, Skipped: 2},
		{Tick: 10, StartedAt: base, Duration: 4, Creeps: 1, Tasks: 1, Added: 3, Spawned: "Creep10"},
	}

	r := Aggregate(records)

	if r.TotalTicks != 3 || r.FirstTick != 10 || r.LastTick != 12 {
		t.Errorf("ticks = %d [%d..%d]", r.TotalTicks, r.FirstTick, r.LastTick)
	}
	if !r.FirstTickAt.Equal(base) || !r.LastTickAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("range = %v .. %v", r.FirstTickAt, r.LastTickAt)
	}
	if r.TotalDuration.Duration != 12*time.Millisecond || r.AvgTickDuration.Duration != 4*time.Millisecond || r.MaxTickDuration.Duration != 6*time.Millisecond {
		t.Errorf("durations total=%v avg=%v max=%v", r.TotalDuration, r.AvgTickDuration, r.MaxTickDuration)
	}
	if r.AvgCreeps != 2 || r.PeakCreeps != 3 || r.AvgTasks != 3 {
		t.Errorf("population avg=%v peak=%d tasks=%v", r.AvgCreeps, r.PeakCreeps, r.AvgTasks)
	}
	if r.TasksAdded != 3 || r.TasksEvicted != 1 || r.RecordsSkipped != 2 {
		t.Errorf("churn +%d -%d skipped %d", r.TasksAdded, r.TasksEvicted, r.RecordsSkipped)
	}
	if len(r.Spawned) != 1 || r.Spawned[0] != "Creep10" {
		t.Errorf("spawned = %v", r.Spawned)
	}
	if len(r.Forgotten) != 2 || r.Forgotten[1] != "Creep2" {
		t.Errorf("forgotten = %v", r.Forgotten)
	}
	if math.Abs(r.TickRate-1) > 1e-9 {
		t.Errorf("tick rate = %v, want 1 per minute", r.TickRate)
	}
}

func TestCompute(t *testing.T) {
	src := &fakeHistory{records: []state.TickRecord{{Tick: 1, Creeps: 1}}}
	result, err := New(src, 25).Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if src.asked != 25 {
		t.Errorf("asked for %d records, want 25", src.asked)
	}
	if result.TotalTicks != 1 || result.TickRate != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestCompute_SourceError(t *testing.T) {
	boom := errors.New("db gone")
	if _, err := New(&fakeHistory{err: boom}, 0).Compute(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Compute() error = %v, want wrapped %v", err, boom)
	}
}

func TestCompute_VolatileState(t *testing.T) {
	result, err := New(state.NewVolatile(), 10).Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if result.TotalTicks != 0 {
		t.Errorf("volatile state should have no history, got %d ticks", result.TotalTicks)
	}
}
