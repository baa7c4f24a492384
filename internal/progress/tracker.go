package progress

import (
	"sort"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/sync"
)

type trackedTask struct {
	event     ports.TaskEvent
	startedAt time.Time
}

// Tracker holds the tasks the host reports as running.
type Tracker struct {
	mu    sync.Mutex
	tasks map[string]*trackedTask
	last  []events.ProgressTask

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[string]*trackedTask),
		now:   time.Now,
	}
}

// Start records a task start. Restarting a known id keeps its start time.
func (t *Tracker) Start(ev ports.TaskEvent) {
	if ev.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.tasks[ev.ID]; ok {
		existing.event = ev
		return
	}
	t.tasks[ev.ID] = &trackedTask{event: ev, startedAt: t.now()}
}

// Update refreshes a task. A task reported as no longer running is removed;
// an update for an unknown running task starts tracking it.
func (t *Tracker) Update(ev ports.TaskEvent) {
	if !ev.Running {
		t.Finish(ev.ID)
		return
	}
	t.Start(ev)
}

// Finish stops tracking a task. Unknown ids are ignored.
func (t *Tracker) Finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, id)
}

// Len returns the number of tracked tasks, classified or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Snapshot returns the classified tasks sorted by start time.
func (t *Tracker) Snapshot() []events.ProgressTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []events.ProgressTask {
	out := make([]events.ProgressTask, 0, len(t.tasks))
	for id, tt := range t.tasks {
		kind, ok := Classify(tt.event.Title, tt.event.Detail)
		if !ok {
			continue
		}
		task := events.ProgressTask{
			ID:            id,
			Kind:          string(kind),
			Title:         tt.event.Title,
			Detail:        tt.event.Detail,
			Indeterminate: tt.event.Indeterminate,
			ProjectName:   tt.event.ProjectName,
			StartedAt:     tt.startedAt.UnixMilli(),
		}
		if !tt.event.Indeterminate {
			f := clampFraction(tt.event.Fraction)
			task.Fraction = &f
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Poll returns the current snapshot and whether it should be sent: true when
// force is set or the snapshot differs from the last one reported. The
// baseline is the empty list.
func (t *Tracker) Poll(force bool) ([]events.ProgressTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.snapshotLocked()
	changed := force || !equalTasks(snap, t.last)
	if changed {
		t.last = snap
	}
	return snap, changed
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func equalTasks(a, b []events.ProgressTask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Kind != y.Kind || x.Title != y.Title || x.Detail != y.Detail ||
			x.Indeterminate != y.Indeterminate || x.ProjectName != y.ProjectName || x.StartedAt != y.StartedAt {
			return false
		}
		if (x.Fraction == nil) != (y.Fraction == nil) {
			return false
		}
		if x.Fraction != nil && *x.Fraction != *y.Fraction {
			return false
		}
	}
	return true
}
