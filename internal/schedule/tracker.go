package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// Profile is a worker's normalized skill view: lowercased skill names with
// proficiency scores, plus the top-N skills as specialties.
type Profile struct {
	Proficiency map[string]float64
	Specialties []string
}

// BuildProfile derives a Profile from a worker record.
func BuildProfile(w plan.Worker, specialtyCount int) Profile {
	p := Profile{Proficiency: make(map[string]float64, len(w.Skills))}

	for _, sk := range w.Skills {
		name := strings.ToLower(strings.TrimSpace(sk.Name))
		if name == "" {
			continue
		}
		if sk.Proficiency > p.Proficiency[name] {
			p.Proficiency[name] = sk.Proficiency
		}
	}

	names := make([]string, 0, len(p.Proficiency))
	for name := range p.Proficiency {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if p.Proficiency[names[i]] != p.Proficiency[names[j]] {
			return p.Proficiency[names[i]] > p.Proficiency[names[j]]
		}
		return names[i] < names[j]
	})
	if specialtyCount > 0 && len(names) > specialtyCount {
		names = names[:specialtyCount]
	}
	p.Specialties = names
	return p
}

// HasSpecialty reports whether name is among the worker's specialties.
func (p Profile) HasSpecialty(name string) bool {
	name = strings.ToLower(name)
	for _, s := range p.Specialties {
		if s == name {
			return true
		}
	}
	return false
}

// workerState is the tracker's per-worker record.
type workerState struct {
	Worker     plan.Worker
	Profile    Profile
	Effective  float64
	Assigned   float64
	TaskIDs    []string
	SubtaskIDs []string

	// categories counts assigned work per category, feeding the history
	// score (familiarity with similar work grows as related tasks land).
	categories map[string]int
}

// Remaining returns the worker's unassigned capacity.
func (ws *workerState) Remaining() float64 {
	return ws.Effective - ws.Assigned
}

// Tracker is the per-pass workload tracker. It maintains the invariant
// remaining = effective − assigned, and rejects any assignment that would
// push a worker's remaining capacity negative.
type Tracker struct {
	states map[string]*workerState
	order  []string // worker IDs in roster order, for deterministic iteration
}

// NewTracker builds a Tracker for the roster. Workers with a duplicate ID
// are rejected earlier at ingestion; here the last record would win.
func NewTracker(workers []plan.Worker, cfg Config) (*Tracker, error) {
	if len(workers) == 0 {
		return nil, errors.ErrEmptyRoster
	}

	t := &Tracker{states: make(map[string]*workerState, len(workers))}
	for _, w := range workers {
		if w.ID == "" {
			continue
		}
		t.states[w.ID] = &workerState{
			Worker:     w,
			Profile:    BuildProfile(w, cfg.SpecialtyCount),
			Effective:  w.EffectiveHours(),
			categories: make(map[string]int),
		}
		t.order = append(t.order, w.ID)
	}
	if len(t.order) == 0 {
		return nil, errors.ErrEmptyRoster
	}
	return t, nil
}

// WorkerIDs returns the tracked worker IDs in roster order.
func (t *Tracker) WorkerIDs() []string {
	return t.order
}

// state returns the tracked record for a worker ID, or nil.
func (t *Tracker) state(id string) *workerState {
	return t.states[id]
}

// Assign debits hours from the worker and records the task or subtask ID.
// It fails if the worker is unknown or the assignment would exceed capacity.
func (t *Tracker) Assign(workerID, unitID string, hours float64, subtask bool, category string) error {
	ws := t.states[workerID]
	if ws == nil {
		return fmt.Errorf("unknown worker %q", workerID)
	}
	if ws.Remaining() < hours {
		return fmt.Errorf("%w: %s has %.1fh remaining, task needs %.1fh",
			errors.ErrNoCapacity, workerID, ws.Remaining(), hours)
	}

	ws.Assigned += hours
	if subtask {
		ws.SubtaskIDs = append(ws.SubtaskIDs, unitID)
	} else {
		ws.TaskIDs = append(ws.TaskIDs, unitID)
	}
	if category != "" {
		ws.categories[strings.ToLower(category)]++
	}
	return nil
}

// Unassign credits hours back to the worker and forgets the unit ID. Used
// during rebalancing, which debits the source before crediting the target.
func (t *Tracker) Unassign(workerID, unitID string, hours float64, subtask bool, category string) {
	ws := t.states[workerID]
	if ws == nil {
		return
	}

	ws.Assigned -= hours
	if ws.Assigned < 0 {
		ws.Assigned = 0
	}
	if subtask {
		ws.SubtaskIDs = removeID(ws.SubtaskIDs, unitID)
	} else {
		ws.TaskIDs = removeID(ws.TaskIDs, unitID)
	}
	if category != "" {
		key := strings.ToLower(category)
		if ws.categories[key] > 0 {
			ws.categories[key]--
		}
	}
}

// AssignedHours returns every worker's assigned hours keyed by ID.
func (t *Tracker) AssignedHours() map[string]float64 {
	out := make(map[string]float64, len(t.order))
	for _, id := range t.order {
		out[id] = t.states[id].Assigned
	}
	return out
}

// removeID removes the first occurrence of id from ids.
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
