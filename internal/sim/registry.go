package sim

import (
	"sort"

	"surveyops/internal/clock"
)

// handle is the live cancellation capability of one generator run.
type handle struct {
	runID  string
	cancel clock.Cancel
}

// Registry tracks at most one live run per mission.
type Registry struct {
	handles map[string]handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]handle)}
}

// RunID returns the ID of the mission's live run, if any.
func (r *Registry) RunID(missionID string) (string, bool) {
	h, ok := r.handles[missionID]
	return h.runID, ok
}

// Cancel stops and removes the mission's handle. It reports whether one existed.
func (r *Registry) Cancel(missionID string) bool {
	h, ok := r.handles[missionID]
	if !ok {
		return false
	}
	delete(r.handles, missionID)
	h.cancel()
	return true
}

// Missions returns the missions with a live run, sorted.
func (r *Registry) Missions() []string {
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of live runs.
func (r *Registry) Len() int { return len(r.handles) }

func (r *Registry) install(missionID string, h handle) {
	r.handles[missionID] = h
}

// release drops the handle only if it still belongs to runID, so a finished
// run never removes its replacement.
func (r *Registry) release(missionID, runID string) {
	if h, ok := r.handles[missionID]; ok && h.runID == runID {
		delete(r.handles, missionID)
	}
}
