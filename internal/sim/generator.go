package sim

import (
	"surveyops/internal/clock"
	"surveyops/internal/telemetry"
)

// runState is the lifecycle of one generator run.
type runState int

const (
	stateRunning runState = iota
	stateCompleting
	stateStopped
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateCompleting:
		return "completing"
	default:
		return "stopped"
	}
}

// run produces samples for one mission until it completes or is cancelled.
type run struct {
	feed      *Feed
	missionID string
	runID     string
	onSample  func(telemetry.MissionProgressSample)

	state    runState
	progress float64
	waypoint int
	last     telemetry.MissionProgressSample

	stopTick  clock.Cancel
	stopDelay clock.Cancel
}

func (r *run) start() {
	r.stopTick = r.feed.sched.Every(r.feed.tickPeriod, r.tick)
}

// tick advances progress, persists it, and emits an ACTIVE sample.
func (r *run) tick() {
	if r.state != stateRunning {
		return
	}
	f := r.feed
	r.progress = f.gen.Advance(r.progress)
	r.waypoint = f.gen.WaypointIndex(r.progress)
	sample := f.gen.Sample(r.missionID, r.progress, f.sched.Now())
	f.cache.Set(r.missionID, CacheEntry{Progress: r.progress, WaypointIndex: r.waypoint})
	r.last = sample

	r.onSample(sample)

	// The callback may have cancelled or replaced this run.
	if r.state != stateRunning || r.progress < 100 {
		return
	}
	r.state = stateCompleting
	r.stopTick()
	f.log.Debug("mission run completing", "mission_id", r.missionID, "run_id", r.runID)
	r.stopDelay = f.sched.After(f.completionDelay, r.complete)
}

// complete emits the terminal sample and drops the run's bookkeeping.
func (r *run) complete() {
	if r.state != stateCompleting {
		return
	}
	r.state = stateStopped
	final := r.last
	final.ProgressPercentage = 100
	final.Status = telemetry.SampleCompleted

	r.onSample(final)

	r.feed.registry.release(r.missionID, r.runID)
	r.feed.cache.Clear(r.missionID)
	r.feed.log.Info("mission run completed", "mission_id", r.missionID, "run_id", r.runID)
}

// cancel stops the run without emitting and leaves the cache intact.
func (r *run) cancel() {
	if r.state == stateStopped {
		return
	}
	r.state = stateStopped
	if r.stopTick != nil {
		r.stopTick()
	}
	if r.stopDelay != nil {
		r.stopDelay()
	}
	r.feed.log.Debug("mission run cancelled", "mission_id", r.missionID, "run_id", r.runID, "progress", r.progress)
}
