package sim

import (
	"log/slog"
	"math/rand"
	"time"

	"surveyops/internal/clock"
	"surveyops/internal/telemetry"

	"github.com/google/uuid"
)

// Default timing of a generator run.
const (
	DefaultTickPeriod      = 3000 * time.Millisecond
	DefaultCompletionDelay = 1000 * time.Millisecond
)

// Feed is the synthetic mission progress source. It owns the progress cache
// and the subscription registry and starts one generator run per subscribed
// mission.
//
// A Feed is not safe for concurrent use: every method must be called on the
// goroutine that drives its Scheduler (a clock.Loop callback or Do, or the
// test goroutine for clock.Manual).
type Feed struct {
	sched    clock.Scheduler
	cache    Cache
	registry *Registry
	gen      *telemetry.Generator
	log      *slog.Logger

	tickPeriod      time.Duration
	completionDelay time.Duration

	params telemetry.Params
	rng    *rand.Rand
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) FeedOption {
	return func(f *Feed) { f.cache = c }
}

// WithRand sets the source of progress and noise randomness.
func WithRand(r *rand.Rand) FeedOption {
	return func(f *Feed) { f.rng = r }
}

// WithParams overrides the survey geometry and sample shaping.
func WithParams(p telemetry.Params) FeedOption {
	return func(f *Feed) { f.params = p }
}

// WithTiming overrides the tick period and completion delay. Non-positive
// values keep the defaults.
func WithTiming(tick, completionDelay time.Duration) FeedOption {
	return func(f *Feed) {
		if tick > 0 {
			f.tickPeriod = tick
		}
		if completionDelay > 0 {
			f.completionDelay = completionDelay
		}
	}
}

// WithLogger sets the feed's logger.
func WithLogger(l *slog.Logger) FeedOption {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFeed creates a feed scheduling its runs on sched.
func NewFeed(sched clock.Scheduler, opts ...FeedOption) *Feed {
	f := &Feed{
		sched:           sched,
		cache:           NewMemoryCache(),
		registry:        NewRegistry(),
		log:             slog.Default(),
		tickPeriod:      DefaultTickPeriod,
		completionDelay: DefaultCompletionDelay,
		params:          telemetry.DefaultParams(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	f.gen = telemetry.NewGenerator(f.params, f.rng)
	return f
}

// Subscribe starts a generator run for missionID that delivers samples to
// onSample. Any run already registered for the mission is cancelled first.
// The returned Cancel stops this run only; it is a no-op once the run has
// finished or been replaced.
func (f *Feed) Subscribe(missionID string, onSample func(telemetry.MissionProgressSample)) clock.Cancel {
	f.registry.Cancel(missionID)

	seed, ok := f.cache.Get(missionID)
	if !ok {
		seed = CacheEntry{}
	}
	r := &run{
		feed:      f,
		missionID: missionID,
		runID:     uuid.NewString(),
		onSample:  onSample,
		progress:  seed.Progress,
		waypoint:  seed.WaypointIndex,
	}
	f.registry.install(missionID, handle{runID: r.runID, cancel: r.cancel})
	r.start()
	f.log.Info("mission subscribed", "mission_id", missionID, "run_id", r.runID, "progress", seed.Progress, "resumed", ok)

	return func() {
		r.cancel()
		f.registry.release(missionID, r.runID)
	}
}

// Unsubscribe cancels the mission's run, if any. The cached progress is kept
// so a later Subscribe resumes where this run stopped.
func (f *Feed) Unsubscribe(missionID string) {
	if f.registry.Cancel(missionID) {
		f.log.Info("mission unsubscribed", "mission_id", missionID)
	}
}

// ClearCache drops the cached progress of a mission.
func (f *Feed) ClearCache(missionID string) {
	f.cache.Clear(missionID)
}

// Active reports whether a run is registered for the mission.
func (f *Feed) Active(missionID string) bool {
	_, ok := f.registry.RunID(missionID)
	return ok
}

// Subscriptions lists the missions with a registered run.
func (f *Feed) Subscriptions() []string {
	return f.registry.Missions()
}

// Cached returns the cached resumption state for a mission.
func (f *Feed) Cached(missionID string) (CacheEntry, bool) {
	return f.cache.Get(missionID)
}

// TickPeriod returns the interval between samples.
func (f *Feed) TickPeriod() time.Duration { return f.tickPeriod }

// CompletionDelay returns the pause between reaching 100% and the final sample.
func (f *Feed) CompletionDelay() time.Duration { return f.completionDelay }
