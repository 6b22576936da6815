// Package monitor bridges mission selection and status to the progress feed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"surveyops/internal/backend"
	"surveyops/internal/clock"
	"surveyops/internal/telemetry"
)

var (
	// ErrUnknownMission is returned for a mission ID the controller has not loaded.
	ErrUnknownMission = errors.New("unknown mission")
	// ErrNoSelection is returned by mission actions when nothing is selected.
	ErrNoSelection = errors.New("no mission selected")
	// ErrActionNotAllowed is returned when the selected mission's status forbids an action.
	ErrActionNotAllowed = errors.New("action not allowed in current status")
)

// SimulationWaypoints is the waypoint count passed to the backend simulator.
const SimulationWaypoints = 20

const maxNotices = 50

// Source is a live progress stream. The synthetic feed implements it today; a
// real streaming client can replace it.
type Source interface {
	Subscribe(missionID string, onSample func(telemetry.MissionProgressSample)) clock.Cancel
	Unsubscribe(missionID string)
}

// ProgressClearer drops resumption state once a mission is finished.
type ProgressClearer interface {
	ClearCache(missionID string)
}

// Backend is the authoritative mission store.
type Backend interface {
	ListMissions(ctx context.Context) ([]backend.Mission, error)
	GetMission(ctx context.Context, id string) (*backend.Mission, error)
	Control(ctx context.Context, id string, action backend.Action) (*backend.Mission, error)
	Simulate(ctx context.Context, id string, waypointCount int) (string, error)
	FlightPath(ctx context.Context, missionID string) (*backend.FlightPath, error)
}

// SampleSink receives every sample the controller relays.
type SampleSink interface {
	Write(telemetry.MissionProgressSample) error
}

// NoticeSink receives user-facing notices. Sinks attached with Attach that
// also implement NoticeSink get both.
type NoticeSink interface {
	Notify(Notice)
}

// NoticeLevel classifies a notice.
type NoticeLevel string

// Notice levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message for the operator.
type Notice struct {
	MissionID string      `json:"missionId,omitempty"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	At        time.Time   `json:"at"`
}

// Snapshot is a copy of the controller's UI-bound state.
type Snapshot struct {
	Missions   []backend.Mission                `json:"missions"`
	Selected   *backend.Mission                 `json:"selected,omitempty"`
	Subscribed bool                             `json:"subscribed"`
	Latest     *telemetry.MissionProgressSample `json:"latest,omitempty"`
	Notices    []Notice                         `json:"notices"`
	// FlightPath is the selected mission's planned path, when the backend has one.
	FlightPath *backend.FlightPath `json:"flightPath,omitempty"`
}

// Options configures a Controller.
type Options struct {
	Runner  clock.Runner
	Source  Source
	Clearer ProgressClearer
	Backend Backend
	Logger  *slog.Logger
	Now     func() time.Time
}

// Controller starts and stops subscriptions as the operator selects missions
// and mission statuses change. Its state lives on the runner's goroutine;
// exported methods marshal onto it.
type Controller struct {
	runner  clock.Runner
	source  Source
	clearer ProgressClearer
	backend Backend
	log     *slog.Logger
	now     func() time.Time

	sinks    []SampleSink
	missions map[string]backend.Mission
	order    []string
	selected string
	// subscribed is the mission with a live run started by the controller.
	subscribed string
	notified   bool
	latest     map[string]telemetry.MissionProgressSample
	// paths holds fetched flight paths; a nil entry means the backend has none.
	paths   map[string]*backend.FlightPath
	notices []Notice
}

// NewController creates a controller. Runner, Source and Backend are required.
func NewController(o Options) *Controller {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Controller{
		runner:   o.Runner,
		source:   o.Source,
		clearer:  o.Clearer,
		backend:  o.Backend,
		log:      o.Logger,
		now:      o.Now,
		missions: make(map[string]backend.Mission),
		latest:   make(map[string]telemetry.MissionProgressSample),
		paths:    make(map[string]*backend.FlightPath),
	}
}

// Attach adds a sink for relayed samples (and notices, if it implements NoticeSink).
func (c *Controller) Attach(ctx context.Context, sink SampleSink) error {
	return c.runner.Do(ctx, func() { c.sinks = append(c.sinks, sink) })
}

// Refresh reloads the mission list from the backend and reconciles the
// selected mission's subscription with its current status. With nothing
// selected, the first mission is selected.
func (c *Controller) Refresh(ctx context.Context) error {
	missions, err := c.backend.ListMissions(ctx)
	if err != nil {
		_ = c.runner.Do(ctx, func() { c.notice("", NoticeError, "Failed to fetch missions") })
		return err
	}
	if err := c.runner.Do(ctx, func() { c.applyMissions(missions) }); err != nil {
		return err
	}
	c.syncFlightPath(ctx)
	return nil
}

// Select makes missionID the monitored mission.
func (c *Controller) Select(ctx context.Context, missionID string) error {
	var err error
	if doErr := c.runner.Do(ctx, func() { err = c.selectMission(missionID) }); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	c.syncFlightPath(ctx)
	return nil
}

// Deselect stops monitoring the selected mission.
func (c *Controller) Deselect(ctx context.Context) error {
	return c.runner.Do(ctx, c.deselect)
}

// StatusChanged records an authoritative status change for a mission.
func (c *Controller) StatusChanged(ctx context.Context, missionID string, status telemetry.MissionStatus) error {
	var err error
	doErr := c.runner.Do(ctx, func() {
		m, ok := c.missions[missionID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownMission, missionID)
			return
		}
		m.Status = status
		c.updateMission(m)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Control applies action to the selected mission through the backend, then
// reloads the mission. Start or resume into ACTIVE restarts the live feed;
// complete or abort drops the cached progress.
func (c *Controller) Control(ctx context.Context, action backend.Action) (*backend.Mission, error) {
	return c.control(ctx, "", action)
}

// ControlMission selects missionID and applies action to it. Selection and the
// status check happen in one step, so a concurrent Select cannot redirect the
// action to another mission.
func (c *Controller) ControlMission(ctx context.Context, missionID string, action backend.Action) (*backend.Mission, error) {
	if missionID == "" {
		return nil, ErrNoSelection
	}
	return c.control(ctx, missionID, action)
}

func (c *Controller) control(ctx context.Context, missionID string, action backend.Action) (*backend.Mission, error) {
	id, status, err := c.target(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if missionID != "" {
		c.syncFlightPath(ctx)
	}
	if !action.Allowed(status) {
		return nil, fmt.Errorf("%w: cannot %s a %s mission", ErrActionNotAllowed, action, status)
	}
	if _, err := c.backend.Control(ctx, id, action); err != nil {
		msg := fmt.Sprintf("Failed to %s mission", action)
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		_ = c.runner.Do(ctx, func() { c.notice(id, NoticeError, msg) })
		return nil, err
	}
	updated, err := c.backend.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}

	doErr := c.runner.Do(ctx, func() {
		restart := (action == backend.ActionStart || action == backend.ActionResume) &&
			updated.Status == telemetry.MissionActive && c.selected == id
		if restart {
			delete(c.latest, id)
		}
		c.updateMission(*updated)
		if restart && c.subscribed != id {
			c.subscribe(id)
		}
		if action == backend.ActionComplete || action == backend.ActionAbort {
			c.clearProgress(id)
		}
		c.notice(id, NoticeSuccess, successMessage(action))
	})
	if doErr != nil {
		return nil, doErr
	}
	return updated, nil
}

// Simulate asks the backend to run its own simulation for the selected mission.
func (c *Controller) Simulate(ctx context.Context) (string, error) {
	return c.simulate(ctx, "")
}

// SimulateMission selects missionID and starts a backend simulation for it.
func (c *Controller) SimulateMission(ctx context.Context, missionID string) (string, error) {
	if missionID == "" {
		return "", ErrNoSelection
	}
	return c.simulate(ctx, missionID)
}

func (c *Controller) simulate(ctx context.Context, missionID string) (string, error) {
	id, status, err := c.target(ctx, missionID)
	if err != nil {
		return "", err
	}
	if missionID != "" {
		c.syncFlightPath(ctx)
	}
	if status != telemetry.MissionActive {
		return "", fmt.Errorf("%w: simulate requires ACTIVE, mission is %s", ErrActionNotAllowed, status)
	}
	msg, err := c.backend.Simulate(ctx, id, SimulationWaypoints)
	if err != nil {
		return "", err
	}
	_ = c.runner.Do(ctx, func() { c.notice(id, NoticeSuccess, "Simulation started successfully") })
	return msg, nil
}

// target resolves the mission an action applies to and its status in a single
// hop. A non-empty missionID is selected first.
func (c *Controller) target(ctx context.Context, missionID string) (string, telemetry.MissionStatus, error) {
	var (
		id     string
		status telemetry.MissionStatus
		err    error
	)
	if doErr := c.runner.Do(ctx, func() {
		if missionID != "" {
			if err = c.selectMission(missionID); err != nil {
				return
			}
		}
		id = c.selected
		status = c.missions[id].Status
	}); doErr != nil {
		return "", "", doErr
	}
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", ErrNoSelection
	}
	return id, status, nil
}

// syncFlightPath loads the selected mission's flight path if it has not been
// fetched yet. Failures are logged; the path is informational.
func (c *Controller) syncFlightPath(ctx context.Context) {
	var id string
	if err := c.runner.Do(ctx, func() {
		if _, fetched := c.paths[c.selected]; !fetched {
			id = c.selected
		}
	}); err != nil || id == "" {
		return
	}
	path, err := c.backend.FlightPath(ctx, id)
	switch {
	case backend.IsNotFound(err):
		path = nil
	case err != nil:
		c.log.Warn("flight path fetch failed", "mission_id", id, "err", err)
		return
	}
	_ = c.runner.Do(ctx, func() {
		if _, known := c.missions[id]; known {
			c.paths[id] = path
		}
	})
}

func successMessage(a backend.Action) string {
	switch a {
	case backend.ActionComplete:
		return "Mission completed successfully"
	case backend.ActionAbort:
		return "Mission aborted"
	case backend.ActionStart:
		return "Mission started successfully"
	case backend.ActionPause:
		return "Mission paused successfully"
	default:
		return "Mission resumed successfully"
	}
}

// The methods below run on the runner's goroutine.

func (c *Controller) applyMissions(missions []backend.Mission) {
	seen := make(map[string]bool, len(missions))
	c.order = c.order[:0]
	for _, m := range missions {
		seen[m.ID] = true
		c.order = append(c.order, m.ID)
		if _, known := c.missions[m.ID]; !known {
			c.missions[m.ID] = m
			continue
		}
		c.updateMission(m)
	}
	for id := range c.missions {
		if !seen[id] {
			if id == c.selected {
				c.deselect()
			}
			delete(c.missions, id)
			delete(c.latest, id)
		}
	}
	if c.selected == "" && len(c.order) > 0 {
		_ = c.selectMission(c.order[0])
	}
}

func (c *Controller) selectMission(id string) error {
	m, ok := c.missions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMission, id)
	}
	if c.selected == id {
		return nil
	}
	c.deselect()
	c.selected = id
	c.log.Info("mission selected", "mission_id", id, "status", m.Status)
	if m.Status == telemetry.MissionActive {
		c.subscribe(id)
	}
	return nil
}

func (c *Controller) deselect() {
	if c.selected == "" {
		return
	}
	c.unsubscribe()
	c.log.Info("mission deselected", "mission_id", c.selected)
	c.selected = ""
}

// updateMission stores m and reconciles the subscription with its status.
func (c *Controller) updateMission(m backend.Mission) {
	prev := c.missions[m.ID]
	c.missions[m.ID] = m
	if prev.Status != m.Status {
		c.log.Info("mission status changed", "mission_id", m.ID, "from", prev.Status, "to", m.Status)
	}
	if m.Status.Terminal() && !prev.Status.Terminal() {
		c.clearProgress(m.ID)
	}
	if m.ID != c.selected {
		return
	}
	// Only a transition into ACTIVE subscribes, so a finished run is not
	// restarted by a refresh.
	switch {
	case m.Status == telemetry.MissionActive && prev.Status != telemetry.MissionActive:
		c.subscribe(m.ID)
	case m.Status != telemetry.MissionActive && c.subscribed == m.ID:
		c.unsubscribe()
	}
}

func (c *Controller) subscribe(id string) {
	c.subscribed = id
	c.notified = false
	// The cancel handle is not kept; unsubscribe releases the run by mission ID.
	c.source.Subscribe(id, func(s telemetry.MissionProgressSample) { c.onSample(id, s) })
}

func (c *Controller) unsubscribe() {
	if c.subscribed == "" {
		return
	}
	c.source.Unsubscribe(c.subscribed)
	c.subscribed = ""
}

func (c *Controller) onSample(id string, s telemetry.MissionProgressSample) {
	if c.subscribed != id {
		return
	}
	c.latest[id] = s
	for _, sink := range c.sinks {
		if err := sink.Write(s); err != nil {
			c.log.Warn("sample sink failed", "mission_id", id, "err", err)
		}
	}
	// Completion stays an explicit operator action.
	if s.ProgressPercentage >= 100 && c.missions[id].Status == telemetry.MissionActive && !c.notified {
		c.notified = true
		c.notice(id, NoticeInfo, "Mission simulation complete! You can now complete the mission using the control panel.")
	}
	if s.Status == telemetry.SampleCompleted {
		c.subscribed = ""
	}
}

func (c *Controller) clearProgress(id string) {
	if c.clearer != nil {
		c.clearer.ClearCache(id)
	}
}

func (c *Controller) notice(id string, level NoticeLevel, msg string) {
	n := Notice{MissionID: id, Level: level, Message: msg, At: c.now()}
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
	for _, sink := range c.sinks {
		if ns, ok := sink.(NoticeSink); ok {
			ns.Notify(n)
		}
	}
	c.log.Info("notice", "mission_id", id, "level", level, "message", msg)
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Missions:   make([]backend.Mission, 0, len(c.order)),
		Subscribed: c.subscribed != "",
		Notices:    append([]Notice(nil), c.notices...),
	}
	for _, id := range c.order {
		s.Missions = append(s.Missions, c.missions[id])
	}
	if c.selected != "" {
		m := c.missions[c.selected]
		s.Selected = &m
		if l, ok := c.latest[c.selected]; ok {
			s.Latest = &l
		}
		if p := c.paths[c.selected]; p != nil {
			cp := *p
			s.FlightPath = &cp
		}
	}
	return s
}
