package sim

import (
	"fmt"
	"io"
	"os"

	"surveyops/internal/telemetry"

	"github.com/schollz/progressbar/v3"
)

// BarWriter renders one terminal progress bar per mission.
type BarWriter struct {
	out  io.Writer
	bars map[string]*progressbar.ProgressBar
}

// NewBarWriter creates a BarWriter drawing to out, or os.Stderr when out is nil.
func NewBarWriter(out io.Writer) *BarWriter {
	if out == nil {
		out = os.Stderr
	}
	return &BarWriter{out: out, bars: make(map[string]*progressbar.ProgressBar)}
}

func (w *BarWriter) bar(missionID string) *progressbar.ProgressBar {
	if b, ok := w.bars[missionID]; ok {
		return b
	}
	b := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w.out),
		progressbar.OptionSetDescription("mission "+missionID),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w.out) }),
	)
	w.bars[missionID] = b
	return b
}

// Write moves the mission's bar to the sample's progress.
func (w *BarWriter) Write(s telemetry.MissionProgressSample) error {
	b := w.bar(s.MissionID)
	if s.Status == telemetry.SampleCompleted {
		delete(w.bars, s.MissionID)
		return b.Finish()
	}
	b.Describe(fmt.Sprintf("mission %s wp %d batt %d%%", s.MissionID, s.CurrentWaypointIndex, s.BatteryLevel))
	return b.Set(s.ProgressPercentage)
}

// Close finishes any bars still in flight.
func (w *BarWriter) Close() error {
	for id, b := range w.bars {
		_ = b.Exit()
		delete(w.bars, id)
	}
	return nil
}
