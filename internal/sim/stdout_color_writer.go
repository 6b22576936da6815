// ColorStdoutWriter prints human-friendly, colorized samples to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"surveyops/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var missionPalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// lowBattery is the level below which the battery reading is highlighted.
const lowBattery = 30

// ColorStdoutWriter prints samples using ANSI colors.
type ColorStdoutWriter struct {
	out           io.Writer
	params        telemetry.Params
	tick          time.Duration
	once          sync.Once
	missionColors map[string]string
	colorIdx      int
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to out, or os.Stdout
// when out is nil. The generator settings are printed once before the first sample.
func NewColorStdoutWriter(out io.Writer, p telemetry.Params, tick time.Duration) *ColorStdoutWriter {
	if out == nil {
		out = os.Stdout
	}
	return &ColorStdoutWriter{
		out:           out,
		params:        p,
		tick:          tick,
		missionColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) missionColor(id string) string {
	if c, ok := w.missionColors[id]; ok {
		return c
	}
	c := missionPalette[w.colorIdx%len(missionPalette)]
	w.missionColors[id] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	fmt.Fprintln(w.out, "Generator Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Tick:\t%s\n", w.tick)
	fmt.Fprintf(tw, "Waypoints:\t%d (%d per row)\n", w.params.WaypointCount, w.params.Columns)
	fmt.Fprintf(tw, "Origin:\t%.5f, %.5f\n", w.params.OriginLat, w.params.OriginLng)
	fmt.Fprintf(tw, "Mission Distance (m):\t%.0f\n", w.params.TotalDistanceM)
	fmt.Fprintf(tw, "Battery Floor:\t%d\n", w.params.BatteryFloor)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single sample in colorized format.
func (w *ColorStdoutWriter) Write(s telemetry.MissionProgressSample) error {
	w.once.Do(w.printOverview)

	statusColor := colorCyan
	if s.Status == telemetry.SampleCompleted {
		statusColor = colorGreen
	}
	battColor := colorCyan
	if s.BatteryLevel < lowBattery {
		battColor = colorYellow
	}

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, s.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%smission=%s%s ", w.missionColor(s.MissionID), s.MissionID, colorReset)
	fmt.Fprintf(w.out, "%sprogress=%3d%%%s ", colorBlue, s.ProgressPercentage, colorReset)
	fmt.Fprintf(w.out, "%swp=%d%s ", colorMagenta, s.CurrentWaypointIndex, colorReset)
	fmt.Fprintf(w.out, "%slat=%.5f%s ", colorGreen, s.Position.Lat, colorReset)
	fmt.Fprintf(w.out, "%slng=%.5f%s ", colorYellow, s.Position.Lng, colorReset)
	fmt.Fprintf(w.out, "%salt=%.1f%s ", colorMagenta, s.Position.Alt, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%d%s ", battColor, s.BatteryLevel, colorReset)
	fmt.Fprintf(w.out, "%sdist=%.0fm%s ", colorGray, s.DistanceCovered, colorReset)
	fmt.Fprintf(w.out, "%sspd=%.1f%s ", colorYellow, s.Speed, colorReset)
	fmt.Fprintf(w.out, "%sstatus=%s%s", statusColor, s.Status, colorReset)
	if s.Status == telemetry.SampleCompleted {
		fmt.Fprintf(w.out, " %s(simulation finished)%s", colorRed, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple samples.
func (w *ColorStdoutWriter) WriteBatch(samples []telemetry.MissionProgressSample) error {
	for _, s := range samples {
		_ = w.Write(s)
	}
	return nil
}
