package sim

import "surveyops/internal/telemetry"

// SampleWriter is an interface to support different sample outputs.
type SampleWriter interface {
	Write(telemetry.MissionProgressSample) error
}

// Optional: writers may support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.MissionProgressSample) error
}

// WriteBatch sends samples to w, using batch mode when supported.
func WriteBatch(w SampleWriter, samples []telemetry.MissionProgressSample) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(samples)
	}
	for _, s := range samples {
		if err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}
