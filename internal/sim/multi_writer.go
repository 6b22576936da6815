package sim

import "surveyops/internal/telemetry"

// MultiWriter fans samples out to multiple writers.
type MultiWriter struct {
	writers []SampleWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...SampleWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends a sample to all writers, stopping at the first error.
func (mw *MultiWriter) Write(s telemetry.MissionProgressSample) error {
	for _, w := range mw.writers {
		if err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple samples to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(samples []telemetry.MissionProgressSample) error {
	for _, w := range mw.writers {
		if err := WriteBatch(w, samples); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var first error
	for _, w := range mw.writers {
		c, ok := w.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
