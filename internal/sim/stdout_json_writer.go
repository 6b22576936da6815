package sim

import (
	"encoding/json"
	"io"
	"os"

	"surveyops/internal/telemetry"
)

// JSONStdoutWriter prints samples as JSON lines.
type JSONStdoutWriter struct {
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to out, or os.Stdout when out is nil.
func NewJSONStdoutWriter(out io.Writer) *JSONStdoutWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONStdoutWriter{enc: json.NewEncoder(out)}
}

// Write outputs a sample in JSON format.
func (w *JSONStdoutWriter) Write(s telemetry.MissionProgressSample) error {
	return w.enc.Encode(s)
}
