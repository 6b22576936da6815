package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"surveyops/internal/telemetry"
)

// FileWriter appends samples to a JSONL log that ReplayLogFile can read back.
type FileWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewFileWriter creates (or truncates) the log at path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write logs a single sample and flushes it.
func (fw *FileWriter) Write(s telemetry.MissionProgressSample) error {
	if err := fw.enc.Encode(s); err != nil {
		return err
	}
	return fw.buf.Flush()
}

// WriteBatch logs multiple samples with a single flush.
func (fw *FileWriter) WriteBatch(samples []telemetry.MissionProgressSample) error {
	for _, s := range samples {
		if err := fw.enc.Encode(s); err != nil {
			return err
		}
	}
	return fw.buf.Flush()
}

// Close flushes and closes the file.
func (fw *FileWriter) Close() error {
	if err := fw.buf.Flush(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}
