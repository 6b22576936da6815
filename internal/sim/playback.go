package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"surveyops/internal/telemetry"
)

// ReplayLog replays samples from r to writer. A speed >0 scales the recorded
// gaps between samples (2 plays twice as fast). If speed <= 0, no artificial
// delay is inserted.
func ReplayLog(ctx context.Context, r io.Reader, writer SampleWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var s telemetry.MissionProgressSample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decode sample %d: %w", n+1, err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := s.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return n, ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := writer.Write(s); err != nil {
			return n, err
		}
		n++
		prev = s.Timestamp
	}
}

// ReplayLogFile opens a file and replays its samples.
func ReplayLogFile(ctx context.Context, path string, writer SampleWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
