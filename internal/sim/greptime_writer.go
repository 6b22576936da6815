package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"surveyops/internal/telemetry"
)

const defaultGreptimePort = 4001

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes samples to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client  greptimeClient
	table   string
	timeout time.Duration
	log     *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint (host or host:port) and writes to
// table in database. An empty table uses telemetry.ProgressTableName.
func NewGreptimeDBWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create greptime client: %w", err)
	}
	if tableName == "" {
		tableName = telemetry.ProgressTableName
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("greptime writer ready", "host", host, "port", port, "database", database, "table", tableName)
	return &GreptimeDBWriter{client: client, table: tableName, timeout: 5 * time.Second, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// bare host
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime port %q: %w", portStr, err)
	}
	return host, port, nil
}

// Write inserts a single sample.
func (w *GreptimeDBWriter) Write(s telemetry.MissionProgressSample) error {
	return w.WriteBatch([]telemetry.MissionProgressSample{s})
}

// WriteBatch inserts multiple samples in one request.
func (w *GreptimeDBWriter) WriteBatch(samples []telemetry.MissionProgressSample) error {
	if len(samples) == 0 {
		return nil
	}
	tbl, err := w.progressTable(samples)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptime write failed", "table", w.table, "rows", len(samples), "err", err)
		return fmt.Errorf("greptime write: %w", err)
	}
	w.log.Debug("greptime write", "table", w.table, "rows", len(samples))
	return nil
}

func (w *GreptimeDBWriter) progressTable(samples []telemetry.MissionProgressSample) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("drone_id", types.STRING); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"lat", types.FLOAT64},
		{"lng", types.FLOAT64},
		{"alt", types.FLOAT64},
		{"battery_level", types.INT64},
		{"progress_percentage", types.INT64},
		{"status", types.STRING},
		{"waypoint_index", types.INT64},
		{"distance_covered", types.FLOAT64},
		{"speed", types.FLOAT64},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, s := range samples {
		err := tbl.AddRow(
			s.MissionID,
			s.DroneID,
			s.Position.Lat,
			s.Position.Lng,
			s.Position.Alt,
			int64(s.BatteryLevel),
			int64(s.ProgressPercentage),
			string(s.Status),
			int64(s.CurrentWaypointIndex),
			s.DistanceCovered,
			s.Speed,
			s.Timestamp,
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
