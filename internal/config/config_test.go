package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const schemaPath = "../../schemas/monitor.cue"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
generator:
  tick_interval: 500ms
  waypoint_count: 12
cache:
  driver: sqlite
missions:
  - id: m1
    name: North field
    status: ACTIVE
`)
	cfg, err := Load(path, schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Generator.TickInterval != 500*time.Millisecond {
		t.Errorf("tick = %v", cfg.Generator.TickInterval)
	}
	if cfg.Generator.WaypointCount != 12 || cfg.Generator.Columns != 4 {
		t.Errorf("generator = %+v", cfg.Generator)
	}
	if cfg.Generator.CompletionDelay != time.Second {
		t.Errorf("completion delay default = %v", cfg.Generator.CompletionDelay)
	}
	if cfg.Cache.Path != "surveyops-cache.db" {
		t.Errorf("sqlite path default = %q", cfg.Cache.Path)
	}
	if len(cfg.Missions) != 1 || cfg.Missions[0].Status != "ACTIVE" {
		t.Errorf("missions = %+v", cfg.Missions)
	}
	if !cfg.Offline() {
		t.Error("expected offline mode without a backend URL")
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	tests := map[string]string{
		"driver":   "cache:\n  driver: redis\n",
		"duration": "generator:\n  tick_interval: soon\n",
		"status":   "missions:\n  - id: m1\n    name: x\n    status: FLYING\n",
		"range":    "generator:\n  origin_lat: 120\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), schemaPath); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SURVEYOPS_BACKEND_URL", "http://fleet:8080/")
	t.Setenv("SURVEYOPS_TOKEN", "jwt")
	t.Setenv("GREPTIMEDB_ENDPOINT", "greptime:4001")
	t.Setenv("GREPTIMEDB_TABLE", "progress")
	t.Setenv("TICK_INTERVAL", "250ms")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"), schemaPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.URL != "http://fleet:8080" || cfg.Backend.Token != "jwt" || cfg.Offline() {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Greptime.Endpoint != "greptime:4001" || cfg.Greptime.Table != "progress" {
		t.Errorf("greptime = %+v", cfg.Greptime)
	}
	if cfg.Generator.TickInterval != 250*time.Millisecond {
		t.Errorf("tick = %v", cfg.Generator.TickInterval)
	}
}

func TestLoadConfig_BadTickEnv(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "fast")
	_, err := Load(writeConfig(t, "{}\n"), schemaPath)
	if err == nil || !strings.Contains(err.Error(), "TICK_INTERVAL") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestDefaultConfigFileValidates(t *testing.T) {
	cfg, err := Load("../../config/monitor.yaml", schemaPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Missions) == 0 || cfg.Admin.Addr != ":8080" || cfg.Backend.MaxRetries != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Generator.TickInterval != 3*time.Second || cfg.Cache.Driver != "memory" || cfg.Log.Level != "info" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
