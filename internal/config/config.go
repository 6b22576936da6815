// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Generator shapes the synthetic progress feed.
type Generator struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	CompletionDelay time.Duration `yaml:"completion_delay"`
	WaypointCount   int           `yaml:"waypoint_count"`
	Columns         int           `yaml:"columns"`
	MaxIncrement    float64       `yaml:"max_increment"`
	OriginLat       float64       `yaml:"origin_lat"`
	OriginLng       float64       `yaml:"origin_lng"`
	Seed            int64         `yaml:"seed"`
}

// Cache selects where resumption state lives.
type Cache struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// Backend points at the fleet management API.
type Backend struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries"`
	Email             string        `yaml:"email"`
	Password          string        `yaml:"password"`
	Token             string        `yaml:"token"`
}

// Admin configures the HTTP control surface.
type Admin struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Greptime configures the time-series sink.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Mission seeds the in-memory backend used when no backend URL is set.
type Mission struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Status         string `yaml:"status"`
	DroneName      string `yaml:"drone_name"`
	SurveyAreaName string `yaml:"survey_area_name"`
}

// Config is the root configuration of the monitor and simulator.
type Config struct {
	Generator Generator `yaml:"generator"`
	Cache     Cache     `yaml:"cache"`
	Backend   Backend   `yaml:"backend"`
	Admin     Admin     `yaml:"admin"`
	Log       Log       `yaml:"log"`
	Greptime  Greptime  `yaml:"greptime"`
	Missions  []Mission `yaml:"missions"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Backend: Backend{MaxRetries: 3}}
	cfg.applyDefaults()
	return cfg
}

// Load loads YAML config and validates it against a CUE schema. An empty
// schema path skips validation.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.Generator
	if g.TickInterval <= 0 {
		g.TickInterval = 3 * time.Second
	}
	if g.CompletionDelay <= 0 {
		g.CompletionDelay = time.Second
	}
	if g.WaypointCount <= 0 {
		g.WaypointCount = 20
	}
	if g.Columns <= 0 {
		g.Columns = 4
	}
	if g.MaxIncrement <= 0 {
		g.MaxIncrement = 5
	}
	if g.OriginLat == 0 && g.OriginLng == 0 {
		g.OriginLat, g.OriginLng = 51.505, -0.09
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Driver == "sqlite" && c.Cache.Path == "" {
		c.Cache.Path = "surveyops-cache.db"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.RequestsPerMinute <= 0 {
		c.Backend.RequestsPerMinute = 120
	}
	if c.Backend.MaxRetries < 0 {
		c.Backend.MaxRetries = 0
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8080"
	}
	if len(c.Admin.AllowedOrigins) == 0 {
		c.Admin.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Greptime.Database == "" {
		c.Greptime.Database = "public"
	}
	if c.Greptime.Table == "" {
		c.Greptime.Table = "mission_progress"
	}
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SURVEYOPS_BACKEND_URL"); v != "" {
		c.Backend.URL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SURVEYOPS_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("SURVEYOPS_EMAIL"); v != "" {
		c.Backend.Email = v
	}
	if v := os.Getenv("SURVEYOPS_PASSWORD"); v != "" {
		c.Backend.Password = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Greptime.Table = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid TICK_INTERVAL: %s must be positive", v)
		}
		c.Generator.TickInterval = d
	}
	return nil
}

// Offline reports whether the monitor should run against the in-memory backend.
func (c *Config) Offline() bool { return c.Backend.URL == "" }
