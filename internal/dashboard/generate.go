// Package dashboard renders Grafana dashboards for the mission progress table.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Options parameterises the rendered dashboards.
type Options struct {
	// DatasourceUID is the Grafana GreptimeDB datasource. Falls back to
	// GREPTIMEDB_DATASOURCE_UID.
	DatasourceUID string
	Table         string
	Title         string
}

// Render parses the dashboard templates and writes rendered dashboards to
// outDir. It returns the written paths.
func Render(outDir string, o Options) ([]string, error) {
	if o.DatasourceUID == "" {
		o.DatasourceUID = os.Getenv("GREPTIMEDB_DATASOURCE_UID")
	}
	if o.DatasourceUID == "" {
		return nil, fmt.Errorf("datasource UID not set (flag or GREPTIMEDB_DATASOURCE_UID)")
	}
	if o.Table == "" {
		o.Table = "mission_progress"
	}
	if o.Title == "" {
		o.Title = "Survey mission progress"
	}

	funcMap := template.FuncMap{
		"quote": func(s string) string { return fmt.Sprintf("%q", s) },
	}
	tpls, err := template.New("").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for _, t := range tpls.Templates() {
		if t.Name() == "" {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(t.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := t.Execute(f, o); err != nil {
			f.Close()
			return written, fmt.Errorf("render %s: %w", t.Name(), err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
