package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"surveyops/internal/config"
	"surveyops/internal/sim"
	"surveyops/internal/telemetry"
)

// writerOptions selects the sample sinks of a command.
type writerOptions struct {
	PrintOnly bool   // never write to GreptimeDB
	JSON      bool   // JSON lines even on a terminal
	Bar       bool   // progress bars instead of sample lines
	Quiet     bool   // no stdout sink at all
	LogFile   string // JSONL copy of every sample
	Out       io.Writer
}

// newWriter builds the sample writer for cfg and opts. The cleanup function
// flushes and closes every sink.
func newWriter(cfg *config.Config, opts writerOptions, log *slog.Logger) (sim.SampleWriter, func(), error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	var ws []sim.SampleWriter

	if !opts.PrintOnly && cfg.Greptime.Endpoint != "" {
		gw, err := sim.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database, cfg.Greptime.Table, log)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, gw)
	}
	if !opts.Quiet {
		ws = append(ws, stdoutWriter(cfg, opts))
	}
	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(opts.LogFile)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, fw)
	}

	if len(ws) == 1 {
		w := ws[0]
		return w, func() { closeWriter(w, log) }, nil
	}
	mw := sim.NewMultiWriter(ws...)
	return mw, func() { closeWriter(mw, log) }, nil
}

// stdoutWriter picks the console rendering.
func stdoutWriter(cfg *config.Config, opts writerOptions) sim.SampleWriter {
	if opts.Bar {
		return sim.NewBarWriter(opts.Out)
	}
	if !opts.JSON && isTerminal(opts.Out) {
		return sim.NewColorStdoutWriter(opts.Out, generatorParams(cfg), cfg.Generator.TickInterval)
	}
	return sim.NewJSONStdoutWriter(opts.Out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func closeWriter(w sim.SampleWriter, log *slog.Logger) {
	c, ok := w.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("closing sample writer", "err", err)
	}
}

// generatorParams maps the generator section onto the feed's survey geometry.
func generatorParams(cfg *config.Config) telemetry.Params {
	p := telemetry.DefaultParams()
	g := cfg.Generator
	if g.WaypointCount > 0 {
		p.WaypointCount = g.WaypointCount
	}
	if g.Columns > 0 {
		p.Columns = g.Columns
	}
	if g.MaxIncrement > 0 {
		p.MaxIncrement = g.MaxIncrement
	}
	if g.OriginLat != 0 || g.OriginLng != 0 {
		p.OriginLat, p.OriginLng = g.OriginLat, g.OriginLng
	}
	return p
}

// feedOptions translates cfg into Feed options. seed 0 keeps the
// time-seeded default.
func feedOptions(cfg *config.Config, cache sim.Cache, log *slog.Logger) []sim.FeedOption {
	opts := []sim.FeedOption{
		sim.WithParams(generatorParams(cfg)),
		sim.WithTiming(cfg.Generator.TickInterval, cfg.Generator.CompletionDelay),
		sim.WithLogger(log),
	}
	if cache != nil {
		opts = append(opts, sim.WithCache(cache))
	}
	if cfg.Generator.Seed != 0 {
		opts = append(opts, sim.WithRand(newRand(cfg.Generator.Seed)))
	}
	return opts
}

// openCache opens the configured progress cache. The returned closer is
// never nil.
func openCache(cfg *config.Config, log *slog.Logger) (sim.Cache, func(), error) {
	if cfg.Cache.Driver != "sqlite" {
		return sim.NewMemoryCache(), func() {}, nil
	}
	c, err := sim.OpenSQLiteCache(cfg.Cache.Path, log)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			log.Warn("closing progress cache", "err", err)
		}
	}, nil
}
