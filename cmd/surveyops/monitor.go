package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"surveyops/internal/admin"
	"surveyops/internal/backend"
	"surveyops/internal/clock"
	"surveyops/internal/config"
	"surveyops/internal/logging"
	"surveyops/internal/monitor"
	"surveyops/internal/sim"
	"surveyops/internal/telemetry"
)

var (
	monMission   string
	monNoTUI     bool
	monAdminAddr string
	monOut       string
	monPrintOnly bool
	monJSON      bool
	monRefresh   time.Duration
)

// tuiLogFile receives logs while the TUI owns the terminal.
const tuiLogFile = "surveyops-monitor.log"

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor survey missions live",
	Long: "monitor lists missions from the fleet backend (or the configured missions when no backend " +
		"is set), streams synthetic progress for the selected ACTIVE mission and exposes mission " +
		"controls in a terminal UI and over the admin HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		log := logging.FromContext(cmd.Context())
		useTUI := !monNoTUI && isTerminal(os.Stdout)
		if useTUI && cfg.Log.File == "" {
			l, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: tuiLogFile})
			if err != nil {
				return err
			}
			defer closer.Close()
			log = l
		}
		ctx, stop := signal.NotifyContext(logging.NewContext(cmd.Context(), log), os.Interrupt, syscall.SIGTERM)
		defer stop()

		be, err := newBackend(ctx, cfg, log)
		if err != nil {
			return err
		}
		cache, closeCache, err := openCache(cfg, log)
		if err != nil {
			return err
		}
		defer closeCache()

		loop := clock.NewLoop()
		feed := sim.NewFeed(loop, feedOptions(cfg, cache, log)...)
		ctrl := monitor.NewController(monitor.Options{
			Runner:  loop,
			Source:  feed,
			Clearer: feed,
			Backend: be,
			Logger:  log,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return loop.Run(gctx) })

		var onStatus func(bool)
		if useTUI {
			tui := monitor.NewTUI(ctrl, monRefresh, stop)
			defer tui.Close()
			if err := ctrl.Attach(gctx, tui); err != nil {
				return err
			}
			onStatus = tui.SetAdminStatus
			if cfg.Greptime.Endpoint != "" || monOut != "" {
				w, cleanup, err := newWriter(cfg, writerOptions{PrintOnly: monPrintOnly, Quiet: true, LogFile: monOut}, log)
				if err != nil {
					return err
				}
				defer cleanup()
				if err := ctrl.Attach(gctx, w); err != nil {
					return err
				}
			}
		} else {
			w, cleanup, err := newWriter(cfg, writerOptions{PrintOnly: monPrintOnly, JSON: monJSON, LogFile: monOut}, log)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := ctrl.Attach(gctx, w); err != nil {
				return err
			}
			g.Go(func() error { return refreshLoop(gctx, ctrl, monRefresh, log) })
		}

		if err := ctrl.Refresh(gctx); err != nil {
			log.Warn("initial mission refresh failed", "err", err)
		}
		if monMission != "" {
			if err := ctrl.Select(gctx, monMission); err != nil {
				return err
			}
		}

		addr := cfg.Admin.Addr
		if cmd.Flags().Changed("admin") {
			addr = monAdminAddr
		}
		if addr != "" && addr != "off" {
			srv := admin.NewServer(admin.Options{
				Monitor:        ctrl,
				Feed:           feed,
				Runner:         loop,
				AllowedOrigins: cfg.Admin.AllowedOrigins,
				Logger:         log,
				OnStatus:       onStatus,
			})
			g.Go(func() error { return srv.Start(gctx, addr) })
		}

		err = g.Wait()
		log.Info("monitor stopped")
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// refreshLoop polls the backend so status changes made elsewhere start and
// stop subscriptions.
func refreshLoop(ctx context.Context, ctrl *monitor.Controller, every time.Duration, log *slog.Logger) error {
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := ctrl.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn("mission refresh failed", "err", err)
			}
		}
	}
}

// newBackend returns the REST client, logged in when credentials are
// configured, or an in-memory store seeded from the config.
func newBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (monitor.Backend, error) {
	if cfg.Offline() {
		log.Info("no backend URL configured, using configured missions", "missions", len(cfg.Missions))
		store := backend.NewMemory(configMissions(cfg))
		for _, fp := range configFlightPaths(cfg) {
			store.SetFlightPath(fp)
		}
		return store, nil
	}
	c, err := backend.NewClient(backend.Options{
		BaseURL:           cfg.Backend.URL,
		Token:             cfg.Backend.Token,
		Timeout:           cfg.Backend.Timeout,
		MaxRetries:        cfg.Backend.MaxRetries,
		RequestsPerMinute: cfg.Backend.RequestsPerMinute,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}
	if c.Token() == "" && cfg.Backend.Email != "" {
		if _, err := c.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
			return nil, fmt.Errorf("backend login: %w", err)
		}
	}
	return c, nil
}

func configMissions(cfg *config.Config) []backend.Mission {
	out := make([]backend.Mission, 0, len(cfg.Missions))
	for _, m := range cfg.Missions {
		out = append(out, backend.Mission{
			ID:             m.ID,
			Name:           m.Name,
			Status:         telemetry.MissionStatus(m.Status),
			DroneName:      m.DroneName,
			SurveyAreaName: m.SurveyAreaName,
		})
	}
	return out
}

// configFlightPaths plans the synthetic sweep for every configured mission.
func configFlightPaths(cfg *config.Config) []backend.FlightPath {
	params := generatorParams(cfg)
	path := telemetry.NewGenerator(params, nil).Path()
	waypoints := make([]backend.Waypoint, len(path))
	for i, p := range path {
		waypoints[i] = backend.Waypoint{Lat: p.Lat, Lng: p.Lng, Alt: p.Alt}
	}
	out := make([]backend.FlightPath, 0, len(cfg.Missions))
	for _, m := range cfg.Missions {
		out = append(out, backend.FlightPath{
			ID:            "path-" + m.ID,
			MissionID:     m.ID,
			Waypoints:     append([]backend.Waypoint(nil), waypoints...),
			TotalDistance: params.TotalDistanceM,
		})
	}
	return out
}

func init() {
	monitorCmd.Flags().StringVar(&monMission, "mission", "", "Mission ID to select on start")
	monitorCmd.Flags().BoolVar(&monNoTUI, "no-tui", false, "Print samples and notices instead of running the terminal UI")
	monitorCmd.Flags().StringVar(&monAdminAddr, "admin", ":8080", "Admin API listen address (\"off\" disables)")
	monitorCmd.Flags().StringVar(&monOut, "out", "", "Also write relayed samples to a JSONL file")
	monitorCmd.Flags().BoolVar(&monPrintOnly, "print-only", false, "Never write samples to GreptimeDB")
	monitorCmd.Flags().BoolVar(&monJSON, "json", false, "Print JSON lines even when STDOUT is a terminal")
	monitorCmd.Flags().DurationVar(&monRefresh, "refresh", 5*time.Second, "Mission list refresh interval")
}
