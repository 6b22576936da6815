package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"surveyops/internal/clock"
	"surveyops/internal/config"
	"surveyops/internal/logging"
	"surveyops/internal/sim"
	"surveyops/internal/telemetry"
)

var (
	simMissions  []string
	simPrintOnly bool
	simJSON      bool
	simBar       bool
	simLogFile   string
	simTick      time.Duration
	simKeepGoing bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate synthetic progress for survey missions",
	Long: "simulate subscribes the progress feed to each mission and writes its samples to STDOUT, " +
		"a JSONL log or GreptimeDB until every mission has completed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		cfg := appConfig
		if cmd.Flags().Changed("tick") {
			cfg.Generator.TickInterval = simTick
		}
		ids := simulationMissions(cfg, simMissions)
		if len(ids) == 0 {
			return errors.New("no missions to simulate (use --mission or the config missions list)")
		}

		writer, cleanup, err := newWriter(cfg, writerOptions{
			PrintOnly: simPrintOnly,
			JSON:      simJSON,
			Bar:       simBar,
			LogFile:   simLogFile,
		}, log)
		if err != nil {
			return err
		}
		defer cleanup()

		cache, closeCache, err := openCache(cfg, log)
		if err != nil {
			return err
		}
		defer closeCache()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loop := clock.NewLoop()
		feed := sim.NewFeed(loop, feedOptions(cfg, cache, log)...)
		log.Info("simulation starting", "missions", len(ids), "tick", feed.TickPeriod())
		return runSimulation(ctx, loop, feed, ids, writer, simKeepGoing)
	},
}

// runSimulation drives feed on loop until every mission has emitted its
// completed sample or ctx is done. With keepGoing a finished mission is
// resubscribed from zero.
func runSimulation(ctx context.Context, loop *clock.Loop, feed *sim.Feed, ids []string, writer sim.SampleWriter, keepGoing bool) error {
	log := logging.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })

	ids = uniqueIDs(ids)
	remaining := len(ids)
	allDone := make(chan struct{})
	if remaining == 0 {
		close(allDone)
	}
	var onSample func(string) func(telemetry.MissionProgressSample)
	onSample = func(id string) func(telemetry.MissionProgressSample) {
		return func(s telemetry.MissionProgressSample) {
			if err := writer.Write(s); err != nil {
				log.Warn("sample write failed", "mission_id", id, "err", err)
			}
			if s.Status != telemetry.SampleCompleted {
				return
			}
			if keepGoing {
				feed.ClearCache(id)
				feed.Subscribe(id, onSample(id))
				return
			}
			remaining--
			if remaining == 0 {
				close(allDone)
			}
		}
	}

	g.Go(func() error {
		err := loop.Do(gctx, func() {
			for _, id := range ids {
				feed.Subscribe(id, onSample(id))
			}
		})
		if err != nil {
			return err
		}
		select {
		case <-allDone:
			log.Info("all missions completed", "missions", len(ids))
		case <-gctx.Done():
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// simulationMissions returns the flag missions, or the configured ones.
func simulationMissions(cfg *config.Config, flagIDs []string) []string {
	if len(flagIDs) > 0 {
		return uniqueIDs(flagIDs)
	}
	ids := make([]string, 0, len(cfg.Missions))
	for _, m := range cfg.Missions {
		ids = append(ids, m.ID)
	}
	return uniqueIDs(ids)
}

// uniqueIDs drops repeated and empty IDs, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simMissions, "mission", nil, "Mission IDs to simulate (defaults to the configured missions)")
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print samples to STDOUT instead of writing to GreptimeDB")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print JSON lines even when STDOUT is a terminal")
	simulateCmd.Flags().BoolVar(&simBar, "bar", false, "Show a progress bar per mission instead of sample lines")
	simulateCmd.Flags().StringVar(&simLogFile, "out", "", "Also write samples to a JSONL file for replay")
	simulateCmd.Flags().DurationVar(&simTick, "tick", sim.DefaultTickPeriod, "Sample interval (e.g. 500ms, 3s)")
	simulateCmd.Flags().BoolVar(&simKeepGoing, "loop", false, "Restart missions from zero after they complete")
}
