package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"surveyops/internal/logging"
	"surveyops/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayJSON      bool
	replayBar       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a mission progress log",
	Long:  "replay feeds samples from a JSONL progress log back into GreptimeDB or STDOUT, preserving their spacing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		writer, cleanup, err := newWriter(appConfig, writerOptions{
			PrintOnly: replayPrintOnly,
			JSON:      replayJSON,
			Bar:       replayBar,
		}, log)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		n, err := sim.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
		log.Info("replay finished", "input", replayInput, "samples", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL progress log")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print samples to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print JSON lines even when STDOUT is a terminal")
	replayCmd.Flags().BoolVar(&replayBar, "bar", false, "Show a progress bar per mission")
	_ = replayCmd.MarkFlagRequired("input")
}
