package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/speedo/internal/config"
	"github.com/tanq16/speedo/internal/harness"
	"github.com/tanq16/speedo/internal/output"
	"github.com/tanq16/speedo/internal/utils"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [URL|TARGET] [OPTIONS]",
		Short: "Measure download throughput against a URL or named target",
		Long: `Opens the requested number of concurrent download loops against the target
and reports live throughput until interrupted (Ctrl-C), the byte cap is
reached, or the duration elapses. Failed transfers are retried forever
after --retry-delay; they never end the run.

Targets may be http(s) URLs, "local:?mb=N" for the in-process generator,
or a name from the target catalog (see "speedo targets").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadTargets(cfg.TargetsFile)
			if err != nil {
				return err
			}
			link := catalog.Resolve(args[0])
			if err := validateTarget(link); err != nil {
				return err
			}
			opts, err := cfg.RunOptions(link)
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntP("connections", "c", utils.DefaultConcurrency, fmt.Sprintf("Number of concurrent connections (%d-%d)", utils.MinConcurrency, utils.MaxConcurrency))
	cmd.Flags().String("cap", "0", "Stop after this many bytes (eg. 500MB, 2GiB); 0 for no cap")
	cmd.Flags().DurationP("duration", "d", 0, "Stop after this long (eg. 30s); 0 to run until interrupted")
	cmd.Flags().Duration("interval", harness.DefaultSampleInterval, "Sampling interval for live statistics")
	cmd.Flags().Duration("retry-delay", harness.DefaultRetryDelay, "Pause before a failed transfer is retried (retries are unlimited)")
	cmd.Flags().String("read-buffer", "64KiB", "Read size per connection")
	cmd.Flags().Bool("plain", false, "Print one line per sample instead of a live display")
	return cmd
}

func validateTarget(link string) error {
	if harness.IsLocalTarget(link) {
		_, err := harness.ParseLocalTarget(link)
		return err
	}
	_, err := harness.AddCacheBuster(link)
	return err
}

func runBenchmark(parent context.Context, opts harness.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := utils.NewSpeedoHTTPClient(cfg.HTTPClientConfig())
	defer client.CloseIdleConnections()
	h := harness.New(harness.NewSource(client))

	outputMgr := output.NewManager()
	if cfg.Plain {
		outputMgr.SetPlain(os.Stdout)
	}
	id := outputMgr.Register(opts.Target)
	outputMgr.SetMessage(id, fmt.Sprintf("Testing %s with %d connections", opts.Target, opts.Concurrency))
	outputMgr.StartDisplay()

	run, err := h.Start(ctx, opts)
	if err != nil {
		outputMgr.ReportError(id, err)
		outputMgr.StopDisplay()
		return fmt.Errorf("run failed to start: %w", err)
	}
	for snap := range run.Snapshots() {
		outputMgr.UpdateStats(id, toStats(snap, opts.ByteCap))
		if !snap.Final {
			outputMgr.SetStatus(id, sampleStatus(snap))
		}
	}
	result := run.Wait()
	outputMgr.Complete(id, describeResult(result))
	outputMgr.StopDisplay()
	if warning := resultWarning(result); warning != "" {
		output.PrintWarning(warning)
	}
	return nil
}

// sampleStatus flags an interval in which no loop received anything, which
// is what a target failing every request looks like.
func sampleStatus(snap harness.Snapshot) string {
	if snap.Delta == 0 && snap.Interval > 0 {
		return "warning"
	}
	return "pending"
}

func resultWarning(result harness.Result) string {
	if result.Total == 0 {
		return "No data was received; check that the target is reachable (--debug logs each failed transfer)"
	}
	return ""
}

func toStats(snap harness.Snapshot, byteCap int64) output.Stats {
	return output.Stats{
		Total:          snap.Total,
		BytesPerSec:    snap.BytesPerSec,
		BitsPerSec:     snap.BitsPerSec,
		AvgBytesPerSec: snap.AvgBytesPerSec,
		ActiveLoops:    snap.ActiveLoops,
		Cap:            byteCap,
		Elapsed:        snap.Elapsed,
	}
}

func describeResult(result harness.Result) string {
	elapsed := result.Elapsed.Round(time.Second)
	switch result.Reason {
	case harness.ReasonCapReached:
		return fmt.Sprintf("Test completed: byte cap reached after %s", elapsed)
	case harness.ReasonDurationElapsed:
		return fmt.Sprintf("Test completed after %s", elapsed)
	default:
		return fmt.Sprintf("Test stopped after %s", elapsed)
	}
}
