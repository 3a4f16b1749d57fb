package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/speedo/internal/generator"
	"github.com/tanq16/speedo/internal/output"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [OPTIONS]",
		Short: "Serve synthetic payloads for throughput tests",
		Long: `Serves GET <path>?mb=<size> with a stream of filler bytes. mb must be
between 0 and 1024; omit it (or pass 0) for an endless stream that runs
until the client disconnects. Prometheus metrics are exposed on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := cfg.ServerConfig()
			if err != nil {
				return err
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := generator.NewServer(serverCfg)
			ln, err := server.Listen()
			if err != nil {
				return err
			}
			output.PrintInfo(fmt.Sprintf("Serving streams on http://%s%s?mb=<size>", ln.Addr(), serverCfg.Path))
			if err := server.Serve(ctx, ln); err != nil {
				return err
			}
			output.PrintSuccess("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringP("listen", "l", generator.DefaultAddr, "Address to listen on")
	cmd.Flags().String("path", generator.DefaultPath, "Path of the stream endpoint")
	cmd.Flags().String("chunk-size", "64KiB", "Size of each generated chunk")
	cmd.Flags().String("write-limit", "0", "Per-connection send limit in bytes/s (eg. 10MB); 0 for none")
	cmd.Flags().String("read-limit", "0", "Per-connection receive limit in bytes/s; 0 for none")
	cmd.Flags().Duration("stall-timeout", generator.DefaultStallTimeout, "Abort a stream when one chunk cannot be written for this long; 0 to disable")
	return cmd
}
