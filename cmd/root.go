package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/speedo/internal/config"
	"github.com/tanq16/speedo/internal/output"
	"github.com/tanq16/speedo/internal/utils"
)

var (
	cfgFile   string
	headers   []string
	cfg       *config.Config
	logCloser io.Closer
)

var SpeedoVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "speedo",
	Short:   "Speedo is a network throughput benchmark: a stream generator and a multi-connection download harness",
	Version: SpeedoVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("header") {
			loaded.Headers = headers
		}
		cfg = loaded
		logCloser, err = utils.InitLogger(cfg.Debug, cfg.LogFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.config/speedo/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().String("targets-file", "", "YAML file with named benchmark targets")

	// HTTP client flags
	rootCmd.PersistentFlags().DurationP("timeout", "t", 60*time.Second, "Connect and response header timeout (eg. 5s, 1m)")
	rootCmd.PersistentFlags().DurationP("keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringP("user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser user agent)")
	rootCmd.PersistentFlags().StringP("proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().String("proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().String("proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Trace: 1'); can be specified multiple times")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newTargetsCmd())
}
