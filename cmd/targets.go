package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/speedo/internal/config"
	"github.com/tanq16/speedo/internal/output"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List named benchmark targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadTargets(cfg.TargetsFile)
			if err != nil {
				return err
			}
			width := 0
			for _, t := range catalog.Targets {
				width = max(width, len(t.Name))
			}
			output.PrintHeader("Targets")
			for _, t := range catalog.Targets {
				line := fmt.Sprintf("  %s %s %s", output.FInfo(t.Name+strings.Repeat(" ", width-len(t.Name))), output.StyleSymbols["arrow"], t.URL)
				if t.Description != "" {
					line += " " + output.FDebug("("+t.Description+")")
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
