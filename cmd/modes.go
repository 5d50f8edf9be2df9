package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottlangford2/research-scraper/internal/pipeline"
)

func newModeCmd(mode pipeline.Mode, short string) *cobra.Command {
	var noEmail bool
	cmd := &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(runner Runner) error {
				sum, err := runner.Run(cmd.Context(), mode, !noEmail)
				if err != nil {
					return fmt.Errorf("%s failed: %w", mode, err)
				}
				return writeSummary(cmd.OutOrStdout(), sum)
			})
		},
	}
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "skip the daily and team digests")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the records, trending and run history API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(runner Runner) error {
				return runner.Serve(cmd.Context())
			})
		},
	}
}
