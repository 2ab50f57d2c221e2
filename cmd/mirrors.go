package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMirrorsCmd() *cobra.Command {
	var aggregator string
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Discover and print the mirror list",
		Long: `Fetches the aggregator page and prints every mirror host found on it, in the
order the resolver will try them. Configured mirrors are printed as is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			if aggregator != "" {
				cfg.Resolver.AggregatorURL = aggregator
				cfg.Resolver.Mirrors = nil
			}
			app, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			for _, m := range app.Mirrors() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&aggregator, "aggregator", "", "aggregator page listing mirrors (overrides resolver.aggregator_url)")
	return cmd
}
