package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/docresolver/internal/config"
	"github.com/JakeFAU/docresolver/internal/download"
)

// ErrNotFound is returned when one or more identifiers could not be resolved.
var ErrNotFound = errors.New("identifier not found")

type fetchOptions struct {
	out       string
	name      string
	mirrors   []string
	userAgent string
	workers   int
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <identifier>...",
		Short: "Resolve and save one or more documents",
		Long: `Resolves each identifier (DOI, PMID or URL) and saves the document into the
output directory. The document is named after its embedded title, or after
its content hash when it has none.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output directory (overrides storage.output_dir)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "file name for the document (single identifier only)")
	cmd.Flags().StringArrayVar(&opts.mirrors, "mirror", nil, "mirror base URL, repeatable (skips discovery)")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "User-Agent header sent to mirrors")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "parallel workers for multiple identifiers")
	return cmd
}

func (o *fetchOptions) apply(cfg *config.Config) {
	if o.out != "" {
		cfg.Storage.Backend = config.BackendLocal
		cfg.Storage.OutputDir = o.out
	}
	if len(o.mirrors) > 0 {
		cfg.Resolver.Mirrors = o.mirrors
	}
	if o.userAgent != "" {
		cfg.HTTP.UserAgent = o.userAgent
	}
	if o.workers > 0 {
		cfg.Batch.Workers = o.workers
	}
}

func runFetch(cmd *cobra.Command, args []string, opts *fetchOptions) error {
	if opts.name != "" && len(args) > 1 {
		return errors.New("--name can only be used with a single identifier")
	}
	cfg, logger, err := fromContext(cmd.Context())
	if err != nil {
		return err
	}
	opts.apply(&cfg)

	app, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if len(args) == 1 {
		path, err := app.Service().Save(cmd.Context(), args[0], opts.name)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", args[0], err)
		}
		if path == "" {
			return fmt.Errorf("%s: %w", args[0], ErrNotFound)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	}

	items := make([]download.Item, 0, len(args))
	for _, arg := range args {
		items = append(items, download.Item{Identifier: arg})
	}
	outcomes, err := app.Batch().Run(cmd.Context(), items)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			errs = append(errs, fmt.Errorf("fetch %s: %w", o.Item.Identifier, o.Err))
		case o.Path == "":
			errs = append(errs, fmt.Errorf("%s: %w", o.Item.Identifier, ErrNotFound))
		default:
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), o.Path); err != nil {
				return err
			}
		}
	}
	if len(errs) > 0 {
		logger.Warn("batch finished with failures",
			zap.Int("failed", len(errs)),
			zap.Int("total", len(outcomes)),
		)
	}
	return errors.Join(errs...)
}
