package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/planner"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

const (
	catalogFlag       = "catalog"
	catalogFlagShort  = "c"
	catalogFlagUsage  = "catalog file (.csv, .txt or .json); overrides catalog.path"
	sourceFlag        = "source"
	sourceFlagUsage   = "catalog source: file, postgres or pebble"
	snapshotFlag      = "snapshot"
	snapshotFlagUsage = "load the index from a snapshot instead of the catalog"
)

// sourceFlags select where the index is loaded from.
type sourceFlags struct {
	catalogPath  string
	source       string
	snapshotPath string
}

func addSourceFlags(cmd *cobra.Command, sf *sourceFlags) {
	cmd.Flags().StringVarP(&sf.catalogPath, catalogFlag, catalogFlagShort, "", catalogFlagUsage)
	cmd.Flags().StringVar(&sf.source, sourceFlag, "", sourceFlagUsage)
	cmd.Flags().StringVar(&sf.snapshotPath, snapshotFlag, "", snapshotFlagUsage)
}

// apply folds the flags into the catalog configuration.
func (sf *sourceFlags) apply(cfg *config.Config) {
	if sf.catalogPath != "" {
		cfg.Catalog.Source = config.SourceFile
		cfg.Catalog.Path = sf.catalogPath
	}

	if sf.source != "" {
		cfg.Catalog.Source = sf.source
	}
}

// loadIndex fills the session's index from the snapshot or catalog the flags select.
// Skipped records are reported on errOut unless quiet is set.
func loadIndex(ctx context.Context, sess *session, sf *sourceFlags, errOut io.Writer, quiet bool) error {
	if sf.snapshotPath != "" {
		return sess.svc.LoadSnapshot(ctx, sf.snapshotPath) //nolint:wrapcheck // planner errors carry context
	}

	sf.apply(sess.cfg)

	_, err := loadCatalog(ctx, sess.svc, sess.cfg.Catalog, errOut, quiet)

	return err
}

func loadCatalog(
	ctx context.Context, svc *planner.Service, cfg config.CatalogConfig, errOut io.Writer, quiet bool,
) (planner.LoadResult, error) {
	if cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.LoadTimeout)
		defer cancel()
	}

	src, closer, err := catalog.Open(ctx, cfg)
	if err != nil {
		return planner.LoadResult{}, fmt.Errorf("open catalog: %w", err)
	}

	result, err := svc.Load(ctx, src)

	closeErr := closer.Close()
	if err != nil || closeErr != nil {
		return result, errors.Join(err, closeErr)
	}

	if !quiet {
		err = report.Rejections(errOut, result.Rejections)
		if err != nil {
			return result, err //nolint:wrapcheck // report errors carry context
		}
	}

	return result, nil
}
