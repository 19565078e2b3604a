package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

const (
	importCmdUse   = "import"
	importCmdShort = "Copy a catalog file into a Pebble store or PostgreSQL"
	toFlag         = "to"
	toFlagUsage    = "destination: pebble or postgres"
	storeFlag      = "store"
	storeFlagUsage = "Pebble store directory (default: catalog.store_dir)"
	dsnFlag        = "dsn"
	dsnFlagUsage   = "PostgreSQL connection string (default: catalog.dsn)"
)

// ErrUnknownDestination is returned for an import destination other than pebble or postgres.
var ErrUnknownDestination = errors.New("unknown import destination")

type importFlags struct {
	catalogPath string
	to          string
	storeDir    string
	dsn         string
}

func buildImportCommand(gf *globalFlags) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   importCmdUse,
		Short: importCmdShort,
		Long: `Read a catalog file and store its courses so later runs can use
--source pebble or --source postgres.

Examples:
  courseplanner import --catalog courses.csv --store .courseplanner/store
  courseplanner import --catalog courses.json --to postgres --dsn postgres://localhost/planner`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, gf, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.catalogPath, catalogFlag, catalogFlagShort, "", catalogFlagUsage)
	cmd.Flags().StringVar(&flags.to, toFlag, config.SourcePebble, toFlagUsage)
	cmd.Flags().StringVar(&flags.storeDir, storeFlag, "", storeFlagUsage)
	cmd.Flags().StringVar(&flags.dsn, dsnFlag, "", dsnFlagUsage)

	return cmd
}

func runImport(cmd *cobra.Command, gf *globalFlags, flags *importFlags) error {
	ctx := cmd.Context()

	sess, err := gf.openSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	fileCfg := sess.cfg.Catalog
	fileCfg.Source = config.SourceFile

	if flags.catalogPath != "" {
		fileCfg.Path = flags.catalogPath
	}

	// Going through the index drops duplicate IDs and orders the records.
	_, err = loadCatalog(ctx, sess.svc, fileCfg, cmd.ErrOrStderr(), gf.quiet)
	if err != nil {
		return err
	}

	records := make([]courseindex.CourseRecord, 0, sess.svc.Index().Len())
	for rec := range sess.svc.Index().InOrder() {
		records = append(records, rec)
	}

	switch flags.to {
	case config.SourcePebble:
		err = importPebble(ctx, firstNonEmpty(flags.storeDir, sess.cfg.Catalog.StoreDir), records)
	case config.SourcePostgres:
		err = importPostgres(ctx, firstNonEmpty(flags.dsn, sess.cfg.Catalog.DSN), records)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDestination, flags.to)
	}

	if err != nil {
		return err
	}

	if !gf.quiet {
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Imported %d courses into %s.\n", len(records), flags.to)

		violations := sess.svc.Validate(ctx)
		if len(violations) > 0 {
			return report.Violations(cmd.ErrOrStderr(), violations) //nolint:wrapcheck // report errors carry context
		}
	}

	return nil
}

func importPebble(ctx context.Context, dir string, records []courseindex.CourseRecord) error {
	if dir == "" {
		return config.ErrMissingStoreDir
	}

	store, err := catalog.OpenPebbleStore(dir)
	if err != nil {
		return err //nolint:wrapcheck // catalog errors carry context
	}

	return errors.Join(store.Put(ctx, records...), store.Close())
}

func importPostgres(ctx context.Context, dsn string, records []courseindex.CourseRecord) error {
	if dsn == "" {
		return config.ErrMissingDSN
	}

	src, err := catalog.NewPostgresSource(ctx, dsn)
	if err != nil {
		return err //nolint:wrapcheck // catalog errors carry context
	}

	defer src.Close()

	err = src.EnsureSchema(ctx)
	if err != nil {
		return err //nolint:wrapcheck // catalog errors carry context
	}

	return src.Store(ctx, records) //nolint:wrapcheck // catalog errors carry context
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
