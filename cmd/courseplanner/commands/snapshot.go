package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

const (
	snapshotCmdUse   = "snapshot"
	snapshotCmdShort = "Save or inspect index snapshots"
	snapshotMaxArgs  = 1
)

func buildSnapshotCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   snapshotCmdUse,
		Short: snapshotCmdShort,
		Long: `Snapshots store the index tree as compressed columns, so it can be
restored without re-inserting every course. Loading a snapshot verifies the
red-black tree before it is used.`,
	}

	cmd.AddCommand(buildSnapshotSaveCommand(gf))
	cmd.AddCommand(buildSnapshotInspectCommand(gf))

	return cmd
}

func buildSnapshotSaveCommand(gf *globalFlags) *cobra.Command {
	var sf sourceFlags

	cmd := &cobra.Command{
		Use:   "save [path]",
		Short: "Load the catalog and write an index snapshot (default: snapshot.path)",
		Args:  cobra.MaximumNArgs(snapshotMaxArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := gf.openSession(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			sf.apply(sess.cfg)

			_, err = loadCatalog(ctx, sess.svc, sess.cfg.Catalog, cmd.ErrOrStderr(), gf.quiet)
			if err != nil {
				return err
			}

			path := snapshotPath(args, sess.cfg.Snapshot.Path)

			size, err := sess.svc.SaveSnapshot(ctx, path)
			if err != nil {
				return err //nolint:wrapcheck // planner errors carry context
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", path)

			return report.Stats(cmd.OutOrStdout(), sess.svc.Stats(), size) //nolint:wrapcheck // report errors carry context
		},
	}

	cmd.Flags().StringVarP(&sf.catalogPath, catalogFlag, catalogFlagShort, "", catalogFlagUsage)
	cmd.Flags().StringVar(&sf.source, sourceFlag, "", sourceFlagUsage)

	return cmd
}

func buildSnapshotInspectCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [path]",
		Short: "Verify a snapshot and print index statistics",
		Args:  cobra.MaximumNArgs(snapshotMaxArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := gf.openSession(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			path := snapshotPath(args, sess.cfg.Snapshot.Path)

			err = sess.svc.LoadSnapshot(ctx, path)
			if err != nil {
				return err //nolint:wrapcheck // planner errors carry context
			}

			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat snapshot: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s is valid\n", path)

			return report.Stats(cmd.OutOrStdout(), sess.svc.Stats(), info.Size()) //nolint:wrapcheck // report errors carry context
		},
	}
}

func snapshotPath(args []string, fallback string) string {
	if len(args) > 0 {
		return args[0]
	}

	return fallback
}
