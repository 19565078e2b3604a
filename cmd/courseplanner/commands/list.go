package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

const (
	listCmdUse      = "list"
	listCmdShort    = "Print every course in ID order"
	formatFlag      = "format"
	formatFlagShort = "f"
	formatFlagUsage = "output format: table, text, json or yaml (default: display.format)"
)

func buildListCommand(gf *globalFlags) *cobra.Command {
	var (
		sf     sourceFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   listCmdUse,
		Short: listCmdShort,
		Long: `Load the catalog and print every course sorted by course ID.

The listing is printed only when every prerequisite refers to a course in the
catalog; otherwise each missing prerequisite is reported and the command fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, gf, &sf, format)
		},
	}

	addSourceFlags(cmd, &sf)
	cmd.Flags().StringVarP(&format, formatFlag, formatFlagShort, "", formatFlagUsage)

	return cmd
}

func runList(cmd *cobra.Command, gf *globalFlags, sf *sourceFlags, format string) error {
	ctx := cmd.Context()

	sess, err := gf.openSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	err = loadIndex(ctx, sess, sf, cmd.ErrOrStderr(), gf.quiet)
	if err != nil {
		return err
	}

	records, err := sess.svc.Schedule(ctx)

	var missing *courseindex.MissingPrerequisiteError
	if errors.As(err, &missing) {
		printErr := report.Violations(cmd.OutOrStdout(), missing.Violations)

		return errors.Join(ErrInvalidPrerequisites, printErr)
	}

	if err != nil {
		return err //nolint:wrapcheck // planner errors carry context
	}

	if format == "" {
		format = sess.cfg.Display.Format
	}

	return report.Schedule(cmd.OutOrStdout(), records, format) //nolint:wrapcheck // report errors carry context
}
