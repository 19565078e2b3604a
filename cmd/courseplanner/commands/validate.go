package commands

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

func buildValidateCommand(gf *globalFlags) *cobra.Command {
	var sf sourceFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report prerequisites that refer to missing courses",
		Long: `Load the catalog and check every prerequisite of every course.

Each prerequisite that names a course missing from the catalog is printed.
The command fails when at least one is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, gf, &sf)
		},
	}

	addSourceFlags(cmd, &sf)

	return cmd
}

func runValidate(cmd *cobra.Command, gf *globalFlags, sf *sourceFlags) error {
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

	violations := sess.svc.Validate(ctx)
	if len(violations) > 0 {
		return errors.Join(ErrInvalidPrerequisites, report.Violations(cmd.OutOrStdout(), violations))
	}

	if !gf.quiet {
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "All prerequisites are valid (%d courses).\n",
			sess.svc.Index().Len())
	}

	return nil
}
