package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/planner"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

func buildShowCommand(gf *globalFlags) *cobra.Command {
	var sf sourceFlags

	cmd := &cobra.Command{
		Use:   "show <course-id>",
		Short: "Print one course and its prerequisites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, gf, &sf, args[0])
		},
	}

	addSourceFlags(cmd, &sf)

	return cmd
}

func runShow(cmd *cobra.Command, gf *globalFlags, sf *sourceFlags, courseID string) error {
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

	rec, err := sess.svc.Course(ctx, courseID)
	if errors.Is(err, planner.ErrCourseNotFound) {
		return errors.Join(report.NotFound(cmd.OutOrStdout()), err)
	}

	if err != nil {
		return err //nolint:wrapcheck // planner errors carry context
	}

	return report.Course(cmd.OutOrStdout(), rec) //nolint:wrapcheck // report errors carry context
}
