// Package commands implements the courseplanner subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/planner"
	"github.com/Sumatoshi-tech/courseplanner/pkg/version"
)

const (
	rootCmdUse   = "courseplanner"
	rootCmdShort = "Course planner - ordered course index with prerequisite checks"
	rootCmdLong  = `Courseplanner loads a course catalog into an ordered index, prints a schedule
sorted by course ID, looks up single courses and reports prerequisites that
refer to courses missing from the catalog.

Commands:
  list      Print every course in ID order
  show      Print one course
  validate  Report missing prerequisites
  menu      Interactive menu
  import    Copy a catalog file into a Pebble store or PostgreSQL
  snapshot  Save or inspect index snapshots`
)

// ErrInvalidPrerequisites is returned when the catalog references courses it does not contain.
var ErrInvalidPrerequisites = errors.New("catalog has invalid prerequisites")

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
	noColor    bool
}

// NewRootCommand creates the courseplanner command tree.
func NewRootCommand() *cobra.Command {
	gf := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           rootCmdUse,
		Short:         rootCmdShort,
		Long:          rootCmdLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&gf.configPath, "config", "", "config file (default: ./courseplanner.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&gf.quiet, "quiet", "q", false, "suppress output")
	rootCmd.PersistentFlags().BoolVar(&gf.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(buildListCommand(gf))
	rootCmd.AddCommand(buildShowCommand(gf))
	rootCmd.AddCommand(buildValidateCommand(gf))
	rootCmd.AddCommand(buildMenuCommand(gf))
	rootCmd.AddCommand(buildImportCommand(gf))
	rootCmd.AddCommand(buildSnapshotCommand(gf))
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

// session is the per-invocation state: configuration, telemetry and the planner.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	svc       *planner.Service
	providers observability.Providers
}

// openSession loads configuration, initializes telemetry and builds the planner.
func (gf *globalFlags) openSession(cmd *cobra.Command, mode observability.AppMode) (*session, error) {
	cfg, err := config.LoadConfig(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if gf.noColor || !cfg.Display.Color {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	obsCfg := observability.FromAppConfig(cfg, mode, version.Version)
	obsCfg.LogOutput = cmd.ErrOrStderr()

	switch {
	case gf.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case gf.quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	slog.SetDefault(providers.Logger)

	sess := &session{cfg: cfg, logger: providers.Logger, providers: providers}

	err = sess.useMeter(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(cmd.Context()))
	}

	return sess, nil
}

// useMeter rebuilds the planner around instruments created from meter. The index
// is kept, so it may be called after loading.
func (s *session) useMeter(meter metric.Meter) error {
	metrics, err := observability.NewIndexMetrics(meter)
	if err != nil {
		return fmt.Errorf("create index metrics: %w", err)
	}

	var idx *courseindex.Index
	if s.svc != nil {
		idx = s.svc.Index()
	}

	s.svc = planner.New(idx,
		planner.WithLogger(s.logger),
		planner.WithTracer(s.providers.Tracer),
		planner.WithMetrics(metrics),
	)

	return nil
}

// close flushes telemetry. Errors are logged, they never change the exit status.
func (s *session) close(ctx context.Context) {
	err := s.providers.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("telemetry shutdown failed", "error", err)
	}
}
