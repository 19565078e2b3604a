package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
	"github.com/Sumatoshi-tech/courseplanner/pkg/observability"
	"github.com/Sumatoshi-tech/courseplanner/pkg/planner"
	"github.com/Sumatoshi-tech/courseplanner/pkg/report"
)

const (
	menuCmdUse         = "menu"
	menuCmdShort       = "Interactive menu: load, list and look up courses"
	metricsAddrFlag    = "metrics-addr"
	metricsAddrUsage   = "serve Prometheus /metrics on this address while the menu runs (default: metrics.addr)"
	metricsPath        = "/metrics"
	readHeaderTimeout  = 5 * time.Second
	serverStopTimeout  = 5 * time.Second
	menuText           = "Menu:\n 1. Load courses\n 2. Print Course list\n 3. Print Course\n 4. Save snapshot\n 9. Exit\n"
	choiceLoad         = 1
	choiceList         = 2
	choiceCourse       = 3
	choiceSaveSnapshot = 4
	choiceExit         = 9
)

// ErrOpenCatalog is returned when the menu cannot open the catalog file it was given.
var ErrOpenCatalog = errors.New("error opening file")

func buildMenuCommand(gf *globalFlags) *cobra.Command {
	var (
		sf          sourceFlags
		format      string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   menuCmdUse,
		Short: menuCmdShort,
		Long: `Run the interactive course planner menu.

The catalog file is asked for on startup unless --catalog or a database source
is configured. Every action prints the time it took.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMenu(cmd, gf, &sf, format, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&sf.catalogPath, catalogFlag, catalogFlagShort, "", catalogFlagUsage)
	cmd.Flags().StringVar(&sf.source, sourceFlag, "", sourceFlagUsage)
	cmd.Flags().StringVarP(&format, formatFlag, formatFlagShort, config.FormatText, formatFlagUsage)
	cmd.Flags().StringVar(&metricsAddr, metricsAddrFlag, "", metricsAddrUsage)

	return cmd
}

func runMenu(cmd *cobra.Command, gf *globalFlags, sf *sourceFlags, format, metricsAddr string) error {
	ctx := cmd.Context()

	sess, err := gf.openSession(cmd, observability.ModeMenu)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	if metricsAddr == "" {
		metricsAddr = sess.cfg.Metrics.Addr
	}

	if metricsAddr != "" {
		stop, serveErr := serveMetrics(sess, metricsAddr)
		if serveErr != nil {
			return serveErr
		}
		defer stop(ctx)
	}

	sf.apply(sess.cfg)

	m := &menu{
		sess:   sess,
		in:     bufio.NewScanner(cmd.InOrStdin()),
		out:    cmd.OutOrStdout(),
		format: format,
	}
	m.in.Split(bufio.ScanWords)

	return m.run(ctx, sf.catalogPath != "")
}

// serveMetrics points the planner metrics at a Prometheus registry and serves it on addr.
func serveMetrics(sess *session, addr string) (func(context.Context), error) {
	handler, meterProvider, err := observability.PrometheusHandler()
	if err != nil {
		return nil, fmt.Errorf("create metrics handler: %w", err)
	}

	err = sess.useMeter(meterProvider.Meter(rootCmdUse))
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, observability.HTTPMiddleware(sess.providers.Tracer, handler))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sess.logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	sess.logger.Info("serving metrics", "addr", listener.Addr().String(), "path", metricsPath)

	return func(ctx context.Context) {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverStopTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(stopCtx)
		if shutdownErr != nil {
			sess.logger.Warn("metrics server shutdown failed", "error", shutdownErr)
		}
	}, nil
}

// menu is the interactive loop. Input is read one whitespace-separated token at a time.
type menu struct {
	sess   *session
	in     *bufio.Scanner
	out    io.Writer
	format string
}

func (m *menu) run(ctx context.Context, pathGiven bool) error {
	cfg := &m.sess.cfg.Catalog

	if cfg.Source == config.SourceFile || cfg.Source == "" {
		if !pathGiven {
			m.printf("Enter file path:\n")

			path, ok := m.next()
			if !ok {
				return nil
			}

			cfg.Path = path
		}

		_, err := os.Stat(cfg.Path)
		if err != nil {
			m.printf("Error opening file: %s\n", cfg.Path)

			return fmt.Errorf("%w: %w", ErrOpenCatalog, err)
		}
	}

	for {
		m.printf("%s", menuText)
		m.printf("Enter choice: ")

		token, ok := m.next()
		if !ok {
			return nil
		}

		choice, err := strconv.Atoi(token)
		if err != nil {
			choice = 0
		}

		switch choice {
		case choiceLoad:
			m.timed(func() error { return m.load(ctx) })
		case choiceList:
			m.timed(func() error { return m.list(ctx) })
		case choiceCourse:
			m.printf("Enter course ID: ")

			courseID, more := m.next()
			if !more {
				return nil
			}

			m.printf("\n")
			m.timed(func() error { return m.course(ctx, courseID) })
		case choiceSaveSnapshot:
			m.timed(func() error { return m.saveSnapshot(ctx) })
		case choiceExit:
			m.printf("Thank you for using the course planner!\n")

			return nil
		default:
			m.printf("Invalid input.\n\n")
		}
	}
}

func (m *menu) load(ctx context.Context) error {
	m.printf("\n")

	result, err := loadCatalog(ctx, m.sess.svc, m.sess.cfg.Catalog, m.out, false)
	if err != nil {
		return err
	}

	return report.Loaded(m.out, result.Inserted, len(result.Duplicates), m.sess.svc.Index().Len()) //nolint:wrapcheck // report errors carry context
}

func (m *menu) list(ctx context.Context) error {
	records, err := m.sess.svc.Schedule(ctx)

	var missing *courseindex.MissingPrerequisiteError
	if errors.As(err, &missing) {
		m.printf("\n")

		return report.Violations(m.out, missing.Violations) //nolint:wrapcheck // report errors carry context
	}

	if err != nil {
		return err //nolint:wrapcheck // planner errors carry context
	}

	m.printf("\n")

	err = report.Schedule(m.out, records, m.format)
	if err != nil {
		return err //nolint:wrapcheck // report errors carry context
	}

	m.printf("\n")

	return nil
}

func (m *menu) course(ctx context.Context, courseID string) error {
	rec, err := m.sess.svc.Course(ctx, courseID)
	if errors.Is(err, planner.ErrCourseNotFound) {
		return report.NotFound(m.out) //nolint:wrapcheck // report errors carry context
	}

	if err != nil {
		return err //nolint:wrapcheck // planner errors carry context
	}

	return report.Course(m.out, rec) //nolint:wrapcheck // report errors carry context
}

func (m *menu) saveSnapshot(ctx context.Context) error {
	path := m.sess.cfg.Snapshot.Path

	size, err := m.sess.svc.SaveSnapshot(ctx, path)
	if err != nil {
		return err //nolint:wrapcheck // planner errors carry context
	}

	m.printf("Snapshot saved to %s (%s).\n", path, humanize.Bytes(uint64(size)))

	return nil
}

// timed runs an action, reports its error without leaving the loop, then prints the elapsed time.
func (m *menu) timed(action func() error) {
	elapsed, err := planner.Timed(action)
	if err != nil {
		color.New(color.FgRed).Fprintf(m.out, "Error: %v\n", err)
	}

	m.printf("\n")

	printErr := report.Elapsed(m.out, elapsed)
	if printErr != nil {
		m.sess.logger.Warn("write elapsed time", "error", printErr)
	}

	m.printf("\n")
}

func (m *menu) next() (string, bool) {
	if !m.in.Scan() {
		return "", false
	}

	return m.in.Text(), true
}

func (m *menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}
