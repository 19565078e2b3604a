// Package report renders course listings, lookups and diagnostics for the console.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
)

// ErrUnsupportedFormat is returned for output formats the report cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported output format")

const (
	scheduleHeading = "Here is a sample schedule:"
	noPrerequisites = "none"
)

// courseList is the document shape used for json and yaml output. It matches the
// JSON catalog format, so a listing can be fed back in as a catalog.
type courseList struct {
	Courses []courseindex.CourseRecord `json:"courses" yaml:"courses"`
}

// Schedule writes records in the given format: table, text, json or yaml.
func Schedule(w io.Writer, records []courseindex.CourseRecord, format string) error {
	switch format {
	case config.FormatTable, "":
		return writeString(w, scheduleTable(records)+"\n")
	case config.FormatText:
		return scheduleText(w, records)
	case config.FormatJSON:
		return marshalAndWrite(newCourseList(records), jsonMarshal, w, "json")
	case config.FormatYAML:
		return marshalAndWrite(newCourseList(records), yaml.Marshal, w, "yaml")
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func scheduleTable(records []courseindex.CourseRecord) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"ID", "Title", "Prerequisites"})

	for _, rec := range records {
		tbl.AppendRow(table.Row{rec.ID, rec.Title, prerequisiteList(rec.Prerequisites)})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d courses", len(records))})

	return tbl.Render()
}

func scheduleText(w io.Writer, records []courseindex.CourseRecord) error {
	var sb strings.Builder

	sb.WriteString(scheduleHeading + "\n\n")

	for _, rec := range records {
		sb.WriteString(rec.String() + "\n")
	}

	return writeString(w, sb.String())
}

func newCourseList(records []courseindex.CourseRecord) courseList {
	out := make([]courseindex.CourseRecord, 0, len(records))

	for _, rec := range records {
		if rec.Prerequisites == nil {
			rec.Prerequisites = []string{}
		}

		out = append(out, rec)
	}

	return courseList{Courses: out}
}

// Course writes one course as "ID, Title" followed by its prerequisite line.
func Course(w io.Writer, rec courseindex.CourseRecord) error {
	return writeString(w, fmt.Sprintf("%s\nPrerequisites: %s\n", rec, prerequisiteList(rec.Prerequisites)))
}

// NotFound writes the lookup miss message.
func NotFound(w io.Writer) error {
	return writeString(w, "Course not found.\n")
}

// Violations writes one red error line per missing prerequisite.
func Violations(w io.Writer, violations []courseindex.Violation) error {
	red := color.New(color.FgRed)

	for _, v := range violations {
		_, err := red.Fprintf(w, "Error: %s.\n", v.Error())
		if err != nil {
			return fmt.Errorf("write violation: %w", err)
		}
	}

	return nil
}

// Rejections writes one yellow line per record the loader skipped.
func Rejections(w io.Writer, rejections []catalog.Rejection) error {
	yellow := color.New(color.FgYellow)

	for _, rej := range rejections {
		_, err := yellow.Fprintf(w, "Line skipped: %s.\n", rej.Error())
		if err != nil {
			return fmt.Errorf("write rejection: %w", err)
		}
	}

	return nil
}

// Loaded writes the load summary.
func Loaded(w io.Writer, inserted, duplicates, total int) error {
	green := color.New(color.FgGreen)

	_, err := green.Fprintf(w, "Courses loaded: %s new, %s duplicate, %s total.\n",
		humanize.Comma(int64(inserted)), humanize.Comma(int64(duplicates)), humanize.Comma(int64(total)))
	if err != nil {
		return fmt.Errorf("write load summary: %w", err)
	}

	return nil
}

// Stats writes the index shape and, when known, the snapshot size.
func Stats(w io.Writer, stats courseindex.Stats, snapshotBytes int64) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Courses:      %s\n", humanize.Comma(int64(stats.Courses)))
	fmt.Fprintf(&sb, "Height:       %d\n", stats.Height)
	fmt.Fprintf(&sb, "Black height: %d\n", stats.BlackHeight)
	fmt.Fprintf(&sb, "Arena slots:  %s\n", humanize.Comma(int64(stats.ArenaSlots)))

	if snapshotBytes > 0 {
		fmt.Fprintf(&sb, "Snapshot:     %s\n", humanize.Bytes(uint64(snapshotBytes)))
	}

	return writeString(w, sb.String())
}

// Elapsed writes an operation timing in milliseconds.
func Elapsed(w io.Writer, d time.Duration) error {
	return writeString(w, fmt.Sprintf("Time: %.3f ms\n", float64(d)/float64(time.Millisecond)))
}

func prerequisiteList(prereqs []string) string {
	if len(prereqs) == 0 {
		return noPrerequisites
	}

	return strings.Join(prereqs, ", ")
}

func jsonMarshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by marshalAndWrite
	}

	return append(data, '\n'), nil
}

func marshalAndWrite(data any, marshal func(any) ([]byte, error), w io.Writer, label string) error {
	encoded, err := marshal(data)
	if err != nil {
		return fmt.Errorf("%s encode: %w", label, err)
	}

	_, err = w.Write(encoded)
	if err != nil {
		return fmt.Errorf("%s write: %w", label, err)
	}

	return nil
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
