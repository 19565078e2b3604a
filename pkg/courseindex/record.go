// Package courseindex provides an ordered in-memory index of course records backed by
// an arena-allocated red-black tree, with prerequisite validation and LZ4-compressed snapshots.
package courseindex

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingPrerequisite is matched by every prerequisite violation.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// CourseRecord is the value stored in the index, keyed by ID.
type CourseRecord struct {
	ID            string   `json:"id"            yaml:"id"`
	Title         string   `json:"title"         yaml:"title"`
	Prerequisites []string `json:"prerequisites" yaml:"prerequisites"`
}

// Clone returns a copy that does not share the prerequisite slice.
func (rec CourseRecord) Clone() CourseRecord {
	rec.Prerequisites = slices.Clone(rec.Prerequisites)

	return rec
}

// String renders the record the way the course list prints it: "ID, Title".
func (rec CourseRecord) String() string {
	return rec.ID + ", " + rec.Title
}

// Violation describes one prerequisite reference that resolves to no record in the index.
type Violation struct {
	CourseID  string `json:"course_id"  yaml:"course_id"`
	MissingID string `json:"missing_id" yaml:"missing_id"`
}

// Error implements error.
func (v Violation) Error() string {
	return fmt.Sprintf("invalid prerequisite course %s for course %s", v.MissingID, v.CourseID)
}

// Is reports ErrMissingPrerequisite as the category of every violation.
func (v Violation) Is(target error) bool {
	return target == ErrMissingPrerequisite
}

// MissingPrerequisiteError aggregates the violations found by a validation pass.
type MissingPrerequisiteError struct {
	Violations []Violation
}

// Error implements error.
func (e *MissingPrerequisiteError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Error())
	}

	return fmt.Sprintf("%d %s: %s", len(e.Violations), pluralize(len(e.Violations)), strings.Join(parts, "; "))
}

// Unwrap exposes every violation to errors.Is and errors.As.
func (e *MissingPrerequisiteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		errs = append(errs, v)
	}

	return errs
}

func pluralize(n int) string {
	if n == 1 {
		return "missing prerequisite"
	}

	return "missing prerequisites"
}
