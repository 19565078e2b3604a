// Package catalog loads course records from text files, JSON documents, PostgreSQL
// and a local Pebble store, and fills a course index from them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
)

// ErrMalformedRecord is matched by every Rejection.
var ErrMalformedRecord = errors.New("malformed record")

// Rejection describes an input record that was skipped because it lacks an ID or title.
type Rejection struct {
	// Line is the 1-based line of a text catalog, or the 1-based position of the
	// record in other sources.
	Line   int
	Reason string
	Raw    string
}

// Error implements error.
func (r Rejection) Error() string {
	return fmt.Sprintf("line %d %s", r.Line, r.Reason)
}

// Is reports ErrMalformedRecord as the category of every rejection.
func (r Rejection) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Batch is the result of reading a source: the accepted records in input order
// and the records that were rejected.
type Batch struct {
	Records    []courseindex.CourseRecord
	Rejections []Rejection
}

// Source produces a batch of course records.
type Source interface {
	Load(ctx context.Context) (Batch, error)
	// Name identifies the source kind in logs and metrics.
	Name() string
}

// FillResult reports how a batch was applied to an index.
type FillResult struct {
	Inserted   int
	Duplicates []string
}

// Fill inserts every record of the batch into idx in input order. Records whose ID
// is already indexed are reported as duplicates and leave the index unchanged.
func Fill(idx *courseindex.Index, batch Batch) FillResult {
	var result FillResult

	for _, rec := range batch.Records {
		if idx.Insert(rec) {
			result.Inserted++
		} else {
			result.Duplicates = append(result.Duplicates, rec.ID)
		}
	}

	return result
}

const (
	reasonTooFewFields = "has less than 2 parameters"
	reasonEmptyID      = "has an empty course id"
	reasonEmptyTitle   = "has an empty course title"
)

// newRecord trims the fields of one input record and drops empty prerequisites.
// A missing ID or title yields a rejection reason instead.
func newRecord(id, title string, prereqs []string) (courseindex.CourseRecord, string) {
	rec := courseindex.CourseRecord{
		ID:    strings.TrimSpace(id),
		Title: strings.TrimSpace(title),
	}

	switch {
	case rec.ID == "" && rec.Title == "":
		return rec, reasonTooFewFields
	case rec.ID == "":
		return rec, reasonEmptyID
	case rec.Title == "":
		return rec, reasonEmptyTitle
	}

	for _, prereq := range prereqs {
		if prereq = strings.TrimSpace(prereq); prereq != "" {
			rec.Prerequisites = append(rec.Prerequisites, prereq)
		}
	}

	return rec, ""
}
