package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchema is returned when a JSON catalog does not match the catalog schema.
var ErrSchema = errors.New("catalog does not match schema")

//go:embed schema.json
var catalogSchema []byte

type jsonCatalog struct {
	Courses []jsonCourse `json:"courses"`
}

type jsonCourse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Prerequisites []string `json:"prerequisites"`
}

// ParseJSON reads a catalog document of the form
// {"courses": [{"id": "...", "title": "...", "prerequisites": ["..."]}]}.
// The document is validated against the embedded schema first; courses with a
// blank ID or title become rejections numbered by their position.
func ParseJSON(r io.Reader) (Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, fmt.Errorf("read catalog: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(catalogSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			details = append(details, verr.Field()+": "+verr.Description())
		}

		return Batch{}, fmt.Errorf("%w: %s", ErrSchema, strings.Join(details, "; "))
	}

	var doc jsonCatalog

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return Batch{}, fmt.Errorf("decode catalog: %w", err)
	}

	var batch Batch

	for pos, course := range doc.Courses {
		rec, reason := newRecord(course.ID, course.Title, course.Prerequisites)
		if reason != "" {
			batch.Rejections = append(batch.Rejections, Rejection{
				Line: pos + 1, Reason: reason, Raw: course.ID + ", " + course.Title,
			})

			continue
		}

		batch.Records = append(batch.Records, rec)
	}

	return batch, nil
}
