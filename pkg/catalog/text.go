package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const utf8BOM = "\uFEFF"

// ParseText reads a delimited catalog: one course per line as
// "ID<delim>Title[<delim>Prerequisite...]". Fields may be quoted. Blank lines are
// ignored, lines without an ID or title become rejections.
func ParseText(r io.Reader, delim rune) (Batch, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var batch Batch

	for first := true; ; first = false {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			batch.Rejections = append(batch.Rejections, Rejection{
				Line:   parseErr.StartLine,
				Reason: "cannot be parsed: " + parseErr.Err.Error(),
			})

			continue
		}

		if err != nil {
			return batch, fmt.Errorf("read catalog: %w", err)
		}

		line, _ := reader.FieldPos(0)

		if first && len(fields) > 0 {
			fields[0] = strings.TrimPrefix(fields[0], utf8BOM)
		}

		if len(fields) < 2 {
			batch.Rejections = append(batch.Rejections, Rejection{
				Line: line, Reason: reasonTooFewFields, Raw: strings.Join(fields, string(delim)),
			})

			continue
		}

		rec, reason := newRecord(fields[0], fields[1], fields[2:])
		if reason != "" {
			batch.Rejections = append(batch.Rejections, Rejection{
				Line: line, Reason: reason, Raw: strings.Join(fields, string(delim)),
			})

			continue
		}

		batch.Records = append(batch.Records, rec)
	}
}
