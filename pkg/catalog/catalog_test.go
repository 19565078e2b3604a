package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/courseplanner/pkg/catalog"
	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
)

func ids(records []courseindex.CourseRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}

	return out
}

func TestParseText(t *testing.T) {
	t.Parallel()

	input := "\uFEFFCSCI100, Introduction to Computer Science\n" +
		"CSCI101,Introduction to Programming in C++,CSCI100,\n" +
		"\n" +
		"CSCI200\n" +
		",Orphan title\n" +
		"MATH201,\n" +
		"\"CSCI300\",\"Algorithms, Part I\",CSCI200 , MATH201\n"

	batch, err := catalog.ParseText(strings.NewReader(input), ',')
	require.NoError(t, err)

	require.Len(t, batch.Records, 3)
	assert.Equal(t, courseindex.CourseRecord{ID: "CSCI100", Title: "Introduction to Computer Science"}, batch.Records[0])
	assert.Equal(t, []string{"CSCI100"}, batch.Records[1].Prerequisites)
	assert.Equal(t, "Algorithms, Part I", batch.Records[2].Title)
	assert.Equal(t, []string{"CSCI200", "MATH201"}, batch.Records[2].Prerequisites)

	require.Len(t, batch.Rejections, 3)
	assert.Equal(t, 4, batch.Rejections[0].Line)
	assert.Equal(t, "line 4 has less than 2 parameters", batch.Rejections[0].Error())
	assert.Equal(t, 5, batch.Rejections[1].Line)
	assert.Contains(t, batch.Rejections[1].Reason, "empty course id")
	assert.Equal(t, 6, batch.Rejections[2].Line)
	assert.Contains(t, batch.Rejections[2].Reason, "empty course title")
	assert.True(t, errors.Is(batch.Rejections[2], catalog.ErrMalformedRecord))
}

func TestParseTextCustomDelimiter(t *testing.T) {
	t.Parallel()

	batch, err := catalog.ParseText(strings.NewReader("A;Alpha\nB;Beta;A\n"), ';')
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(batch.Records))
	assert.Equal(t, []string{"A"}, batch.Records[1].Prerequisites)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	input := `{"courses": [
		{"id": "CSCI100", "title": "Intro"},
		{"id": "CSCI101", "title": "Programming", "prerequisites": ["CSCI100", " "]},
		{"id": " ", "title": "Blank"}
	]}`

	batch, err := catalog.ParseJSON(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"CSCI100", "CSCI101"}, ids(batch.Records))
	assert.Equal(t, []string{"CSCI100"}, batch.Records[1].Prerequisites)
	require.Len(t, batch.Rejections, 1)
	assert.Equal(t, 3, batch.Rejections[0].Line)
}

func TestParseJSONSchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"missing courses", `{}`},
		{"missing title", `{"courses": [{"id": "A"}]}`},
		{"wrong type", `{"courses": [{"id": 7, "title": "Seven"}]}`},
		{"unknown field", `{"courses": [{"id": "A", "title": "Alpha", "credits": 3}]}`},
		{"not json", `courses: []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := catalog.ParseJSON(strings.NewReader(tt.input))
			require.ErrorIs(t, err, catalog.ErrSchema)
		})
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	batch, err := catalog.FileSource{Path: filepath.Join("testdata", "abcu.csv")}.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 8)
	assert.Empty(t, batch.Rejections)

	batch, err = catalog.FileSource{Path: filepath.Join("testdata", "abcu.json")}.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CSCI100", "CSCI101", "CSCI200", "MATH201"}, ids(batch.Records))

	_, err = catalog.FileSource{Path: filepath.Join("testdata", "abcu.csv"), MaxSize: 16}.Load(ctx)
	require.ErrorIs(t, err, catalog.ErrFileTooLarge)

	_, err = catalog.FileSource{Path: filepath.Join(t.TempDir(), "absent.csv")}.Load(ctx)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFill(t *testing.T) {
	t.Parallel()

	batch := catalog.Batch{Records: []courseindex.CourseRecord{
		{ID: "B", Title: "Beta", Prerequisites: []string{"A"}},
		{ID: "A", Title: "Alpha"},
		{ID: "B", Title: "Beta again"},
	}}

	idx := courseindex.New()
	result := catalog.Fill(idx, batch)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, []string{"B"}, result.Duplicates)

	rec, found := idx.Search("B")
	require.True(t, found)
	assert.Equal(t, "Beta", rec.Title)
}

func TestPebbleStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	store, err := catalog.OpenPebbleStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx,
		courseindex.CourseRecord{ID: "CSCI200", Title: "Data Structures", Prerequisites: []string{"CSCI101"}},
		courseindex.CourseRecord{ID: "CSCI101", Title: "Programming"},
	))
	require.NoError(t, store.Put(ctx, courseindex.CourseRecord{ID: "CSCI101", Title: "Programming in C++"}))

	rec, found, err := store.Get("CSCI101")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Programming in C++", rec.Title)

	_, found, err = store.Get("NOPE")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Close())

	// Records survive reopening and come back in key order.
	store, err = catalog.OpenPebbleStore(dir)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, store.Close()) })

	batch, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CSCI101", "CSCI200"}, ids(batch.Records))
	assert.Equal(t, []string{"CSCI101"}, batch.Records[1].Prerequisites)
	assert.Equal(t, "pebble", store.Name())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	src, closer, err := catalog.Open(ctx, config.CatalogConfig{
		Source: config.SourceFile, Path: filepath.Join("testdata", "abcu.csv"), Delimiter: ",", MaxFileSize: "1MB",
	})
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.Equal(t, "file", src.Name())

	src, closer, err = catalog.Open(ctx, config.CatalogConfig{
		Source: config.SourcePebble, StoreDir: filepath.Join(t.TempDir(), "store"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pebble", src.Name())
	require.NoError(t, closer.Close())

	_, _, err = catalog.Open(ctx, config.CatalogConfig{Source: "ftp"})
	require.ErrorIs(t, err, config.ErrInvalidSource)
}
