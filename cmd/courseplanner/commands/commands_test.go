package commands

// Command tests are sequential: sessions install the default slog logger and the
// fatih/color switch, both process globals.

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
)

const (
	testCatalog = "testdata/courses.csv"
	testBroken  = "testdata/broken.csv"
)

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// writeTestConfig writes a config that keeps every generated file inside a temp dir.
func writeTestConfig(t *testing.T) (configPath, dir string) {
	t.Helper()

	dir = t.TempDir()
	configPath = filepath.Join(dir, "courseplanner.yaml")

	content := "snapshot:\n  path: " + filepath.Join(dir, "index.cpix") + "\n" +
		"catalog:\n  store_dir: " + filepath.Join(dir, "store") + "\n" +
		"display:\n  color: false\n  format: text\n"

	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath, dir
}

func execute(t *testing.T, configPath, stdin string, args ...string) cmdResult {
	t.Helper()

	var stdout, stderr bytes.Buffer

	root := NewRootCommand()
	root.SetArgs(append([]string{"--config", configPath}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()

	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestListPrintsSortedSchedule(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "list", "--catalog", testCatalog)
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "Here is a sample schedule:", lines[0])
	assert.Equal(t, "CSCI100, Introduction to Computer Science", lines[2])
	assert.Equal(t, "MATH201, Discrete Mathematics", lines[9])
}

func TestListJSON(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "list", "-c", testCatalog, "--format", "json")
	require.NoError(t, res.err)

	var doc struct {
		Courses []struct {
			ID string `json:"id"`
		} `json:"courses"`
	}

	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	require.Len(t, doc.Courses, 8)
	assert.Equal(t, "CSCI400", doc.Courses[6].ID)
}

func TestListWithholdsScheduleOnMissingPrerequisites(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "list", "--catalog", testBroken)
	require.ErrorIs(t, res.err, ErrInvalidPrerequisites)

	assert.Contains(t, res.stdout, "Error: invalid prerequisite course CS101 for course CS201.")
	assert.NotContains(t, res.stdout, "sample schedule")
	assert.Contains(t, res.stderr, "Line skipped: line 3 has less than 2 parameters.")
}

func TestShow(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "show", "CSCI400", "--catalog", testCatalog)
	require.NoError(t, res.err)
	assert.Equal(t, "CSCI400, Large Software Development\nPrerequisites: CSCI301, CSCI350\n", res.stdout)

	res = execute(t, configPath, "", "show", "ZZZ", "--catalog", testCatalog)
	require.Error(t, res.err)
	assert.Equal(t, "Course not found.\n", res.stdout)
}

func TestValidate(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "validate", "--catalog", testCatalog)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "All prerequisites are valid (8 courses).")

	res = execute(t, configPath, "", "validate", "--catalog", testBroken, "--quiet")
	require.ErrorIs(t, res.err, ErrInvalidPrerequisites)
	assert.Contains(t, res.stdout, "invalid prerequisite course CS101 for course CS201")
	assert.Empty(t, res.stderr)
}

func TestMenuSession(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	script := strings.Join([]string{testCatalog, "2", "1", "1", "2", "3", "CSCI300", "3", "ZZZ", "abc", "7", "4", "9"}, "\n")

	res := execute(t, configPath, script, "menu")
	require.NoError(t, res.err)

	out := res.stdout
	assert.Contains(t, out, "Enter file path:")
	assert.Contains(t, out, " 1. Load courses")
	assert.Contains(t, out, "Courses loaded: 8 new, 0 duplicate, 8 total.")
	assert.Contains(t, out, "Courses loaded: 0 new, 8 duplicate, 8 total.")
	assert.Contains(t, out, "Here is a sample schedule:")
	assert.Contains(t, out, "CSCI300, Introduction to Algorithms\nPrerequisites: CSCI200, MATH201\n")
	assert.Contains(t, out, "Course not found.")
	assert.Equal(t, 2, strings.Count(out, "Invalid input."))
	assert.Contains(t, out, "Snapshot saved to "+filepath.Join(dir, "index.cpix"))
	assert.Contains(t, out, "Time: ")
	assert.True(t, strings.HasSuffix(out, "Thank you for using the course planner!\n"))

	// The first listing ran on an empty index, which validates trivially.
	first := strings.Index(out, "Here is a sample schedule:")
	loaded := strings.Index(out, "Courses loaded:")
	assert.Less(t, first, loaded)

	assert.FileExists(t, filepath.Join(dir, "index.cpix"))
}

func TestMenuStopsAtEndOfInput(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "1\n", "menu", "--catalog", testCatalog)
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, "Enter file path:")
	assert.Contains(t, res.stdout, "Courses loaded: 8 new")
}

func TestMenuRejectsMissingFile(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	missing := filepath.Join(dir, "absent.csv")

	res := execute(t, configPath, missing+"\n", "menu")
	require.ErrorIs(t, res.err, ErrOpenCatalog)
	assert.Contains(t, res.stdout, "Error opening file: "+missing)
}

func TestMenuServesMetrics(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "1\n9\n", "menu", "--catalog", testCatalog, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Thank you for using the course planner!")
}

func TestImportPebbleThenList(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	res := execute(t, configPath, "", "import", "--catalog", testCatalog)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Imported 8 courses into pebble.")
	assert.DirExists(t, filepath.Join(dir, "store"))

	res = execute(t, configPath, "", "show", "CSCI101", "--source", "pebble")
	require.NoError(t, res.err)
	assert.Equal(t, "CSCI101, Introduction to Programming in C++\nPrerequisites: CSCI100\n", res.stdout)
}

func TestImportValidation(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "import", "--catalog", testCatalog, "--to", "s3")
	require.ErrorIs(t, res.err, ErrUnknownDestination)

	res = execute(t, configPath, "", "import", "--catalog", testCatalog, "--to", "postgres")
	require.ErrorIs(t, res.err, config.ErrMissingDSN)
}

func TestSnapshotSaveInspectAndList(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	path := filepath.Join(dir, "nested", "courses.cpix")

	res := execute(t, configPath, "", "snapshot", "save", path, "--catalog", testCatalog)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Snapshot written to "+path)
	assert.Contains(t, res.stdout, "Courses:      8")

	res = execute(t, configPath, "", "snapshot", "inspect", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "is valid")
	assert.Contains(t, res.stdout, "Snapshot:")

	res = execute(t, configPath, "", "list", "--snapshot", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "CSCI350, Operating Systems")

	require.NoError(t, os.WriteFile(path, []byte("CPIX garbage"), 0o600))

	res = execute(t, configPath, "", "snapshot", "inspect", path)
	require.Error(t, res.err)
}

func TestVersion(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	res := execute(t, configPath, "", "version")
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "courseplanner "))
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "courseplanner.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("catalog:\n  source: ftp\n"), 0o600))

	res := execute(t, configPath, "", "list")
	require.ErrorIs(t, res.err, config.ErrInvalidSource)
}
