package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrFileTooLarge is returned when a catalog file exceeds the configured size limit.
var ErrFileTooLarge = errors.New("catalog file too large")

// FileSource reads a catalog from disk. Files ending in .json are parsed as JSON
// documents, anything else as delimited text.
type FileSource struct {
	Path      string
	Delimiter rune
	// MaxSize rejects larger files; zero disables the check.
	MaxSize uint64
}

// Name implements Source.
func (fs FileSource) Name() string {
	return "file"
}

// Load implements Source.
func (fs FileSource) Load(_ context.Context) (Batch, error) {
	file, err := os.Open(fs.Path)
	if err != nil {
		return Batch{}, fmt.Errorf("open catalog: %w", err)
	}

	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Batch{}, fmt.Errorf("stat catalog: %w", err)
	}

	if fs.MaxSize > 0 && uint64(info.Size()) > fs.MaxSize { //nolint:gosec // file sizes are non-negative
		return Batch{}, fmt.Errorf("%w: %s is %s, limit is %s", ErrFileTooLarge, fs.Path,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(fs.MaxSize)) //nolint:gosec // file sizes are non-negative
	}

	if strings.EqualFold(filepath.Ext(fs.Path), ".json") {
		return ParseJSON(file)
	}

	delim := fs.Delimiter
	if delim == 0 {
		delim = ','
	}

	return ParseText(file, delim)
}
