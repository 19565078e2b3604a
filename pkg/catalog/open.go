package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the source selected by cfg. The returned closer releases any
// connection or database handle the source holds.
func Open(ctx context.Context, cfg config.CatalogConfig) (Source, io.Closer, error) {
	switch cfg.Source {
	case config.SourceFile, "":
		return FileSource{
			Path:      cfg.Path,
			Delimiter: cfg.DelimiterRune(),
			MaxSize:   cfg.MaxFileSizeBytes(),
		}, nopCloser{}, nil
	case config.SourcePostgres:
		src, err := NewPostgresSource(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		return src, src, nil
	case config.SourcePebble:
		store, err := OpenPebbleStore(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}

		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidSource, cfg.Source)
	}
}
