package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/Sumatoshi-tech/courseplanner/pkg/courseindex"
)

const keyPrefix = "course/"

// PebbleStore keeps course records in a local Pebble database under "course/<id>" keys.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens or creates the store in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

// Name implements Source.
func (ps *PebbleStore) Name() string {
	return "pebble"
}

// Close flushes and closes the database.
func (ps *PebbleStore) Close() error {
	return ps.db.Close() //nolint:wrapcheck // closing is the last step of every caller
}

// Put writes records in one synced batch, replacing existing values.
func (ps *PebbleStore) Put(_ context.Context, records ...courseindex.CourseRecord) error {
	batch := ps.db.NewBatch()
	defer batch.Close()

	for _, rec := range records {
		val, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.ID, err)
		}

		err = batch.Set(keyFor(rec.ID), val, nil)
		if err != nil {
			return fmt.Errorf("stage %s: %w", rec.ID, err)
		}
	}

	err := batch.Commit(pebble.Sync)
	if err != nil {
		return fmt.Errorf("commit courses: %w", err)
	}

	return nil
}

// Get returns the stored record for id.
func (ps *PebbleStore) Get(id string) (courseindex.CourseRecord, bool, error) {
	val, closer, err := ps.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return courseindex.CourseRecord{}, false, nil
	}

	if err != nil {
		return courseindex.CourseRecord{}, false, fmt.Errorf("get %s: %w", id, err)
	}
	defer closer.Close()

	var rec courseindex.CourseRecord

	err = json.Unmarshal(val, &rec)
	if err != nil {
		return courseindex.CourseRecord{}, false, fmt.Errorf("decode %s: %w", id, err)
	}

	return rec, true, nil
}

// Load implements Source by scanning every stored record in key order.
func (ps *PebbleStore) Load(ctx context.Context) (Batch, error) {
	iter, err := ps.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("course0"),
	})
	if err != nil {
		return Batch{}, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var batch Batch

	pos := 0

	for iter.First(); iter.Valid(); iter.Next() {
		pos++

		if ctx.Err() != nil {
			return Batch{}, ctx.Err() //nolint:wrapcheck // cancellation is reported as is
		}

		var stored courseindex.CourseRecord

		err = json.Unmarshal(iter.Value(), &stored)
		if err != nil {
			return Batch{}, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}

		rec, reason := newRecord(stored.ID, stored.Title, stored.Prerequisites)
		if reason != "" {
			batch.Rejections = append(batch.Rejections, Rejection{Line: pos, Reason: reason, Raw: string(iter.Key())})

			continue
		}

		batch.Records = append(batch.Records, rec)
	}

	err = iter.Error()
	if err != nil {
		return Batch{}, fmt.Errorf("scan courses: %w", err)
	}

	return batch, nil
}

func keyFor(id string) []byte {
	return []byte(keyPrefix + id)
}
