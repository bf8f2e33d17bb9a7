package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/datastore"
	"github.com/keshon/kokoroflow/internal/mind"
)

const sessionPrefix = "session:"

// JSONStore keeps every session under "session:<id>" in one datastore file.
// Each Save flushes the file so a committed decision survives a crash.
type JSONStore struct {
	ds  *datastore.DataStore
	log zerolog.Logger
}

func OpenJSON(path string, log zerolog.Logger) (*JSONStore, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = log
	// Save flushes explicitly
	cfg.AutoSaveInterval = 0
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open json store %s: %w", path, err)
	}
	return &JSONStore{
		ds:  ds,
		log: log.With().Str("component", "storage").Str("driver", DriverJSON).Logger(),
	}, nil
}

func (s *JSONStore) Save(ctx context.Context, rec mind.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if err := s.ds.Add(sessionPrefix+rec.ID, rec); err != nil {
		return err
	}
	if err := s.ds.SaveToFile(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	s.log.Trace().Str("session", rec.ID).Dur("took", time.Since(start)).Msg("saved")
	return nil
}

func (s *JSONStore) Load(ctx context.Context, id string) (mind.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return mind.Record{}, false, err
	}
	var rec mind.Record
	ok, err := s.ds.GetInto(sessionPrefix+id, &rec)
	if err != nil || !ok {
		return mind.Record{}, false, err
	}
	return rec, true, nil
}

func (s *JSONStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range s.ds.Keys() {
		if id, ok := strings.CutPrefix(k, sessionPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Stats exposes the datastore counters.
func (s *JSONStore) Stats() map[string]any { return s.ds.Stats() }

func (s *JSONStore) Close() error { return s.ds.Close() }
