package mind

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/pkg/util"
)

// Persister stores session records. Save replaces the whole record
// atomically; Load reports ok=false for unknown ids.
type Persister interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (rec Record, ok bool, err error)
	List(ctx context.Context) ([]string, error)
}

// Store holds the live sessions. Safe for concurrent use.
type Store struct {
	persister Persister
	logCap    int
	clock     Clock
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(p Persister, logCap int, log zerolog.Logger) *Store {
	return &Store{
		persister: p,
		logCap:    logCap,
		clock:     systemClock{},
		log:       log.With().Str("component", "store").Logger(),
		sessions:  make(map[string]*Session),
	}
}

// Session returns the session for id, loading it from the persister or
// creating a fresh one when unknown.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess != nil {
		return sess, nil
	}

	loaded, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.sessions[id]; existing != nil {
		return existing, nil
	}
	s.sessions[id] = loaded
	return loaded, nil
}

func (s *Store) load(ctx context.Context, id string) (*Session, error) {
	if s.persister == nil {
		return newSession(id, s.logCap, s.clock.Now()), nil
	}
	rec, ok, err := s.persister.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !ok {
		return newSession(id, s.logCap, s.clock.Now()), nil
	}
	return sessionFromRecord(rec, s.logCap)
}

// Preload loads every persisted session, a few at a time.
func (s *Store) Preload(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	ids, err := s.persister.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	err = util.Parallel(ctx, ids, 4, func(ctx context.Context, id string) error {
		_, err := s.Session(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("sessions", len(ids)).Msg("preloaded")
	return nil
}

// saveLocked persists sess. Caller holds sess.mu so saves of one session
// are ordered.
func (s *Store) saveLocked(ctx context.Context, sess *Session) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, sess.recordLocked()); err != nil {
		return fmt.Errorf("save session %s: %w", sess.id, err)
	}
	return nil
}

// Summaries returns the lock-free snapshot of every live session.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	return out
}

// Lookup returns a live session without loading.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}
