package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/kitwatch/core/logger"
)

// FavoriteResult tells the caller whether AddFavorite changed anything.
type FavoriteResult int

const (
	FavoriteAdded FavoriteResult = iota + 1
	FavoriteExists
)

func (r FavoriteResult) String() string {
	switch r {
	case FavoriteAdded:
		return "added"
	case FavoriteExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Store is the process-wide record store. It keeps no cache: every call loads
// the document from the backend and every mutation saves it back, all under
// one mutex.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// NewStore wraps backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// load must be called with s.mu held. A corrupt document degrades to an empty
// store; the next save overwrites it.
func (s *Store) load(ctx context.Context) (Records, error) {
	start := time.Now()
	rs, err := s.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		logger.LogEvent(ctx, logger.Store, slog.LevelWarn, "store.load",
			slog.String("status", "fail"),
			slog.String("backend", s.backend.Name()),
			slog.String("cause", "corrupt"),
			logger.Err(err),
		)
		return Records{}, nil
	case err != nil:
		return nil, err
	}
	if logger.ShouldSampleDebug() {
		logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "store.load",
			slog.String("status", "ok"),
			slog.String("backend", s.backend.Name()),
			slog.Int("records", len(rs)),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return rs, nil
}

func (s *Store) save(ctx context.Context, rs Records) error {
	start := time.Now()
	if err := s.backend.Save(ctx, rs); err != nil {
		logger.LogEvent(ctx, logger.Store, slog.LevelError, "store.save",
			slog.String("status", "fail"),
			slog.String("backend", s.backend.Name()),
			logger.Err(err),
		)
		return err
	}
	logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "store.save",
		slog.String("status", "ok"),
		slog.String("backend", s.backend.Name()),
		slog.Int("records", len(rs)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Load returns a private copy of the whole mapping.
func (s *Store) Load(ctx context.Context) (Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return rs.clone(), nil
}

// Save overwrites the whole mapping.
func (s *Store) Save(ctx context.Context, rs Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, rs)
}

// Update runs fn over the current mapping and saves it when fn reports a
// change. Load, fn and save form one exclusive section.
func (s *Store) Update(ctx context.Context, fn func(Records) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(rs)
	if err != nil || !changed {
		return err
	}
	return s.save(ctx, rs)
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	rs, err := s.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	rec, ok := rs[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Put inserts or replaces rec.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("records: empty id")
	}
	return s.Update(ctx, func(rs Records) (bool, error) {
		rs[rec.ID] = rec
		return true, nil
	})
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.Update(ctx, func(rs Records) (bool, error) {
		if _, found = rs[id]; found {
			delete(rs, id)
		}
		return found, nil
	})
	return found, err
}

// List returns every record ordered by id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return rs.Sorted(), nil
}

// UpdateRecord changes renewal date and status of an existing record. The id
// and favorites are left untouched.
func (s *Store) UpdateRecord(ctx context.Context, id, renewalDate, status string) error {
	return s.Update(ctx, func(rs Records) (bool, error) {
		rec, ok := rs[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		rec.RenewalDate = renewalDate
		rec.Status = status
		rs[id] = rec
		return true, nil
	})
}
