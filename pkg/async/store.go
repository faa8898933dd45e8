package async

import (
	"github.com/adfharrison1/go-docstore/pkg/domain"
	"github.com/adfharrison1/go-docstore/pkg/store"
)

// Store wraps a core store with future-returning operations
type Store struct {
	core   *store.Store
	runner *Runner
}

// NewStore wraps core
func NewStore(core *store.Store, runner *Runner) *Store {
	return &Store{core: core, runner: runner}
}

// Core returns the wrapped synchronous store
func (s *Store) Core() *store.Store { return s.core }

// Collections lists the registered collection names
func (s *Store) Collections() []string { return s.core.Collections() }

// AddCollection registers the core of an async collection or a core
// collection directly. The future resolves to this store.
func (s *Store) AddCollection(m domain.Model) *Future[*Store] {
	if wrapped, ok := m.(*Collection); ok {
		m = wrapped.Core()
	}
	return Go(s.runner, func() (*Store, error) {
		if _, err := s.core.AddCollection(m); err != nil {
			return s, err
		}
		return s, nil
	})
}

// GetModel resolves to the named collection wrapped for async use, or nil
func (s *Store) GetModel(name string) *Future[*Collection] {
	return Go(s.runner, func() (*Collection, error) {
		m, err := s.core.GetModel(name)
		if err != nil || m == nil {
			return nil, err
		}
		return NewCollection(m, s.runner), nil
	})
}

// Commit replays the journal into the collections
func (s *Store) Commit() *Future[struct{}] { return done(s.runner, s.core.Commit) }

// Save writes a full snapshot
func (s *Store) Save() *Future[struct{}] { return done(s.runner, s.core.Save) }

// Load reads the snapshot into the collections
func (s *Store) Load() *Future[struct{}] { return done(s.runner, s.core.Load) }

// Checkpoint commits the journal and saves a snapshot
func (s *Store) Checkpoint() *Future[struct{}] { return done(s.runner, s.core.Checkpoint) }
