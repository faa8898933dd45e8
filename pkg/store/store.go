// Package store groups named collections and makes their mutations durable.
//
// A store configured with a filename journals every insert, update and delete
// notification of its collections to "<filename>.swp", one record per line.
// Commit replays the journal into the collections and truncates it; Save and
// Load exchange a full snapshot of every collection with the file itself.
package store

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// ErrNotPersisted is returned by file operations of a store without a backing file
var ErrNotPersisted = errors.New("store has no backing file")

// Stats represents store statistics
type Stats struct {
	Name            string    `json:"name"`
	Filename        string    `json:"filename,omitempty"`
	Persisted       bool      `json:"persisted"`
	Collections     int       `json:"collections"`
	Documents       int       `json:"documents"`
	RecordsWritten  int64     `json:"records_written"`
	WriteFailures   int64     `json:"write_failures"`
	Commits         int64     `json:"commits"`
	RecordsReplayed int64     `json:"records_replayed"`
	RecordsSkipped  int64     `json:"records_skipped"`
	Saves           int64     `json:"saves"`
	Loads           int64     `json:"loads"`
	LastCheckpoint  time.Time `json:"last_checkpoint"`
}

// Store owns a set of named collections and their journal
type Store struct {
	mu       sync.Mutex
	name     string
	filename string

	models     map[string]domain.Persistable
	subscribed map[domain.Persistable]bool
	journal    *Journal

	logger             *log.Logger
	durability         DurabilityLevel
	format             SnapshotFormat
	capability         Capability
	factory            CollectionFactory
	checkpointInterval time.Duration

	statsMu sync.RWMutex
	stats   Stats

	// Background workers
	stopChan     chan struct{}
	stopOnce     sync.Once
	backgroundWg sync.WaitGroup
	workersMu    sync.Mutex
	running      bool

	closed bool
}

// New creates a store. When cfg.Filename is set the journal is opened in
// append mode; if that fails the store logs a warning and stays unpersisted.
func New(cfg Config, options ...Option) *Store {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}

	s := &Store{
		name:       name,
		filename:   cfg.Filename,
		models:     make(map[string]domain.Persistable),
		subscribed: make(map[domain.Persistable]bool),
		logger:     log.Default(),
		durability: DurabilityOS,
		format:     FormatJSON,
		factory:    defaultFactory,
		stopChan:   make(chan struct{}),
	}

	for _, option := range options {
		option(s)
	}

	if s.filename != "" {
		s.openJournal()
	}

	return s
}

// Name returns the store name
func (s *Store) Name() string {
	return s.name
}

// Filename returns the snapshot path, or "" for an in-memory store
func (s *Store) Filename() string {
	return s.filename
}

// JournalPath returns the journal path, or "" for an in-memory store
func (s *Store) JournalPath() string {
	if s.filename == "" {
		return ""
	}
	return s.filename + JournalExtension
}

// Persisted reports whether mutations are currently being journaled
func (s *Store) Persisted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal != nil
}

// AddCollection subscribes to the collection's mutations and registers it
// under its name, replacing any previous collection of that name.
func (s *Store) AddCollection(m domain.Model) (*Store, error) {
	if m == nil {
		return s, domain.ErrTypeMismatch
	}
	p, ok := m.(domain.Persistable)
	if !ok {
		return s, fmt.Errorf("%w: collection %q has no replay surface", domain.ErrTypeMismatch, m.Name())
	}
	if s.capability != nil && !s.capability(m) {
		return s, fmt.Errorf("%w: collection %q rejected by store %q", domain.ErrTypeMismatch, m.Name(), s.name)
	}
	if m.Name() == "" {
		return s, domain.InvalidArgument("collection name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(p)
	return s, nil
}

// register must be called with s.mu held
func (s *Store) register(p domain.Persistable) {
	if !s.subscribed[p] {
		for _, event := range domain.Events {
			event := event
			p.On(event, func(_ domain.Event, docs []domain.Document) {
				s.write(p, event, docs)
			})
		}
		s.subscribed[p] = true
	}
	s.models[p.Name()] = p
}

// GetModel returns the named collection, or nil if none is registered
func (s *Store) GetModel(name string) (domain.Persistable, error) {
	if name == "" {
		return nil, domain.InvalidArgument("collection name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models[name], nil
}

// Collections returns the registered collection names, sorted
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a copy of the store statistics
func (s *Store) Stats() Stats {
	s.mu.Lock()
	collections := len(s.models)
	documents := 0
	for _, m := range s.models {
		documents += m.Len()
	}
	persisted := s.journal != nil
	s.mu.Unlock()

	s.statsMu.RLock()
	stats := s.stats
	s.statsMu.RUnlock()

	stats.Name = s.name
	stats.Filename = s.filename
	stats.Persisted = persisted
	stats.Collections = collections
	stats.Documents = documents
	return stats
}

func (s *Store) updateStats(fn func(*Stats)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	fn(&s.stats)
}

// write journals one record per document. It never fails the mutation that
// triggered it: a missing stream or bad input is logged and counted.
func (s *Store) write(m domain.Persistable, event domain.Event, docs []domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.models[m.Name()] != m {
		s.logger.Printf("WARN: %s: mutation of detached collection %s not journaled", s.name, m.Name())
		return
	}

	if s.journal == nil {
		if s.filename != "" {
			s.logger.Printf("ERROR: %s: no journal stream, %d %s record(s) of %s not journaled", s.name, len(docs), event, m.Name())
			s.updateStats(func(st *Stats) { st.WriteFailures += int64(len(docs)) })
		}
		return
	}

	for _, doc := range docs {
		if doc == nil {
			s.logger.Printf("ERROR: %s: refusing to journal empty %s record for %s", s.name, event, m.Name())
			s.updateStats(func(st *Stats) { st.WriteFailures++ })
			continue
		}

		if _, err := s.journal.Append(Record{Collection: m.Name(), Op: event, Data: doc}); err != nil {
			s.logger.Printf("ERROR: %s: failed to journal %s on %s: %v", s.name, event, m.Name(), err)
			s.updateStats(func(st *Stats) { st.WriteFailures++ })
			continue
		}
		s.updateStats(func(st *Stats) { st.RecordsWritten++ })
	}
}

// openJournal must be called with s.mu held or before the store is shared
func (s *Store) openJournal() {
	if s.closed {
		return
	}
	journal, err := OpenJournal(s.JournalPath(), s.durability)
	if err != nil {
		s.logger.Printf("WARN: %s: journal unavailable, mutations will not be durable: %v", s.name, err)
		s.journal = nil
		return
	}
	if n := journal.Dropped(); n > 0 {
		s.logger.Printf("WARN: %s: dropped torn journal record (%d bytes) at end of %s", s.name, n, journal.Path())
	}
	s.journal = journal
}

// Close stops the background workers and closes the journal stream
func (s *Store) Close() error {
	s.StopBackgroundWorkers()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	if err != nil {
		return domain.NewIOError("close journal", s.JournalPath(), err)
	}
	return nil
}
