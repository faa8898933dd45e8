package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// Commit drains the journal into the collections and truncates it.
//
// Every record is decoded before any is applied, so a corrupt journal leaves
// the collections untouched and the file in place. Records naming an unknown
// collection are logged and skipped. Mutations issued while Commit runs wait
// for it and are journaled to the fresh stream afterwards.
func (s *Store) Commit() error {
	if s.filename == "" {
		return domain.NewIOError("commit", "", ErrNotPersisted)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(nil)
}

// commit replays the journal and then runs beforeRemove, if set, before the
// journal file is deleted. When beforeRemove fails the journal is kept.
// It must be called with s.mu held.
func (s *Store) commit(beforeRemove func() error) error {
	start := time.Now()
	path := s.JournalPath()

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Printf("WARN: %s: failed to close journal before commit: %v", s.name, err)
		}
		s.journal = nil
	}
	defer s.openJournal()

	records, torn, err := readJournal(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if beforeRemove != nil {
				return beforeRemove()
			}
			return nil
		}
		if errors.Is(err, domain.ErrCorruptJournal) {
			s.logger.Printf("ERROR: %s: journal %s not replayed: %v", s.name, path, err)
			return fmt.Errorf("failed to commit %s: %w", path, err)
		}
		return domain.NewIOError("read journal", path, err)
	}
	if len(torn) > 0 {
		s.logger.Printf("WARN: %s: dropping torn journal record (%d bytes) at end of %s", s.name, len(torn), path)
	}

	var replayed, skipped int64
	for _, rec := range records {
		if s.replay(rec) {
			replayed++
		} else {
			skipped++
		}
	}

	if beforeRemove != nil {
		if err := beforeRemove(); err != nil {
			s.logger.Printf("ERROR: %s: journal %s kept after failed snapshot: %v", s.name, path, err)
			return err
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.NewIOError("remove journal", path, err)
	}

	s.updateStats(func(st *Stats) {
		st.Commits++
		st.RecordsReplayed += replayed
		st.RecordsSkipped += skipped
	})
	s.logger.Printf("INFO: %s: committed %d journal record(s) in %v", s.name, replayed, time.Since(start))
	return nil
}

// replay applies one record and reports whether its collection is known.
// It must be called with s.mu held.
func (s *Store) replay(rec Record) bool {
	m, ok := s.models[rec.Collection]
	if !ok {
		s.logger.Printf("WARN: %s: journal record LSN %d names unknown collection %q, skipped", s.name, rec.LSN, rec.Collection)
		return false
	}

	// Inserts already present and deletes already applied are no-ops
	switch rec.Op {
	case domain.EventInsert:
		m.ReplayInsert(rec.Data)
	case domain.EventUpdate:
		m.ReplayUpdate(rec.Data)
	case domain.EventDelete:
		m.ReplayDelete(rec.Data.ID())
	}
	return true
}
