package store

import (
	"time"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// Checkpoint commits the journal and saves a full snapshot under one hold of
// the store lock. The journal is removed only once the snapshot is written.
func (s *Store) Checkpoint() error {
	if s.filename == "" {
		return domain.NewIOError("checkpoint", "", ErrNotPersisted)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(s.save); err != nil {
		return err
	}

	s.updateStats(func(st *Stats) { st.LastCheckpoint = time.Now() })
	return nil
}

// StartBackgroundWorkers starts the periodic checkpoint worker. It does
// nothing for an in-memory store or when no interval is configured.
func (s *Store) StartBackgroundWorkers() {
	if s.filename == "" || s.checkpointInterval <= 0 {
		return
	}

	s.workersMu.Lock()
	defer s.workersMu.Unlock()

	if s.running {
		return
	}
	select {
	case <-s.stopChan:
		return
	default:
	}
	s.running = true

	s.backgroundWg.Add(1)
	go func() {
		defer s.backgroundWg.Done()
		ticker := time.NewTicker(s.checkpointInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Checkpoint(); err != nil {
					s.logger.Printf("ERROR: %s: checkpoint failed: %v", s.name, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
}

// StopBackgroundWorkers stops background workers
func (s *Store) StopBackgroundWorkers() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.backgroundWg.Wait()
}
