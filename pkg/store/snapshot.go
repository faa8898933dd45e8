package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// Save writes every collection to the snapshot file, replacing it atomically
func (s *Store) Save() error {
	if s.filename == "" {
		return domain.NewIOError("save", "", ErrNotPersisted)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) save() error {
	collections := make(map[string][]domain.Document, len(s.models))
	for name, m := range s.models {
		collections[name] = m.Snapshot()
	}

	var data []byte
	var err error
	switch s.format {
	case FormatBinary:
		data, err = encodeBinary(collections)
	default:
		data, err = json.Marshal(collections)
	}
	if err != nil {
		return domain.NewIOError("encode snapshot", s.filename, err)
	}

	if err := atomic.WriteFile(s.filename, bytes.NewReader(data)); err != nil {
		return domain.NewIOError("write snapshot", s.filename, err)
	}

	s.updateStats(func(st *Stats) { st.Saves++ })
	return nil
}

// Load replaces the documents of every collection named in the snapshot file.
// Collections the store does not know yet are created through the collection
// factory and registered. Documents are taken as stored, without validation.
func (s *Store) Load() error {
	if s.filename == "" {
		return domain.NewIOError("load", "", ErrNotPersisted)
	}

	data, err := os.ReadFile(s.filename)
	if err != nil {
		return domain.NewIOError("read snapshot", s.filename, err)
	}

	collections, err := decodeSnapshot(data)
	if err != nil {
		return domain.NewIOError("decode snapshot", s.filename, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, docs := range collections {
		if m, ok := s.models[name]; ok {
			m.Restore(docs)
			continue
		}
		m := s.factory(name, docs)
		if m == nil {
			return domain.NewIOError("load", s.filename, fmt.Errorf("no collection built for %q", name))
		}
		s.register(m)
	}

	s.updateStats(func(st *Stats) { st.Loads++ })
	return nil
}

func decodeSnapshot(data []byte) (map[string][]domain.Document, error) {
	if isBinarySnapshot(data) {
		return decodeBinary(data)
	}

	var collections map[string][]domain.Document
	if err := json.Unmarshal(data, &collections); err != nil {
		return nil, fmt.Errorf("failed to decode JSON snapshot: %w", err)
	}
	if collections == nil {
		return nil, fmt.Errorf("snapshot is not an object")
	}
	return collections, nil
}
