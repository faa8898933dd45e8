package store

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/adfharrison1/go-docstore/pkg/collection"
	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// DefaultName is the store name callers fall back to when none is configured
const DefaultName = "store"

// Config holds the recognized construction settings of a store.
// An empty Filename keeps the store in memory only.
type Config struct {
	Name     string `json:"name"`
	Filename string `json:"filename,omitempty"`
}

// Capability decides whether a collection may be added to a store, on top of
// the domain.Persistable requirement
type Capability func(domain.Model) bool

// CollectionFactory builds the collections Load creates for unknown names
type CollectionFactory func(name string, docs []domain.Document) domain.Persistable

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for journal and snapshot diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDurability sets the journal durability level
func WithDurability(level DurabilityLevel) Option {
	return func(s *Store) {
		s.durability = level
	}
}

// WithSnapshotFormat sets the format Save writes. Load detects the format.
func WithSnapshotFormat(format SnapshotFormat) Option {
	return func(s *Store) {
		s.format = format
	}
}

// WithCapability restricts which collections AddCollection accepts
func WithCapability(capability Capability) Option {
	return func(s *Store) {
		s.capability = capability
	}
}

// WithCollectionFactory replaces the factory Load uses for new collections
func WithCollectionFactory(factory CollectionFactory) Option {
	return func(s *Store) {
		if factory != nil {
			s.factory = factory
		}
	}
}

// WithCheckpointInterval enables periodic checkpoints once background workers start
func WithCheckpointInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.checkpointInterval = interval
	}
}

func defaultFactory(name string, docs []domain.Document) domain.Persistable {
	return collection.New(collection.Config{Name: name}, collection.WithDocuments(docs))
}

// SnapshotFormat selects the encoding of the snapshot file
type SnapshotFormat int

const (
	FormatJSON   SnapshotFormat = iota // single JSON object (default)
	FormatBinary                       // GODB header + lz4 compressed msgpack
)

func (f SnapshotFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("SnapshotFormat(%d)", int(f))
	}
}

// ParseSnapshotFormat resolves a format name
func ParseSnapshotFormat(name string) (SnapshotFormat, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "binary", "godb", "msgpack":
		return FormatBinary, nil
	}
	return FormatJSON, domain.InvalidArgument("unknown snapshot format %q", name)
}
