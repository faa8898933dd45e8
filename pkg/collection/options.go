package collection

import (
	"github.com/adfharrison1/go-docstore/pkg/domain"
	"github.com/oklog/ulid/v2"
)

// DefaultName is the name callers fall back to when none is configured
const DefaultName = "collection"

// Config holds the recognized construction settings of a collection
type Config struct {
	Name string `json:"name"`
}

// Option configures a Collection
type Option func(*Collection)

// WithDocuments pre-seeds the collection. Documents are stored as given,
// identifiers are not validated.
func WithDocuments(docs []domain.Document) Option {
	return func(c *Collection) {
		c.docs = docs
	}
}

// WithIDGenerator replaces the default ULID generator
func WithIDGenerator(gen func() string) Option {
	return func(c *Collection) {
		c.newID = gen
	}
}

// NewULID returns a fresh ULID in its canonical text form
func NewULID() string {
	return ulid.Make().String()
}
