// Package collection holds an ordered, named sequence of documents and
// applies insert, update and delete mutations to it, reporting every
// mutation to subscribed listeners.
//
// Documents handed out by Find, FindOne, FindById and FindAll are the maps the
// collection stores, not copies. Writing to them changes the collection
// without notifying listeners, so such changes never reach a store's journal.
package collection

import (
	"fmt"
	"sync"

	"github.com/adfharrison1/go-docstore/pkg/domain"
	"github.com/adfharrison1/go-docstore/pkg/query"
)

const maxIDAttempts = 8

// Collection is an ordered set of documents for one name
type Collection struct {
	mu    sync.RWMutex
	name  string
	docs  []domain.Document
	ids   map[string]int // identifier -> number of stored documents carrying it
	newID func() string

	listenersMu sync.RWMutex
	listeners   map[domain.Event][]domain.Listener
}

// New creates a collection from an explicit configuration
func New(cfg Config, options ...Option) *Collection {
	c := &Collection{
		name:      cfg.Name,
		newID:     NewULID,
		listeners: make(map[domain.Event][]domain.Listener),
	}

	for _, option := range options {
		option(c)
	}

	c.reindex()
	return c
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of stored documents
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// On subscribes a listener to a mutation event
func (c *Collection) On(event domain.Event, listener domain.Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[event] = append(c.listeners[event], listener)
}

// emit runs outside the document lock so listeners may call back into the collection
func (c *Collection) emit(event domain.Event, docs []domain.Document) {
	c.listenersMu.RLock()
	listeners := append([]domain.Listener(nil), c.listeners[event]...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event, docs)
	}
}

// Insert stores doc under a fresh identifier and returns it.
// The returned document is the stored map itself.
func (c *Collection) Insert(doc domain.Document) (domain.Document, error) {
	if doc == nil {
		return nil, domain.InvalidArgument("insert accepts only a mapping")
	}

	c.mu.Lock()
	id, err := c.generateID()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	doc[domain.IDField] = id
	c.docs = append(c.docs, doc)
	c.ids[id]++
	c.mu.Unlock()

	c.emit(domain.EventInsert, []domain.Document{doc})
	return doc, nil
}

func (c *Collection) generateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := c.newID()
		if id != "" && c.ids[id] == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("collection %s: failed to generate a unique identifier after %d attempts", c.name, maxIDAttempts)
}

// FindById returns the newest stored document with the given identifier,
// or nil if there is none
func (c *Collection) FindById(id string) (domain.Document, error) {
	if id == "" {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.lastIndexOf(id); i >= 0 {
		return c.docs[i], nil
	}
	return nil, nil
}

func (c *Collection) lastIndexOf(id string) int {
	for i := len(c.docs) - 1; i >= 0; i-- {
		if c.docs[i].ID() == id {
			return i
		}
	}
	return -1
}

// Find returns every matching document in insertion order, deduplicated by
// identifier with the first occurrence kept
func (c *Collection) Find(q domain.Query) ([]domain.Document, error) {
	m, err := query.Parse(q)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	docs, _ := c.match(m)
	return docs, nil
}

// FindOne returns the first matching document, or nil
func (c *Collection) FindOne(q domain.Query) (domain.Document, error) {
	docs, err := c.Find(q)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// FindAll returns the stored sequence itself. It is not a defensive copy.
func (c *Collection) FindAll() []domain.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs
}

// match returns the matching documents along with their positions in the
// stored sequence. Nil entries never match. Caller holds mu.
func (c *Collection) match(m *query.Matcher) ([]domain.Document, []int) {
	result := make([]domain.Document, 0)
	var positions []int
	seen := make(map[string]struct{})

	for i, doc := range c.docs {
		if doc == nil || !m.Matches(doc) {
			continue
		}
		if id := doc.ID(); id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		result = append(result, doc)
		positions = append(positions, i)
	}
	return result, positions
}

// Update merges patch into every stored document matching q and returns
// the mutated documents
func (c *Collection) Update(q domain.Query, patch domain.Document) ([]domain.Document, error) {
	if patch == nil {
		return nil, domain.InvalidArgument("update accepts only a mapping as patch")
	}
	m, err := query.Parse(q)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	result, _ := c.match(m)
	for _, doc := range result {
		doc.Merge(patch)
	}
	c.mu.Unlock()

	if len(result) > 0 {
		c.emit(domain.EventUpdate, result)
	}
	return result, nil
}

// UpdateById updates the single document with the given identifier
func (c *Collection) UpdateById(id string, patch domain.Document) (domain.Document, error) {
	result, err := c.Update(domain.IDQuery(id), patch)
	if err != nil {
		return nil, err
	}
	if len(result) != 1 {
		return nil, fmt.Errorf("%w: %d documents updated for id %s", domain.ErrNotUnique, len(result), id)
	}
	return result[0], nil
}

// Delete removes every document matching q and returns the removed documents
func (c *Collection) Delete(q domain.Query) ([]domain.Document, error) {
	m, err := query.Parse(q)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	result, positions := c.match(m)
	if len(result) > 0 {
		// Later copies of a matched identifier go too. Documents without
		// one are removed only at the positions that matched.
		at := make(map[int]struct{}, len(positions))
		ids := make(map[string]struct{}, len(result))
		for k, doc := range result {
			at[positions[k]] = struct{}{}
			if id := doc.ID(); id != "" {
				ids[id] = struct{}{}
			}
		}
		c.removeWhere(func(i int, doc domain.Document) bool {
			if _, ok := at[i]; ok {
				return true
			}
			_, ok := ids[doc.ID()]
			return ok
		})
	}
	c.mu.Unlock()

	if len(result) > 0 {
		c.emit(domain.EventDelete, result)
	}
	return result, nil
}

// DeleteById deletes the single document with the given identifier
func (c *Collection) DeleteById(id string) (domain.Document, error) {
	result, err := c.Delete(domain.IDQuery(id))
	if err != nil {
		return nil, err
	}
	if len(result) != 1 {
		return nil, fmt.Errorf("%w: %d documents deleted for id %s", domain.ErrNotUnique, len(result), id)
	}
	return result[0], nil
}

// InsertOrUpdate updates the documents matching q with doc, or inserts doc
// when nothing matched. The two steps are not atomic.
func (c *Collection) InsertOrUpdate(q domain.Query, doc domain.Document) ([]domain.Document, error) {
	updated, err := c.Update(q, doc)
	if err != nil {
		return nil, err
	}
	if len(updated) > 0 {
		return updated, nil
	}

	inserted, err := c.Insert(doc)
	if err != nil {
		return nil, err
	}
	return []domain.Document{inserted}, nil
}

// removeWhere drops matching documents, preserving order. Caller holds mu.
func (c *Collection) removeWhere(drop func(i int, doc domain.Document) bool) int {
	kept := make([]domain.Document, 0, len(c.docs))
	removed := 0
	for i, doc := range c.docs {
		if drop(i, doc) {
			if id := doc.ID(); id != "" {
				c.ids[id]--
				if c.ids[id] <= 0 {
					delete(c.ids, id)
				}
			}
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return removed
}

func (c *Collection) reindex() {
	c.ids = make(map[string]int, len(c.docs))
	for _, doc := range c.docs {
		if id := doc.ID(); id != "" {
			c.ids[id]++
		}
	}
}
