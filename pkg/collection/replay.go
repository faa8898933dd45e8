package collection

import "github.com/adfharrison1/go-docstore/pkg/domain"

var _ domain.Persistable = (*Collection)(nil)

// The methods in this file apply journal and snapshot state. None of them
// notify listeners, so replaying never writes back into a journal.

// Snapshot returns deep copies of the stored documents, taken under the read
// lock so encoding them cannot race with an update merge
func (c *Collection) Snapshot() []domain.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Document, len(c.docs))
	for i, doc := range c.docs {
		out[i] = doc.Clone()
	}
	return out
}

// Restore replaces the stored sequence wholesale, without validation
func (c *Collection) Restore(docs []domain.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if docs == nil {
		docs = make([]domain.Document, 0)
	}
	c.docs = docs
	c.reindex()
}

// ReplayInsert appends doc unless a document with its identifier is stored
func (c *Collection) ReplayInsert(doc domain.Document) bool {
	id := doc.ID()
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids[id] > 0 {
		return false
	}
	c.docs = append(c.docs, doc)
	c.ids[id]++
	return true
}

// ReplayUpdate merges doc into the stored document carrying the same
// identifier. The stored map is mutated in place.
func (c *Collection) ReplayUpdate(doc domain.Document) bool {
	id := doc.ID()
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.lastIndexOf(id)
	if i < 0 || c.docs[i] == nil {
		return false
	}
	c.docs[i].Merge(doc)
	return true
}

// ReplayDelete removes every stored document with the given identifier
func (c *Collection) ReplayDelete(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWhere(func(_ int, doc domain.Document) bool {
		return doc.ID() == id
	}) > 0
}
