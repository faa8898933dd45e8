package async

import (
	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// Collection wraps a core collection with future-returning operations
type Collection struct {
	core   domain.Persistable
	runner *Runner
}

// NewCollection wraps core
func NewCollection(core domain.Persistable, runner *Runner) *Collection {
	return &Collection{core: core, runner: runner}
}

// Core returns the wrapped synchronous collection
func (c *Collection) Core() domain.Persistable { return c.core }

// Name returns the collection name
func (c *Collection) Name() string { return c.core.Name() }

// On subscribes a listener to a mutation event of the core collection
func (c *Collection) On(event domain.Event, listener domain.Listener) {
	c.core.On(event, listener)
}

// Insert resolves to the stored document under its fresh identifier
func (c *Collection) Insert(doc domain.Document) *Future[domain.Document] {
	return Go(c.runner, func() (domain.Document, error) { return c.core.Insert(doc) })
}

// FindById resolves to the newest document with the identifier, or nil
func (c *Collection) FindById(id string) *Future[domain.Document] {
	return Go(c.runner, func() (domain.Document, error) { return c.core.FindById(id) })
}

// Find resolves to every matching document
func (c *Collection) Find(q domain.Query) *Future[[]domain.Document] {
	return Go(c.runner, func() ([]domain.Document, error) { return c.core.Find(q) })
}

// FindOne resolves to the first matching document, or nil
func (c *Collection) FindOne(q domain.Query) *Future[domain.Document] {
	return Go(c.runner, func() (domain.Document, error) { return c.core.FindOne(q) })
}

// FindAll resolves to the live stored sequence
func (c *Collection) FindAll() *Future[[]domain.Document] {
	return Go(c.runner, func() ([]domain.Document, error) { return c.core.FindAll(), nil })
}

// Update resolves to the documents the patch was merged into
func (c *Collection) Update(q domain.Query, patch domain.Document) *Future[[]domain.Document] {
	return Go(c.runner, func() ([]domain.Document, error) { return c.core.Update(q, patch) })
}

// UpdateById resolves to the single updated document
func (c *Collection) UpdateById(id string, patch domain.Document) *Future[domain.Document] {
	return Go(c.runner, func() (domain.Document, error) { return c.core.UpdateById(id, patch) })
}

// Delete resolves to the removed documents
func (c *Collection) Delete(q domain.Query) *Future[[]domain.Document] {
	return Go(c.runner, func() ([]domain.Document, error) { return c.core.Delete(q) })
}

// DeleteById resolves to the single removed document
func (c *Collection) DeleteById(id string) *Future[domain.Document] {
	return Go(c.runner, func() (domain.Document, error) { return c.core.DeleteById(id) })
}

// InsertOrUpdate resolves to the updated documents, or to the inserted one
func (c *Collection) InsertOrUpdate(q domain.Query, doc domain.Document) *Future[[]domain.Document] {
	return Go(c.runner, func() ([]domain.Document, error) { return c.core.InsertOrUpdate(q, doc) })
}
