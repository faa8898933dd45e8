package domain

// Event names a collection mutation
type Event string

const (
	EventInsert Event = "insert"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Events lists every mutation event in a stable order
var Events = []Event{EventInsert, EventUpdate, EventDelete}

// Valid reports whether e is a known mutation event
func (e Event) Valid() bool {
	switch e {
	case EventInsert, EventUpdate, EventDelete:
		return true
	}
	return false
}

// Listener receives the documents affected by a mutation.
// Insert notifications carry exactly one document.
type Listener func(event Event, docs []Document)

// Model is the minimal surface a named collection exposes to observers
type Model interface {
	Name() string
	On(event Event, listener Listener)
}

// Persistable is the capability a Store requires from its collections:
// mutation notifications plus a replay surface that does not notify.
type Persistable interface {
	Model
	Insert(doc Document) (Document, error)
	FindById(id string) (Document, error)
	Find(query Query) ([]Document, error)
	FindOne(query Query) (Document, error)
	FindAll() []Document
	Update(query Query, patch Document) ([]Document, error)
	UpdateById(id string, patch Document) (Document, error)
	Delete(query Query) ([]Document, error)
	DeleteById(id string) (Document, error)
	InsertOrUpdate(query Query, doc Document) ([]Document, error)
	Len() int

	// Snapshot returns deep copies of the stored documents, in order
	Snapshot() []Document
	// Restore replaces the stored sequence wholesale
	Restore(docs []Document)
	// ReplayInsert appends doc unless its identifier is already stored
	ReplayInsert(doc Document) bool
	// ReplayUpdate merges doc into the stored document with the same identifier
	ReplayUpdate(doc Document) bool
	// ReplayDelete removes the stored document with the given identifier
	ReplayDelete(id string) bool
}
