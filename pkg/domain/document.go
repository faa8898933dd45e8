package domain

// IDField is the reserved field holding a document's generated identifier
const IDField = "_id"

// Document represents a document in the store
type Document map[string]interface{}

// Query is a predicate tree matched against documents.
// Top-level field clauses are AND-ed; the reserved OrKey holds a list of clauses.
type Query map[string]interface{}

// OrKey is the reserved query key for OR-grouping
const OrKey = "$or"

// ID returns the identifier of the document, or "" if it has none
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	id, _ := d[IDField].(string)
	return id
}

// Merge overwrites every key of patch into the document in place.
// The identifier field is never reassigned.
func (d Document) Merge(patch Document) {
	for key, value := range patch {
		if key == IDField {
			continue
		}
		d[key] = value
	}
}

// IDQuery returns an identifier-equality query
func IDQuery(id string) Query {
	return Query{IDField: map[string]interface{}{"$eq": id}}
}

// Clone returns a deep copy of the document. Nested mappings and
// []interface{} sequences are copied; other values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for key, value := range d {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Document(val).Clone())
	case Document:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
