package types

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// IDField is the property that identifies a record within its table.
const IDField = "id"

// Record is a schema-typed document. Values follow encoding/json decoding
// rules: numbers are float64, arrays are []any, objects are map[string]any.
type Record map[string]any

// ID returns the record's id, or "" when it has none or it is not a string.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// WithID returns a shallow copy of the record with id set.
func (r Record) WithID(id string) Record {
	out := make(Record, len(r)+1)
	maps.Copy(out, r)
	out[IDField] = id
	return out
}

// NewID generates a UUID v7 record id.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

// PropertySet is the set of property names a record kind declares.
type PropertySet map[string]struct{}

// NewPropertySet builds a set from names.
func NewPropertySet(names ...string) PropertySet {
	s := make(PropertySet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is a declared property.
func (s PropertySet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// ForInsert returns a deep copy of doc ready to be stored as a new record,
// assigning a UUID v7 id when doc has none. Returns ErrInvalidID if doc
// carries an id that is not a non-empty string.
func ForInsert(doc Record) (Record, error) {
	out := doc.Clone()
	if out == nil {
		out = Record{}
	}
	raw, ok := out[IDField]
	if !ok || raw == nil {
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		out[IDField] = id
		return out, nil
	}
	if id, ok := raw.(string); !ok || id == "" {
		return nil, ErrInvalidID
	}
	return out, nil
}

// ForUpdate returns a deep copy of doc after checking that it embeds the id
// of the record it replaces.
func ForUpdate(doc Record) (Record, error) {
	if doc.ID() == "" {
		return nil, ErrInvalidID
	}
	return doc.Clone(), nil
}
