// Package record defines the schema-less Record and the in-memory operations
// on an ordered Collection of records.
package record

import (
	"encoding/json"
	"fmt"
	"maps"
)

// IDKey is the reserved field name carrying a record's identifier.
const IDKey = "id"

// Record is one schema-less JSON object. The identifier lives outside Fields,
// and Fields never holds IDKey.
type Record struct {
	ID     string
	Fields map[string]any
}

// New builds a record from a decoded JSON object. Any "id" in fields is
// dropped in favour of id.
func New(id string, fields map[string]any) Record {
	r := Record{ID: id, Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		if k == IDKey {
			continue
		}
		r.Fields[k] = v
	}
	return r
}

// Merge returns the shallow union of r and patch, patch keys winning.
// The id never changes and r is left untouched.
func (r Record) Merge(patch map[string]any) Record {
	out := Record{ID: r.ID, Fields: make(map[string]any, len(r.Fields)+len(patch))}
	maps.Copy(out.Fields, r.Fields)
	for k, v := range patch {
		if k == IDKey {
			continue
		}
		out.Fields[k] = v
	}
	return out
}

// Map flattens the record back into a single JSON object.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+1)
	maps.Copy(m, r.Fields)
	m[IDKey] = r.ID
	return m
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON accepts any JSON object. A missing or non-string id leaves
// ID empty, so the record can never be matched by a lookup.
func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("record: expected JSON object, got null")
	}
	id, _ := m[IDKey].(string)
	*r = New(id, m)
	return nil
}
