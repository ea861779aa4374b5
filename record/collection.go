package record

import "encoding/json"

// Collection is the ordered sequence of records, in insertion order.
type Collection []Record

// Find returns the first record whose id equals id.
func (c Collection) Find(id string) (Record, bool) {
	if i := c.Index(id); i >= 0 {
		return c[i], true
	}
	return Record{}, false
}

// Index returns the position of the first record with the given id, or -1.
func (c Collection) Index(id string) int {
	for i, r := range c {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Has reports whether any record carries id.
func (c Collection) Has(id string) bool {
	return c.Index(id) >= 0
}

func (c Collection) Append(r Record) Collection {
	return append(c, r)
}

// ReplaceAt merges patch over the record at i and stores the result in place.
func (c Collection) ReplaceAt(i int, patch map[string]any) (Collection, Record) {
	merged := c[i].Merge(patch)
	c[i] = merged
	return c, merged
}

// Remove drops every record with the given id and reports whether the
// collection shrank.
func (c Collection) Remove(id string) (Collection, bool) {
	out := make(Collection, 0, len(c))
	for _, r := range c {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out, len(out) != len(c)
}

// Clone returns a deep copy by round-tripping through JSON.
func (c Collection) Clone() Collection {
	if c == nil {
		return Collection{}
	}
	b, _ := json.Marshal(c)
	var out Collection
	_ = json.Unmarshal(b, &out)
	return out
}

// MarshalJSON writes an empty collection as [] rather than null.
func (c Collection) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Record(c))
}
