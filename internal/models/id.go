package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies a record inside a ProjectDocument. Documents written by
// older clients carry numeric ids (often millisecond timestamps with a
// random fraction); those are accepted and kept in their decimal form.
type ID string

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// IDPtr returns a pointer to id, or nil for the empty ID.
func IDPtr(id ID) *ID {
	if id == "" {
		return nil
	}
	return &id
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("models: invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// sameID compares two nullable ids.
func sameID(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SameID reports whether two nullable ids refer to the same record
// (both nil counts as the same root).
func SameID(a, b *ID) bool { return sameID(a, b) }
