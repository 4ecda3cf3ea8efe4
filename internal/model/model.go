// Package model holds the wire and on-disk shapes shared by the transfer
// engine: resources, stubs, and the parent chain that threads through the
// structure walker.
package model

import "encoding/json"

// Resource is the generic envelope for any record flowing through the
// engine. Concrete resource bodies are untyped JSON (the source's field set
// is open-ended), so Resource carries the handful of attributes the engine
// itself needs plus the raw object for everything else.
type Resource map[string]interface{}

// SourceRecordKey returns the resource's `source_record_key`, or "" if unset.
func (r Resource) SourceRecordKey() string {
	return stringField(r, "source_record_key")
}

// UUID returns the resource's assigned `uuid`, or "" if unset.
func (r Resource) UUID() string {
	return stringField(r, "uuid")
}

// TargetRecordKey returns the resource's `target_record_key`, or "" if unset.
func (r Resource) TargetRecordKey() string {
	return stringField(r, "target_record_key")
}

func stringField(r Resource, key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Clone returns a deep-enough copy of r via a JSON round trip. Used when a
// handler mutates a record it does not own outright (e.g. the FK
// preprocessor rewriting nested references before writing back).
func (r Resource) Clone() (Resource, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Resource
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParentAncestor is one link in a ParentChain: the ancestor's type name and
// its full record.
type ParentAncestor struct {
	Type   string
	Record Resource
}

// ParentChain is the ordered sequence of ancestor records guiding path and
// URL construction (§4.2) and foreign-key search (§4.6). It is immutable:
// every descent produces a new chain via WithAncestor rather than mutating
// the caller's chain.
type ParentChain []ParentAncestor

// WithAncestor returns a new chain with (typeName, record) appended. The
// receiver is left untouched.
func (p ParentChain) WithAncestor(typeName string, record Resource) ParentChain {
	out := make(ParentChain, len(p), len(p)+1)
	copy(out, p)
	return append(out, ParentAncestor{Type: typeName, Record: record})
}

// Head returns the first ancestor and the remaining chain. ok is false for
// an empty chain.
func (p ParentChain) Head() (ParentAncestor, ParentChain, bool) {
	if len(p) == 0 {
		return ParentAncestor{}, nil, false
	}
	return p[0], p[1:], true
}

// Last returns the most recently appended ancestor, if any.
func (p ParentChain) Last() (ParentAncestor, bool) {
	if len(p) == 0 {
		return ParentAncestor{}, false
	}
	return p[len(p)-1], true
}

// ByType looks up an ancestor by its type name.
func (p ParentChain) ByType(typeName string) (ParentAncestor, bool) {
	for _, a := range p {
		if a.Type == typeName {
			return a, true
		}
	}
	return ParentAncestor{}, false
}
