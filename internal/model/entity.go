package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Ref is a by-value pointer to another entity's identity. It never implies ownership.
type Ref struct {
	Domain    string  `json:"domain"`
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp,omitempty"` // Revision of the referenced entity, if known
}

// Key returns the identity of the referenced entity, ignoring the timestamp
func (r Ref) Key() Key {
	return Key{Domain: r.Domain, Name: r.Name}
}

// Key is the (domain, name) identity of a continuant
type Key struct {
	Domain string
	Name   string
}

func (k Key) String() string {
	return k.Domain + ":" + k.Name
}

// ValueKind discriminates the Value union
type ValueKind int

const (
	KindInvalid ValueKind = iota // Zero Value; rejected by validation
	KindBool
	KindString
	KindFloat
	KindInt
	KindRef
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindRef:
		return "ref"
	default:
		return "invalid"
	}
}

// Value is an attribute value: a scalar or a reference
type Value struct {
	kind ValueKind
	b    bool
	s    string
	f    float64
	i    int64
	ref  Ref
}

// Bool creates a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String creates a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Float creates a floating point value
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Int creates an integer value
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// RefValue creates a reference value
func RefValue(r Ref) Value { return Value{kind: KindRef, ref: r} }

// Kind returns the kind of the value
func (v Value) Kind() ValueKind { return v.kind }

// Ref returns the referenced identity when the value is a reference
func (v Value) Ref() (Ref, bool) {
	return v.ref, v.kind == KindRef
}

// Interface returns the underlying Go value (bool, string, float64, int64, Ref or nil)
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindRef:
		return v.ref
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	if v.kind == KindRef {
		return v.ref.Key().String()
	}
	return fmt.Sprint(v.Interface())
}

// MarshalJSON encodes scalars as JSON scalars and references as objects
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("marshal value: invalid kind")
	}
	return json.Marshal(v.Interface())
}

// Attrs are the literal or reference attributes of an entity
type Attrs map[string]Value

// Refs are the related entities of an entity
type Refs map[string]Ref

// Entity is a node of the provenance graph
type Entity struct {
	Domain    string   `json:"domain"`
	Name      string   `json:"name"`
	Labels    []string `json:"labels"`
	Attrs     Attrs    `json:"attrs,omitempty"`
	Refs      Refs     `json:"refs,omitempty"`
	Timestamp float64  `json:"timestamp"` // Seconds since the epoch
	Batch     string   `json:"batch"`     // Revision the entity was produced from
}

// Ident returns a reference to this entity
func (e Entity) Ident() Ref {
	return Ref{Domain: e.Domain, Name: e.Name}
}

// Key returns the continuant identity of the entity
func (e Entity) Key() Key {
	return Key{Domain: e.Domain, Name: e.Name}
}

// HasLabel checks if the entity carries the given label
func (e Entity) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// LabelSet returns the labels sorted with duplicates removed
func LabelSet(labels ...string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Entity labels used by the provenance graph
const (
	LabelAgent             = "Agent"
	LabelService           = "Service"
	LabelPerson            = "Person"
	LabelCommit            = "Commit"
	LabelFile              = "File"
	LabelModel             = "Model"
	LabelTable             = "Table"
	LabelField             = "Field"
	LabelEvent             = "Event"
	LabelEntitiesExtracted = "EntitiesExtracted"
	LabelDiff              = "Diff"
	LabelAdd               = "Add"
	LabelChange            = "Change"
)
