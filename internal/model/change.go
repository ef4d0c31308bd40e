package model

// ChangeEvent describes how a continuant differs from its previous revision
type ChangeEvent struct {
	Labels    []string    `json:"labels"`
	Domain    string      `json:"domain"`
	Name      string      `json:"name"`
	Timestamp float64     `json:"timestamp"`
	Refs      ChangeRefs  `json:"refs"`
	Attrs     *ChangeDiff `json:"attrs,omitempty"` // Nil for Add events
}

// Ident returns a reference to this change event
func (c ChangeEvent) Ident() Ref {
	return Ref{Domain: c.Domain, Name: c.Name}
}

// IsAdd reports whether this is the first observation of the continuant
func (c ChangeEvent) IsAdd() bool {
	for _, l := range c.Labels {
		if l == LabelAdd {
			return true
		}
	}
	return false
}

// ChangeRefs links the event to the entity revisions it compares
type ChangeRefs struct {
	Current  EventRef  `json:"current"`
	Previous *EventRef `json:"previous"`
	Next     *Ref      `json:"next,omitempty"` // Previous change event of the same continuant
}

// EventRef identifies one revision of an entity
type EventRef struct {
	Domain    string  `json:"domain"`
	Name      string  `json:"name"`
	Batch     string  `json:"batch"`
	Timestamp float64 `json:"timestamp"`
}

// ChangeDiff holds the attribute and reference diffs of a change
type ChangeDiff struct {
	Attrs Diff `json:"attrs"`
	Refs  Diff `json:"refs"`
}

// DiffAction classifies a key-level difference
type DiffAction string

const (
	ActionAdd    DiffAction = "add"
	ActionChange DiffAction = "change"
	ActionRemove DiffAction = "remove"
)

// AttrChange is the difference of a single attribute or reference
type AttrChange struct {
	Action   DiffAction `json:"action"`
	Value    any        `json:"value,omitempty"`
	Previous any        `json:"previous,omitempty"`

	// SameIdentity marks a changed reference that points to the same
	// continuant at a different revision. It is reported, not resolved.
	SameIdentity bool `json:"same_identity,omitempty"`
}

// Diff maps a changed key to its difference
type Diff map[string]AttrChange
