package provenance

import (
	"fmt"

	"github.com/ppiankov/etlconv/internal/model"
)

// InvalidAttributeError reports an attribute that is not a scalar or a well-formed reference
type InvalidAttributeError struct {
	Entity model.Key
	Key    string
	Reason string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("invalid attribute %q on %s: %s", e.Key, e.Entity, e.Reason)
}

// MissingTimestampError reports an entity without a timestamp
type MissingTimestampError struct {
	Entity model.Key
}

func (e *MissingTimestampError) Error() string {
	return fmt.Sprintf("entity %s: timestamp is required", e.Entity)
}

// DanglingRefError reports a reference to an entity absent from the batch
type DanglingRefError struct {
	Entity model.Key
	Key    string
	Ref    model.Key
}

func (e *DanglingRefError) Error() string {
	return fmt.Sprintf("entity %s: %s refers to %s which is not in the batch", e.Entity, e.Key, e.Ref)
}

// Validate checks that an entity can leave the generator
func Validate(e model.Entity) error {
	if e.Timestamp == 0 {
		return &MissingTimestampError{Entity: e.Key()}
	}

	for key, value := range e.Attrs {
		if key == "" {
			return &InvalidAttributeError{Entity: e.Key(), Key: key, Reason: "key must be a non-empty string"}
		}

		switch value.Kind() {
		case model.KindBool, model.KindString, model.KindFloat, model.KindInt:
		case model.KindRef:
			ref, _ := value.Ref()
			if ref.Domain == "" || ref.Name == "" {
				return &InvalidAttributeError{Entity: e.Key(), Key: key, Reason: "reference requires domain and name"}
			}
		default:
			return &InvalidAttributeError{Entity: e.Key(), Key: key, Reason: "unsupported value kind " + value.Kind().String()}
		}
	}

	for key, ref := range e.Refs {
		if key == "" || ref.Domain == "" || ref.Name == "" {
			return &InvalidAttributeError{Entity: e.Key(), Key: "refs." + key, Reason: "reference requires domain and name"}
		}
	}

	return nil
}

// CheckRefs verifies that every reference in the batch resolves to an entity of the same batch
func CheckRefs(batch []model.Entity) error {
	present := make(map[model.Key]bool, len(batch))
	for _, e := range batch {
		present[e.Key()] = true
	}

	for _, e := range batch {
		for key, ref := range e.Refs {
			if !present[ref.Key()] {
				return &DanglingRefError{Entity: e.Key(), Key: key, Ref: ref.Key()}
			}
		}
		for key, value := range e.Attrs {
			if ref, ok := value.Ref(); ok && !present[ref.Key()] {
				return &DanglingRefError{Entity: e.Key(), Key: key, Ref: ref.Key()}
			}
		}
	}

	return nil
}
