package schema

import (
	"errors"
	"fmt"
)

// CompatReason categorizes why a schema pair is incompatible.
type CompatReason string

const (
	// ReasonFieldRemoved indicates the new schema dropped an existing field.
	ReasonFieldRemoved CompatReason = "FIELD_REMOVED"

	// ReasonFieldReordered indicates an existing field changed position.
	ReasonFieldReordered CompatReason = "FIELD_REORDERED"

	// ReasonFieldTypeChanged indicates an existing field changed type.
	ReasonFieldTypeChanged CompatReason = "FIELD_TYPE_CHANGED"

	// ReasonReservedSlotMisuse indicates appended fields exceed the old
	// reservation, or the new reservation fails to account for consumed slots.
	ReasonReservedSlotMisuse CompatReason = "RESERVED_SLOT_MISUSE"
)

// CompatError reports why a new schema cannot replace an old one.
// The registry surfaces it as INCOMPATIBLE_SCHEMA; the reason code and
// field name pinpoint the offending slot for the operator.
type CompatError struct {
	Reason  CompatReason
	Field   string // offending field name, if any
	Index   int    // offending field position, -1 if not positional
	Message string
}

// Error implements the error interface.
func (e *CompatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s, index=%d)", e.Reason, e.Message, e.Field, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Check validates that new is a prefix-compatible superset of old.
//
// The rule: every field of old must appear in new at the same position with
// the same name and type. New fields may only be appended. When old reserves
// slots, appends consume them one-for-one and new's reservation must equal
// old's minus the appended count; a zero reservation on old places no cap
// on appends.
//
// Returns nil if compatible, *CompatError otherwise. Runs no side effects -
// callers invoke it at upgrade-proposal time, before any state changes.
func Check(old, new Schema) error {
	for i, of := range old.Fields {
		if i >= len(new.Fields) {
			return &CompatError{
				Reason:  ReasonFieldRemoved,
				Field:   of.Name,
				Index:   i,
				Message: fmt.Sprintf("field %q missing from new schema", of.Name),
			}
		}
		nf := new.Fields[i]
		if nf.Name != of.Name {
			// Same field elsewhere means a reorder; absent means a removal.
			if _, exists := new.FieldNamed(of.Name); exists {
				return &CompatError{
					Reason:  ReasonFieldReordered,
					Field:   of.Name,
					Index:   i,
					Message: fmt.Sprintf("field %q moved from position %d", of.Name, i),
				}
			}
			return &CompatError{
				Reason:  ReasonFieldRemoved,
				Field:   of.Name,
				Index:   i,
				Message: fmt.Sprintf("field %q missing from new schema", of.Name),
			}
		}
		if nf.Type != of.Type {
			return &CompatError{
				Reason:  ReasonFieldTypeChanged,
				Field:   of.Name,
				Index:   i,
				Message: fmt.Sprintf("field %q changed type %s -> %s", of.Name, of.Type, nf.Type),
			}
		}
	}

	appended := len(new.Fields) - len(old.Fields)
	if old.Reserved > 0 {
		if appended > old.Reserved {
			return &CompatError{
				Reason: ReasonReservedSlotMisuse,
				Index:  -1,
				Message: fmt.Sprintf("appended %d fields but only %d slots reserved",
					appended, old.Reserved),
			}
		}
		if new.Reserved != old.Reserved-appended {
			return &CompatError{
				Reason: ReasonReservedSlotMisuse,
				Index:  -1,
				Message: fmt.Sprintf("new reservation %d does not account for %d consumed slots (want %d)",
					new.Reserved, appended, old.Reserved-appended),
			}
		}
	}

	return nil
}

// IsCompatError returns the *CompatError if err is one, unwrapping as needed.
func IsCompatError(err error) (*CompatError, bool) {
	var ce *CompatError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
