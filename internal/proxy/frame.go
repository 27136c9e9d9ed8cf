package proxy

import (
	"fmt"

	"github.com/roach88/pivot/internal/schema"
)

// storageFrame scopes a dispatched handler to the calling instance's own
// storage. The handler sees only the fields its bundle's schema declares;
// reads of never-written fields return the type's zero value, and writes
// are type-checked against the schema.
//
// Writes mutate the in-memory copy read at the start of the dispatch
// transaction. They become durable only if the handler returns nil and the
// transaction commits - a failed call discards everything.
type storageFrame struct {
	schema  schema.Schema
	storage map[string]any
}

func newStorageFrame(s schema.Schema, storage map[string]any) *storageFrame {
	return &storageFrame{schema: s, storage: storage}
}

// Get implements bundle.Frame.
func (f *storageFrame) Get(name string) (any, error) {
	field, ok := f.schema.FieldNamed(name)
	if !ok {
		return nil, fmt.Errorf("field %q not declared by implementation schema", name)
	}
	v, ok := f.storage[name]
	if !ok {
		return field.Type.Zero(), nil
	}
	return v, nil
}

// Set implements bundle.Frame.
func (f *storageFrame) Set(name string, value any) error {
	field, ok := f.schema.FieldNamed(name)
	if !ok {
		return fmt.Errorf("field %q not declared by implementation schema", name)
	}
	if err := field.Type.CheckValue(value); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	f.storage[name] = value
	return nil
}
