package bundle

import (
	"context"
	"fmt"

	"github.com/roach88/pivot/internal/schema"
)

// Accessors derives a generic op table from a schema: get_<field> and
// set_<field> for every declared field. This is the default behavior for
// bundles deployed from a manifest alone (e.g. via the CLI), and the
// canonical payload for exercising the upgrade machinery in tests.
//
// get_<field> takes no args and returns {"value": <current>}, where a
// never-written field reads as its type's zero value. set_<field> takes
// {"value": <new>} and returns the value it wrote.
func Accessors(s schema.Schema) map[string]Handler {
	ops := make(map[string]Handler, 2*len(s.Fields))
	for _, f := range s.Fields {
		field := f // capture per iteration
		ops["get_"+field.Name] = func(ctx context.Context, frame Frame, args map[string]any) (map[string]any, error) {
			v, err := frame.Get(field.Name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"value": v}, nil
		}
		ops["set_"+field.Name] = func(ctx context.Context, frame Frame, args map[string]any) (map[string]any, error) {
			raw, ok := args["value"]
			if !ok {
				return nil, fmt.Errorf("set_%s: missing arg %q", field.Name, "value")
			}
			v, err := field.Type.Coerce(raw)
			if err != nil {
				return nil, fmt.Errorf("set_%s: %w", field.Name, err)
			}
			if err := frame.Set(field.Name, v); err != nil {
				return nil, err
			}
			return map[string]any{"value": v}, nil
		}
	}
	return ops
}
