package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pivot/internal/schema"
)

func boxSchema() schema.Schema {
	return schema.Schema{
		Fields:   []schema.Field{{Name: "value", Type: schema.TypeUint}},
		Reserved: 2,
	}
}

func TestNew_DerivesHandle(t *testing.T) {
	b, err := New("1.0.0", boxSchema(), nil)
	require.NoError(t, err)

	assert.Equal(t, schema.Handle("1.0.0", boxSchema()), b.Handle())
	assert.Equal(t, "1.0.0", b.Version())
	assert.Equal(t, boxSchema(), b.Schema())
}

func TestNew_RejectsEmptyVersion(t *testing.T) {
	_, err := New("", boxSchema(), nil)
	assert.Error(t, err)
}

func TestNew_RejectsInvalidSchema(t *testing.T) {
	bad := schema.Schema{Fields: []schema.Field{{Name: "x", Type: "float"}}}
	_, err := New("1.0.0", bad, nil)
	assert.Error(t, err)
}

func TestNew_CopiesOpTable(t *testing.T) {
	ops := map[string]Handler{
		"noop": func(ctx context.Context, frame Frame, args map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}
	b, err := New("1.0.0", boxSchema(), ops)
	require.NoError(t, err)

	delete(ops, "noop")
	_, ok := b.Op("noop")
	assert.True(t, ok, "bundle op table must not alias the input map")
}

func TestOps_Sorted(t *testing.T) {
	b, err := New("1.0.0", boxSchema(), map[string]Handler{
		"zeta":  nil,
		"alpha": nil,
		"mid":   nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, b.Ops())
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	b, err := New("1.0.0", boxSchema(), nil)
	require.NoError(t, err)

	_, ok := r.Lookup(b.Handle())
	assert.False(t, ok)

	r.Register(b)
	got, ok := r.Lookup(b.Handle())
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	b1, err := New("1.0.0", boxSchema(), nil)
	require.NoError(t, err)
	b2, err := New("1.0.0", boxSchema(), nil)
	require.NoError(t, err)
	require.Equal(t, b1.Handle(), b2.Handle())

	r.Register(b1)
	r.Register(b2)

	got, ok := r.Lookup(b1.Handle())
	require.True(t, ok)
	assert.Same(t, b1, got, "first registration wins")
	assert.Len(t, r.Handles(), 1)
}
