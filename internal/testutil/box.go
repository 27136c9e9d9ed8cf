package testutil

import (
	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/schema"
)

// The Box example: the minimal stateful payload for exercising the upgrade
// machinery. Version 1 holds a single uint value; version 2 appends a name,
// consuming one reserved slot.

// BoxV1Schema is {value: uint} with two reserved slots.
func BoxV1Schema() schema.Schema {
	return schema.Schema{
		Fields:   []schema.Field{{Name: "value", Type: schema.TypeUint}},
		Reserved: 2,
	}
}

// BoxV2Schema appends {name: string}, consuming one reserved slot.
func BoxV2Schema() schema.Schema {
	return schema.Schema{
		Fields: []schema.Field{
			{Name: "value", Type: schema.TypeUint},
			{Name: "name", Type: schema.TypeString},
		},
		Reserved: 1,
	}
}

// BoxV1 builds the version 1 bundle with accessor ops.
func BoxV1() *bundle.Bundle {
	b, err := bundle.New("box/1.0.0", BoxV1Schema(), bundle.Accessors(BoxV1Schema()))
	if err != nil {
		panic(err)
	}
	return b
}

// BoxV2 builds the version 2 bundle with accessor ops.
func BoxV2() *bundle.Bundle {
	b, err := bundle.New("box/2.0.0", BoxV2Schema(), bundle.Accessors(BoxV2Schema()))
	if err != nil {
		panic(err)
	}
	return b
}

// BoxIncompatible builds a bundle whose schema drops the value field.
// Upgrading to it must always be rejected.
func BoxIncompatible() *bundle.Bundle {
	s := schema.Schema{
		Fields: []schema.Field{{Name: "name", Type: schema.TypeString}},
	}
	b, err := bundle.New("box/3.0.0-broken", s, bundle.Accessors(s))
	if err != nil {
		panic(err)
	}
	return b
}
