// Package schema implements the storage layout contract: a declarative,
// ordered description of a component instance's persistent fields, plus the
// prefix-compatibility check that gates every upgrade.
//
// A schema is an ordered list of (name, type) fields and an optional number
// of reserved slots for future appends. Order matters: compatibility is
// defined positionally, so two schemas with the same fields in a different
// order are NOT compatible.
//
// The compatibility rule (Check) is the only thing standing between an
// upgrade and silent storage corruption, so it is deliberately strict:
// a new schema must preserve the old schema's fields as an exact prefix
// (same names, same types, same order) and may only append.
package schema
