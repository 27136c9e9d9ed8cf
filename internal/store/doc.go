// Package store provides durable SQLite-backed storage for the upgrade
// system: bundle manifests, component instance rows, and the append-only
// audit event log.
//
// Three tables:
//
//   - bundles: deployed implementation manifests, keyed by content-addressed
//     handle. Immutable once written.
//   - instances: component instances - owner, initialization flag, current
//     implementation handle, and the storage object itself (JSON).
//   - events: the audit trail. Append-only, ordered by logical sequence.
//
// All dispatcher mutations run through Tx so a call's storage writes,
// handle swaps, and event appends commit or roll back together.
package store
