// Package proxy implements the stable-address dispatcher for upgradeable
// component instances.
//
// The proxy is the heart of pivot - every inbound call enters here, gets
// routed through the initialization guard and access-control gate, and
// executes the instance's current implementation against the instance's
// own storage.
//
// ARCHITECTURE:
//
// One Call At A Time:
// A mutex serializes dispatches, and each dispatch runs inside a single
// SQLite transaction. This ensures:
// - A call commits all of its storage writes or none of them
// - Privileged operations (initializer, upgrade) are non-reentrant
// - An upgrade is totally ordered against every other call
//
// Dispatch Flow:
// 1. Dispatch() routes administrative ops (initialize, upgrade,
//    transfer_ownership) to their guarded paths
// 2. Business ops load the instance row and resolve the current
//    implementation handle fresh - NEVER cached across upgrades
// 3. The handler executes against a storage frame scoped to the
//    instance's fields
// 4. On success the transaction commits and audit events are emitted
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All audit events stamped with a monotonic seq counter from Clock.Next().
// Wall-clock timestamps are recorded for operators but NEVER used for
// ordering.
//
// Fresh Resolution:
// The implementation handle is read from the instance row inside the
// dispatch transaction on every call. There is no cache to invalidate, so
// no call can observe a torn mix of old and new logic.
package proxy
