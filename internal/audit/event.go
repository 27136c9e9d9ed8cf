// Package audit defines the structured events emitted for every successful
// initialization, ownership transfer, upgrade, and bundle deployment. The
// persisted event log is the sole durable audit trail - no upgrade-history
// entity is retained in instance storage.
package audit

import "time"

// Kind identifies the category of an audit event.
type Kind string

const (
	// KindBundleDeployed records a new implementation bundle becoming available.
	KindBundleDeployed Kind = "bundle_deployed"

	// KindInitialized records the one-shot initialization of an instance.
	KindInitialized Kind = "initialized"

	// KindUpgraded records a successful implementation swap.
	KindUpgraded Kind = "upgraded"

	// KindOwnershipTransferred records an explicit ownership transfer.
	KindOwnershipTransferred Kind = "ownership_transferred"
)

// Event is one entry in the audit trail.
//
// Seq is a monotonic logical sequence assigned by the proxy's clock; it
// totally orders events independently of wall-clock skew. FromVersion and
// ToVersion are set only for upgrade events.
type Event struct {
	Seq         int64     `json:"seq"`
	Kind        Kind      `json:"kind"`
	InstanceID  string    `json:"instance_id"`
	Actor       string    `json:"actor"`
	FromVersion string    `json:"from_version,omitempty"`
	ToVersion   string    `json:"to_version,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives events as they are committed. Implementations must not
// block; the proxy invokes the sink synchronously after the transaction
// that produced the event has committed.
type Sink func(Event)
