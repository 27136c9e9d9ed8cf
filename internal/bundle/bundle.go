// Package bundle models an implementation bundle: an immutable, versioned
// unit of behavior with no persistent storage of its own. A bundle is the
// pairing of a durable manifest (version, field schema, reservation) with an
// in-process op table mapping operation names to handlers.
//
// The manifest half is content-addressed: the handle is a hash of the
// manifest (see schema.Handle), so the same manifest deployed twice resolves
// to the same bundle. The op table half lives only in process memory - Go
// does not load code at runtime, so handler registration is explicit.
package bundle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/pivot/internal/schema"
)

// Frame gives a handler scoped access to the calling instance's storage.
// Handlers never see the bundle's own state - a bundle has none.
type Frame interface {
	// Get reads a field, returning the field type's zero value if the
	// field has never been written.
	Get(name string) (any, error)

	// Set writes a field. The value must satisfy the field's declared type.
	Set(name string, value any) error
}

// Handler executes one business operation against an instance's storage.
// Returned values become the dispatch result; a returned error aborts the
// call and discards all storage writes.
type Handler func(ctx context.Context, frame Frame, args map[string]any) (map[string]any, error)

// Bundle is an immutable implementation: manifest plus op table.
// Construct with New; the handle is derived, never assigned.
type Bundle struct {
	handle  string
	version string
	schema  schema.Schema
	ops     map[string]Handler
}

// New creates a bundle from a version, schema, and op table.
// The schema must be structurally valid. The op table is copied; later
// mutation of the input map does not affect the bundle.
func New(version string, s schema.Schema, ops map[string]Handler) (*Bundle, error) {
	if version == "" {
		return nil, fmt.Errorf("bundle version is required")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	copied := make(map[string]Handler, len(ops))
	for name, h := range ops {
		copied[name] = h
	}
	return &Bundle{
		handle:  schema.Handle(version, s),
		version: version,
		schema:  s,
		ops:     copied,
	}, nil
}

// Handle returns the content-addressed handle.
func (b *Bundle) Handle() string { return b.handle }

// Version returns the bundle version string.
func (b *Bundle) Version() string { return b.version }

// Schema returns the field schema the bundle expects.
func (b *Bundle) Schema() schema.Schema { return b.schema }

// Op returns the handler for an operation name, if registered.
func (b *Bundle) Op(name string) (Handler, bool) {
	h, ok := b.ops[name]
	return h, ok
}

// Ops returns the sorted operation names. Used by CLI listings.
func (b *Bundle) Ops() []string {
	names := make([]string, 0, len(b.ops))
	for name := range b.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry holds deployed bundles keyed by handle.
//
// The registry is the live half of deployment: the store persists manifests
// across restarts, but dispatch needs handlers, which must be re-registered
// by the hosting process. Lookup of an unregistered handle is how a stale
// or fabricated handle surfaces as INVALID_HANDLE.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// NewRegistry creates an empty bundle registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[string]*Bundle)}
}

// Register adds a bundle. Registering the same handle twice is a no-op -
// bundles are immutable, so an identical handle means an identical bundle.
func (r *Registry) Register(b *Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bundles[b.handle]; !exists {
		r.bundles[b.handle] = b
	}
}

// Lookup returns the bundle for a handle, if registered.
func (r *Registry) Lookup(handle string) (*Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[handle]
	return b, ok
}

// Handles returns the sorted handles of all registered bundles.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]string, 0, len(r.bundles))
	for h := range r.bundles {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}
