package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pivot/internal/audit"
	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/schema"
	"github.com/roach88/pivot/internal/store"
)

// Administrative operations recognized by Dispatch. Anything else is
// forwarded to the current implementation's op table.
const (
	OpInitialize        = "initialize"
	OpUpgrade           = "upgrade"
	OpTransferOwnership = "transfer_ownership"
)

// Call is one inbound request against a component instance.
type Call struct {
	InstanceID string
	Caller     string
	Op         string
	Args       map[string]any
}

// Result is the outcome of a successful dispatch. Version is the
// implementation version that executed (or was installed, for admin ops);
// Output is the handler's return value, nil for admin ops.
type Result struct {
	Version string
	Output  map[string]any
}

// InstanceInfo is a read-only snapshot of an instance for query surfaces.
type InstanceInfo struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Initialized bool           `json:"initialized"`
	Handle      string         `json:"handle,omitempty"`
	Version     string         `json:"version,omitempty"`
	Storage     map[string]any `json:"storage"`
}

// Proxy is the stable-address entry point for component instances.
//
// Every inbound call resolves the instance's current implementation handle
// fresh from storage - never cached across upgrades - and executes the
// designated logic against the instance's own storage, inside a single
// transaction.
//
// Execution model: non-reentrant by default. A mutex serializes calls, so
// a call runs to completion (or fails atomically) before the next begins.
// Concurrent callers therefore observe either entirely the old or entirely
// the new implementation across an upgrade, never a mix.
type Proxy struct {
	mu      sync.Mutex
	store   *store.Store
	bundles *bundle.Registry
	clock   *Clock
	idGen   InstanceIDGenerator
	now     func() time.Time
	logger  *slog.Logger
	sink    audit.Sink
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithIDGenerator sets the instance ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g InstanceIDGenerator) Option {
	return func(p *Proxy) { p.idGen = g }
}

// WithNow sets the wall-clock source for event timestamps.
// Default: time.Now. Tests pin this for deterministic traces.
func WithNow(now func() time.Time) Option {
	return func(p *Proxy) { p.now = now }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) { p.logger = logger }
}

// WithSink sets an in-process observer for committed audit events.
func WithSink(sink audit.Sink) Option {
	return func(p *Proxy) { p.sink = sink }
}

// New creates a Proxy over the given store and bundle registry.
// The logical clock resumes past the highest persisted event seq, so
// event ordering survives restarts.
func New(ctx context.Context, s *store.Store, bundles *bundle.Registry, opts ...Option) (*Proxy, error) {
	maxSeq, err := s.MaxEventSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}

	p := &Proxy{
		store:   s,
		bundles: bundles,
		clock:   NewClockAt(maxSeq),
		idGen:   UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Dispatch routes one inbound call. Administrative operations (initialize,
// upgrade, transfer_ownership) take their parameters from c.Args; every
// other op is resolved against the instance's current implementation.
func (p *Proxy) Dispatch(ctx context.Context, c Call) (Result, error) {
	switch c.Op {
	case OpInitialize:
		handle, _ := c.Args["handle"].(string)
		owner, _ := c.Args["owner"].(string)
		values, _ := c.Args["values"].(map[string]any)
		return p.Initialize(ctx, c.InstanceID, handle, owner, values)
	case OpUpgrade:
		handle, _ := c.Args["handle"].(string)
		migration, _ := c.Args["migration"].(map[string]any)
		return p.Upgrade(ctx, c.InstanceID, c.Caller, handle, migration)
	case OpTransferOwnership:
		newOwner, _ := c.Args["new_owner"].(string)
		return p.TransferOwnership(ctx, c.InstanceID, c.Caller, newOwner)
	default:
		return p.dispatchBusiness(ctx, c)
	}
}

// RegisterBundle deploys an implementation bundle: registers its op table,
// persists its manifest, writes the sealed direct-instance row, and appends
// a bundle_deployed event.
//
// The seal row shares the bundle's handle as its instance ID and is created
// permanently initialized with no owner and no implementation. Driving the
// bare bundle directly therefore always fails: the initializer with
// ALREADY_INITIALIZED, every business call with NOT_INITIALIZED, and every
// privileged call with UNAUTHORIZED. A logic bundle can never be seized and
// used to impersonate an upgrade target.
//
// Idempotent: redeploying an already-deployed handle only refreshes the
// in-process op table.
func (p *Proxy) RegisterBundle(ctx context.Context, b *bundle.Bundle, actor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var committed []audit.Event
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		seq := p.clock.Next()
		inserted, err := tx.InsertBundle(ctx, store.BundleRow{
			Handle:      b.Handle(),
			Version:     b.Version(),
			Schema:      b.Schema(),
			DeployedSeq: seq,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		// Seal the bundle's direct instance (locked at construction time,
		// before any external call is possible).
		if err := tx.CreateInstance(ctx, store.Instance{
			ID:          b.Handle(),
			Initialized: true,
			CreatedSeq:  seq,
		}); err != nil {
			return err
		}

		ev := audit.Event{
			Seq:        p.clock.Next(),
			Kind:       audit.KindBundleDeployed,
			InstanceID: b.Handle(),
			Actor:      actor,
			ToVersion:  b.Version(),
			At:         p.now(),
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		committed = append(committed, ev)
		return nil
	})
	if err != nil {
		return err
	}

	p.bundles.Register(b)
	p.emit(committed)
	return nil
}

// CreateUninitialized allocates a new instance row with no owner, no
// implementation, and the initialization flag unset. Callers are expected
// to initialize it immediately; until they do, every dispatch fails with
// NOT_INITIALIZED. The deploy collaborator wraps creation and
// initialization in one step to close that window entirely.
func (p *Proxy) CreateUninitialized(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.idGen.Generate()
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CreateInstance(ctx, store.Instance{
			ID:         id,
			CreatedSeq: p.clock.Next(),
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Initialize runs the one-shot initializer: installs the implementation
// handle, sets initial field values, sets the owner, and flips the
// initialization flag. Fails with ALREADY_INITIALIZED on re-entry,
// INVALID_OWNER on an empty owner, and INVALID_HANDLE if the handle is
// zero or not deployed.
func (p *Proxy) Initialize(ctx context.Context, instanceID, handle, owner string, values map[string]any) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	var committed []audit.Event
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		inst, err := tx.GetInstance(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("initialize %s: %w", instanceID, err)
		}
		res, committed, err = p.initializeInTx(ctx, tx, inst, handle, owner, values)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	p.emit(committed)
	return res, nil
}

// DeployInstance creates a new instance and runs the initializer inside the
// same transaction and mutex hold, so there is no window where the instance
// exists but is uninitialized and callable by a third party.
func (p *Proxy) DeployInstance(ctx context.Context, handle, owner string, values map[string]any) (string, Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.idGen.Generate()
	var res Result
	var committed []audit.Event
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		inst := store.Instance{ID: id, CreatedSeq: p.clock.Next()}
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		var err error
		res, committed, err = p.initializeInTx(ctx, tx, inst, handle, owner, values)
		return err
	})
	if err != nil {
		return "", Result{}, err
	}

	p.emit(committed)
	return id, res, nil
}

// initializeInTx is the shared initializer body. Callers hold the dispatch
// mutex and an open transaction.
func (p *Proxy) initializeInTx(ctx context.Context, tx *store.Tx, inst store.Instance, handle, owner string, values map[string]any) (Result, []audit.Event, error) {
	if inst.Initialized {
		return Result{}, nil, newAlreadyInitialized(inst.ID)
	}
	if owner == "" {
		return Result{}, nil, newInvalidOwner(inst.ID, OpInitialize)
	}

	b, err := p.resolveBundle(ctx, tx, inst.ID, OpInitialize, handle)
	if err != nil {
		return Result{}, nil, err
	}

	storage := b.Schema().ZeroStorage()
	if err := applyValues(b.Schema(), storage, values, nil); err != nil {
		return Result{}, nil, fmt.Errorf("initialize %s: %w", inst.ID, err)
	}

	inst.Owner = owner
	inst.Initialized = true
	inst.ImplHandle = handle
	inst.Storage = storage
	if err := tx.UpdateInstance(ctx, inst); err != nil {
		return Result{}, nil, err
	}

	ev := audit.Event{
		Seq:        p.clock.Next(),
		Kind:       audit.KindInitialized,
		InstanceID: inst.ID,
		Actor:      owner,
		ToVersion:  b.Version(),
		At:         p.now(),
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return Result{}, nil, err
	}
	return Result{Version: b.Version()}, []audit.Event{ev}, nil
}

// Upgrade atomically repoints the instance's implementation handle.
//
// Succeeds only if the caller is the owner, the new handle is deployed and
// non-zero, and the new schema is a prefix-compatible superset of the
// current one. The compatibility check runs before any state changes. An
// optional migration payload assigns initial values to appended fields;
// existing fields cannot be touched by migration.
func (p *Proxy) Upgrade(ctx context.Context, instanceID, caller, newHandle string, migration map[string]any) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	var committed []audit.Event
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		inst, err := tx.GetInstance(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("upgrade %s: %w", instanceID, err)
		}
		if !inst.Initialized {
			return newNotInitialized(instanceID, OpUpgrade)
		}
		// A sealed bundle row is initialized with an empty owner, so the
		// owner gate rejects any upgrade attempt against it.
		if err := requireOwner(inst, OpUpgrade, caller); err != nil {
			return err
		}

		newB, err := p.resolveBundle(ctx, tx, instanceID, OpUpgrade, newHandle)
		if err != nil {
			return err
		}

		oldRow, err := tx.GetBundle(ctx, inst.ImplHandle)
		if err != nil {
			return fmt.Errorf("upgrade %s: current implementation: %w", instanceID, err)
		}

		if err := schema.Check(oldRow.Schema, newB.Schema()); err != nil {
			return newIncompatibleSchema(instanceID, newHandle, err)
		}

		if err := applyValues(newB.Schema(), inst.Storage, migration, oldRow.Schema.Fields); err != nil {
			return fmt.Errorf("upgrade %s: migration: %w", instanceID, err)
		}

		inst.ImplHandle = newHandle
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}

		ev := audit.Event{
			Seq:         p.clock.Next(),
			Kind:        audit.KindUpgraded,
			InstanceID:  instanceID,
			Actor:       caller,
			FromVersion: oldRow.Version,
			ToVersion:   newB.Version(),
			At:          p.now(),
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		committed = append(committed, ev)
		res = Result{Version: newB.Version()}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	p.emit(committed)
	return res, nil
}

// TransferOwnership hands the instance to a new owner principal.
// Owner-only; fails with INVALID_OWNER on an empty new owner.
func (p *Proxy) TransferOwnership(ctx context.Context, instanceID, caller, newOwner string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	var committed []audit.Event
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		inst, err := tx.GetInstance(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("transfer ownership %s: %w", instanceID, err)
		}
		if !inst.Initialized {
			return newNotInitialized(instanceID, OpTransferOwnership)
		}
		if err := requireOwner(inst, OpTransferOwnership, caller); err != nil {
			return err
		}
		if newOwner == "" {
			return newInvalidOwner(instanceID, OpTransferOwnership)
		}

		inst.Owner = newOwner
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}

		ev := audit.Event{
			Seq:        p.clock.Next(),
			Kind:       audit.KindOwnershipTransferred,
			InstanceID: instanceID,
			Actor:      caller,
			At:         p.now(),
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		committed = append(committed, ev)
		res = Result{}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	p.emit(committed)
	return res, nil
}

// CurrentImplementation returns the instance's current handle and version.
func (p *Proxy) CurrentImplementation(ctx context.Context, instanceID string) (handle, version string, err error) {
	info, err := p.Info(ctx, instanceID)
	if err != nil {
		return "", "", err
	}
	return info.Handle, info.Version, nil
}

// Info returns a read-only snapshot of an instance.
func (p *Proxy) Info(ctx context.Context, instanceID string) (InstanceInfo, error) {
	inst, err := p.store.GetInstance(ctx, instanceID)
	if err != nil {
		return InstanceInfo{}, fmt.Errorf("info %s: %w", instanceID, err)
	}
	info := InstanceInfo{
		ID:          inst.ID,
		Owner:       inst.Owner,
		Initialized: inst.Initialized,
		Handle:      inst.ImplHandle,
		Storage:     inst.Storage,
	}
	if inst.ImplHandle != "" {
		row, err := p.store.GetBundle(ctx, inst.ImplHandle)
		if err != nil {
			return InstanceInfo{}, fmt.Errorf("info %s: %w", instanceID, err)
		}
		info.Version = row.Version
	}
	return info, nil
}

// dispatchBusiness executes a non-administrative call: resolve the current
// handle fresh, look up the op, run it against the instance's storage, and
// persist the result. All inside one transaction and the dispatch mutex.
func (p *Proxy) dispatchBusiness(ctx context.Context, c Call) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		inst, err := tx.GetInstance(ctx, c.InstanceID)
		if err != nil {
			return newNotInitialized(c.InstanceID, c.Op)
		}
		if !inst.Initialized || inst.ImplHandle == "" {
			return newNotInitialized(c.InstanceID, c.Op)
		}

		b, ok := p.bundles.Lookup(inst.ImplHandle)
		if !ok {
			return newInvalidHandle(c.InstanceID, c.Op, inst.ImplHandle)
		}

		h, ok := b.Op(c.Op)
		if !ok {
			return fmt.Errorf("op %q not provided by implementation %s", c.Op, b.Version())
		}

		frame := newStorageFrame(b.Schema(), inst.Storage)
		out, err := h(ctx, frame, c.Args)
		if err != nil {
			return err
		}

		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		res = Result{Version: b.Version(), Output: out}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	p.logger.Debug("dispatched",
		slog.String("instance", c.InstanceID),
		slog.String("op", c.Op),
		slog.String("version", res.Version))
	return res, nil
}

// resolveBundle maps a handle to its live bundle, enforcing that it is
// non-zero, persisted, and registered in this process.
func (p *Proxy) resolveBundle(ctx context.Context, tx *store.Tx, instanceID, op, handle string) (*bundle.Bundle, error) {
	if handle == "" {
		return nil, newInvalidHandle(instanceID, op, handle)
	}
	if _, err := tx.GetBundle(ctx, handle); err != nil {
		return nil, newInvalidHandle(instanceID, op, handle)
	}
	b, ok := p.bundles.Lookup(handle)
	if !ok {
		return nil, newInvalidHandle(instanceID, op, handle)
	}
	return b, nil
}

// requireOwner is the access-control gate for privileged operations.
// A sealed instance has an empty owner and so never authorizes anyone.
func requireOwner(inst store.Instance, op, caller string) error {
	if caller == "" || caller != inst.Owner {
		return newUnauthorized(inst.ID, op, caller)
	}
	return nil
}

// applyValues coerces and writes the given field values into storage.
// When frozen is non-nil, writes to those fields are rejected - used by
// upgrade migration, which may only touch appended fields.
func applyValues(s schema.Schema, storage map[string]any, values map[string]any, frozen []schema.Field) error {
	frozenNames := make(map[string]bool, len(frozen))
	for _, f := range frozen {
		frozenNames[f.Name] = true
	}
	for name, raw := range values {
		field, ok := s.FieldNamed(name)
		if !ok {
			return fmt.Errorf("field %q not declared by implementation schema", name)
		}
		if frozenNames[name] {
			return fmt.Errorf("field %q predates the upgrade and cannot be migrated", name)
		}
		v, err := field.Type.Coerce(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		storage[name] = v
	}
	return nil
}

// emit forwards committed events to the sink and structured log.
func (p *Proxy) emit(events []audit.Event) {
	for _, ev := range events {
		p.logger.Info("audit event",
			slog.String("kind", string(ev.Kind)),
			slog.String("instance", ev.InstanceID),
			slog.String("actor", ev.Actor),
			slog.Int64("seq", ev.Seq))
		if p.sink != nil {
			p.sink(ev)
		}
	}
}
