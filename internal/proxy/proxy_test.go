package proxy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pivot/internal/audit"
	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/store"
	"github.com/roach88/pivot/internal/testutil"
)

type fixture struct {
	store   *store.Store
	bundles *bundle.Registry
	proxy   *Proxy
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := bundle.NewRegistry()
	p, err := New(context.Background(), st, registry, opts...)
	require.NoError(t, err)

	return &fixture{store: st, bundles: registry, proxy: p}
}

// deployBox registers both box versions and returns them.
func deployBox(t *testing.T, f *fixture) (v1, v2 *bundle.Bundle) {
	t.Helper()
	ctx := context.Background()
	v1, v2 = testutil.BoxV1(), testutil.BoxV2()
	require.NoError(t, f.proxy.RegisterBundle(ctx, v1, "deployer"))
	require.NoError(t, f.proxy.RegisterBundle(ctx, v2, "deployer"))
	return v1, v2
}

// newBox deploys a v1 box instance owned by alice with value=5.
func newBox(t *testing.T, f *fixture, v1 *bundle.Bundle) string {
	t.Helper()
	id, res, err := f.proxy.DeployInstance(context.Background(), v1.Handle(), "alice",
		map[string]any{"value": int64(5)})
	require.NoError(t, err)
	require.Equal(t, v1.Version(), res.Version)
	return id
}

func getValue(t *testing.T, f *fixture, id string) (int64, string) {
	t.Helper()
	res, err := f.proxy.Dispatch(context.Background(), Call{InstanceID: id, Op: "get_value"})
	require.NoError(t, err)
	v, ok := res.Output["value"].(int64)
	require.True(t, ok, "get_value output: %+v", res.Output)
	return v, res.Version
}

func TestDispatch_BeforeInitializationFails(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	ctx := context.Background()

	id, err := f.proxy.CreateUninitialized(ctx)
	require.NoError(t, err)

	for _, op := range []string{"get_value", "set_value", "anything"} {
		_, err := f.proxy.Dispatch(ctx, Call{InstanceID: id, Caller: "alice", Op: op})
		assert.True(t, IsNotInitialized(err), "op %s: got %v", op, err)
	}

	// Initialization unblocks dispatch.
	_, err = f.proxy.Initialize(ctx, id, v1.Handle(), "alice", map[string]any{"value": int64(5)})
	require.NoError(t, err)

	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
}

func TestDispatch_UnknownInstanceFails(t *testing.T) {
	f := setup(t)
	deployBox(t, f)

	_, err := f.proxy.Dispatch(context.Background(), Call{InstanceID: "ghost", Op: "get_value"})
	assert.True(t, IsNotInitialized(err), "got %v", err)
}

func TestInitialize_ExactlyOnce(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.proxy.Initialize(ctx, id, v1.Handle(), "mallory", nil)
		assert.True(t, IsAlreadyInitialized(err), "attempt %d: got %v", i, err)
	}

	// State unchanged by failed re-initialization.
	info, err := f.proxy.Info(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Owner)
	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
}

func TestInitialize_EmptyOwner(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	ctx := context.Background()

	id, err := f.proxy.CreateUninitialized(ctx)
	require.NoError(t, err)

	_, err = f.proxy.Initialize(ctx, id, v1.Handle(), "", nil)
	assert.Equal(t, ErrCodeInvalidOwner, CodeOf(err))

	// Still uninitialized: the failed attempt committed nothing.
	_, err = f.proxy.Initialize(ctx, id, v1.Handle(), "alice", nil)
	require.NoError(t, err)
}

func TestInitialize_InvalidHandle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.proxy.CreateUninitialized(ctx)
	require.NoError(t, err)

	_, err = f.proxy.Initialize(ctx, id, "", "alice", nil)
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(err), "zero handle")

	_, err = f.proxy.Initialize(ctx, id, "never-deployed", "alice", nil)
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(err), "undeployed handle")
}

func TestBoxScenario_UpgradePreservesState(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	v, version := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, v1.Version(), version)

	res, err := f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil)
	require.NoError(t, err)
	assert.Equal(t, v2.Version(), res.Version)

	// Existing field survives the upgrade.
	v, version = getValue(t, f, id)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, v2.Version(), version, "dispatch resolves the new implementation")

	// Appended field reads as zero value until explicitly set.
	res, err = f.proxy.Dispatch(ctx, Call{InstanceID: id, Op: "get_name"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Output["value"])

	_, err = f.proxy.Dispatch(ctx, Call{
		InstanceID: id, Op: "set_name",
		Args: map[string]any{"value": "renamed box"},
	})
	require.NoError(t, err)

	res, err = f.proxy.Dispatch(ctx, Call{InstanceID: id, Op: "get_name"})
	require.NoError(t, err)
	assert.Equal(t, "renamed box", res.Output["value"])
}

func TestUpgrade_IncompatibleSchemaRejected(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	broken := testutil.BoxIncompatible()
	ctx := context.Background()
	require.NoError(t, f.proxy.RegisterBundle(ctx, broken, "deployer"))

	id := newBox(t, f, v1)

	_, err := f.proxy.Upgrade(ctx, id, "alice", broken.Handle(), nil)
	assert.True(t, IsIncompatibleSchema(err), "got %v", err)

	// Registry unchanged, state intact.
	handle, version, err := f.proxy.CurrentImplementation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v1.Handle(), handle)
	assert.Equal(t, v1.Version(), version)
	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
}

func TestUpgrade_NonOwnerRejected(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	for _, caller := range []string{"bob", ""} {
		_, err := f.proxy.Upgrade(ctx, id, caller, v2.Handle(), nil)
		assert.True(t, IsUnauthorized(err), "caller %q: got %v", caller, err)
	}

	handle, _, err := f.proxy.CurrentImplementation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v1.Handle(), handle, "handle unchanged after rejected upgrades")

	// The owner still succeeds afterwards.
	_, err = f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil)
	require.NoError(t, err)
}

func TestUpgrade_InvalidHandle(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	_, err := f.proxy.Upgrade(ctx, id, "alice", "", nil)
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(err))

	_, err = f.proxy.Upgrade(ctx, id, "alice", "never-deployed", nil)
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(err))
}

func TestUpgrade_BeforeInitialization(t *testing.T) {
	f := setup(t)
	_, v2 := deployBox(t, f)
	ctx := context.Background()

	id, err := f.proxy.CreateUninitialized(ctx)
	require.NoError(t, err)

	_, err = f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil)
	assert.True(t, IsNotInitialized(err), "got %v", err)
}

func TestUpgrade_MigrationSetsAppendedFields(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	_, err := f.proxy.Upgrade(ctx, id, "alice", v2.Handle(),
		map[string]any{"name": "migrated"})
	require.NoError(t, err)

	res, err := f.proxy.Dispatch(ctx, Call{InstanceID: id, Op: "get_name"})
	require.NoError(t, err)
	assert.Equal(t, "migrated", res.Output["value"])

	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
}

func TestUpgrade_MigrationCannotTouchExistingFields(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	_, err := f.proxy.Upgrade(ctx, id, "alice", v2.Handle(),
		map[string]any{"value": int64(99)})
	require.Error(t, err)

	// The failed upgrade committed nothing.
	handle, _, err := f.proxy.CurrentImplementation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v1.Handle(), handle)
	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v)
}

func TestTransferOwnership(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	_, err := f.proxy.TransferOwnership(ctx, id, "bob", "bob")
	assert.True(t, IsUnauthorized(err), "non-owner transfer: got %v", err)

	_, err = f.proxy.TransferOwnership(ctx, id, "alice", "")
	assert.Equal(t, ErrCodeInvalidOwner, CodeOf(err), "empty new owner")

	_, err = f.proxy.TransferOwnership(ctx, id, "alice", "bob")
	require.NoError(t, err)

	// The old owner is locked out; the new owner is in control.
	_, err = f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil)
	assert.True(t, IsUnauthorized(err))
	_, err = f.proxy.Upgrade(ctx, id, "bob", v2.Handle(), nil)
	require.NoError(t, err)
}

func TestSealedBundleInstance_PermanentlyInert(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	ctx := context.Background()

	// The bundle's direct instance is addressable but sealed.
	_, err := f.proxy.Initialize(ctx, v1.Handle(), v1.Handle(), "mallory", nil)
	assert.True(t, IsAlreadyInitialized(err), "initializer: got %v", err)

	_, err = f.proxy.Dispatch(ctx, Call{InstanceID: v1.Handle(), Caller: "mallory", Op: "get_value"})
	assert.True(t, IsNotInitialized(err), "business op: got %v", err)

	_, err = f.proxy.Upgrade(ctx, v1.Handle(), "mallory", v2.Handle(), nil)
	assert.True(t, IsUnauthorized(err), "upgrade: got %v", err)
}

func TestDispatch_UnknownOp(t *testing.T) {
	f := setup(t)
	v1, _ := deployBox(t, f)
	id := newBox(t, f, v1)

	_, err := f.proxy.Dispatch(context.Background(), Call{InstanceID: id, Op: "explode"})
	require.Error(t, err)
	assert.Equal(t, ProtocolErrorCode(""), CodeOf(err), "unknown op is not a protocol error")
}

func TestDispatch_FailedHandlerDiscardsWrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s := testutil.BoxV1Schema()
	ops := bundle.Accessors(s)
	ops["poison"] = func(ctx context.Context, frame bundle.Frame, args map[string]any) (map[string]any, error) {
		if err := frame.Set("value", int64(999)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("handler failed after write")
	}
	b, err := bundle.New("box/1.0.0-poison", s, ops)
	require.NoError(t, err)
	require.NoError(t, f.proxy.RegisterBundle(ctx, b, "deployer"))

	id, _, err := f.proxy.DeployInstance(ctx, b.Handle(), "alice", map[string]any{"value": int64(5)})
	require.NoError(t, err)

	_, err = f.proxy.Dispatch(ctx, Call{InstanceID: id, Op: "poison"})
	require.Error(t, err)

	v, _ := getValue(t, f, id)
	assert.Equal(t, int64(5), v, "failed call must not commit its writes")
}

func TestDispatch_AdminRouting(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	ctx := context.Background()

	id, err := f.proxy.CreateUninitialized(ctx)
	require.NoError(t, err)

	_, err = f.proxy.Dispatch(ctx, Call{
		InstanceID: id,
		Op:         OpInitialize,
		Args: map[string]any{
			"handle": v1.Handle(),
			"owner":  "alice",
			"values": map[string]any{"value": float64(5)},
		},
	})
	require.NoError(t, err)

	_, err = f.proxy.Dispatch(ctx, Call{
		InstanceID: id,
		Caller:     "alice",
		Op:         OpUpgrade,
		Args:       map[string]any{"handle": v2.Handle()},
	})
	require.NoError(t, err)

	_, err = f.proxy.Dispatch(ctx, Call{
		InstanceID: id,
		Caller:     "alice",
		Op:         OpTransferOwnership,
		Args:       map[string]any{"new_owner": "bob"},
	})
	require.NoError(t, err)

	info, err := f.proxy.Info(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Owner)
	assert.Equal(t, v2.Version(), info.Version)
}

func TestUpgrade_AtomicUnderConcurrentDispatch(t *testing.T) {
	f := setup(t)
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	const readers = 8
	const readsPerReader = 25

	var wg sync.WaitGroup
	errs := make(chan error, readers*readsPerReader)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < readsPerReader; i++ {
				res, err := f.proxy.Dispatch(ctx, Call{InstanceID: id, Op: "get_value"})
				if err != nil {
					errs <- err
					return
				}
				// Every read sees exactly one implementation, old or new,
				// and the preserved value either way.
				if res.Version != v1.Version() && res.Version != v2.Version() {
					errs <- fmt.Errorf("torn version %q", res.Version)
					return
				}
				if res.Output["value"] != int64(5) {
					errs <- fmt.Errorf("value corrupted: %v", res.Output["value"])
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil); err != nil {
			errs <- err
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// After the upgrade is accepted, every dispatch sees the new version.
	_, version := getValue(t, f, id)
	assert.Equal(t, v2.Version(), version)
}

func TestAuditTrail_EventsRecorded(t *testing.T) {
	var seen []audit.Event
	f := setup(t, WithSink(func(ev audit.Event) { seen = append(seen, ev) }))
	v1, v2 := deployBox(t, f)
	id := newBox(t, f, v1)
	ctx := context.Background()

	_, err := f.proxy.Upgrade(ctx, id, "alice", v2.Handle(), nil)
	require.NoError(t, err)
	_, err = f.proxy.TransferOwnership(ctx, id, "alice", "bob")
	require.NoError(t, err)

	events, err := f.store.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, audit.KindInitialized, events[0].Kind)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, v1.Version(), events[0].ToVersion)

	assert.Equal(t, audit.KindUpgraded, events[1].Kind)
	assert.Equal(t, v1.Version(), events[1].FromVersion)
	assert.Equal(t, v2.Version(), events[1].ToVersion)

	assert.Equal(t, audit.KindOwnershipTransferred, events[2].Kind)
	assert.Equal(t, "alice", events[2].Actor)

	// The in-process sink saw every committed event, in order.
	require.GreaterOrEqual(t, len(seen), 3)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].Seq, seen[i-1].Seq, "seq must be strictly increasing")
	}

	// Failed operations emit nothing.
	before := len(seen)
	_, err = f.proxy.Upgrade(ctx, id, "mallory", v2.Handle(), nil)
	require.Error(t, err)
	assert.Len(t, seen, before)
}

func TestClock_ResumesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	registry := bundle.NewRegistry()
	p, err := New(ctx, st, registry)
	require.NoError(t, err)

	v1 := testutil.BoxV1()
	require.NoError(t, p.RegisterBundle(ctx, v1, "deployer"))
	id, _, err := p.DeployInstance(ctx, v1.Handle(), "alice", nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// Reopen: seq continues past the persisted maximum.
	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	registry = bundle.NewRegistry()
	registry.Register(testutil.BoxV1())
	p, err = New(ctx, st, registry)
	require.NoError(t, err)

	_, err = p.TransferOwnership(ctx, id, "alice", "bob")
	require.NoError(t, err)

	events, err := st.ListEvents(ctx, "")
	require.NoError(t, err)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestRegisterBundle_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.proxy.RegisterBundle(ctx, testutil.BoxV1(), "deployer"))
	require.NoError(t, f.proxy.RegisterBundle(ctx, testutil.BoxV1(), "deployer"))

	events, err := f.store.ListEvents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, events, 1, "redeploying the same handle emits no second event")
}
