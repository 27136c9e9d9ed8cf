package cli

import (
	"context"
	"fmt"

	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/proxy"
	"github.com/roach88/pivot/internal/store"
)

// runtime bundles the store, bundle registry, and proxy a command operates
// on. Close must be called when the command finishes.
//
// Bundles deployed from the CLI carry only a manifest, so their op tables
// are rebuilt from persisted manifests on every start: each bundle gets the
// generic accessor ops derived from its schema.
type runtime struct {
	store   *store.Store
	bundles *bundle.Registry
	proxy   *proxy.Proxy
}

// openRuntime opens the database and reconstructs the live bundle registry
// from persisted manifests.
func openRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", opts.DB), err)
	}

	registry := bundle.NewRegistry()
	rows, err := st.ListBundles(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "list bundles", err)
	}
	for _, row := range rows {
		b, err := bundle.New(row.Version, row.Schema, bundle.Accessors(row.Schema))
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("rebuild bundle %s", row.Handle), err)
		}
		registry.Register(b)
	}

	p, err := proxy.New(ctx, st, registry)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "open proxy", err)
	}

	return &runtime{store: st, bundles: registry, proxy: p}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}

// protocolExit maps a core error to an ExitError carrying the protocol
// error code when one is present.
func protocolExit(err error) *ExitError {
	if code := proxy.CodeOf(err); code != "" {
		return WrapExitError(ExitFailure, string(code), err)
	}
	return WrapExitError(ExitFailure, "operation failed", err)
}
