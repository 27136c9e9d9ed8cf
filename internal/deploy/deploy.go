// Package deploy hosts the deployment and upgrade collaborators: thin
// orchestration over the proxy that takes operator-facing inputs (bundle
// manifests, initializer payloads, migration payloads) and drives the core
// operations. Retry policy lives here, not in the core - a failed call
// commits nothing, so the collaborator decides whether to retry with
// corrected input.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/proxy"
)

// Deployer drives deployments and upgrades through a proxy.
type Deployer struct {
	proxy  *proxy.Proxy
	logger *slog.Logger
}

// New creates a Deployer. A nil logger defaults to slog.Default().
func New(p *proxy.Proxy, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{proxy: p, logger: logger}
}

// DeployBundle builds a bundle from a manifest and deploys it: registers
// the ops, persists the manifest, and seals the bundle's direct instance.
// When ops is nil the bundle gets the generic accessor op table.
func (d *Deployer) DeployBundle(ctx context.Context, m *bundle.Manifest, ops map[string]bundle.Handler, actor string) (*bundle.Bundle, error) {
	b, err := m.Build(ops)
	if err != nil {
		return nil, fmt.Errorf("deploy bundle: %w", err)
	}
	if err := d.proxy.RegisterBundle(ctx, b, actor); err != nil {
		return nil, fmt.Errorf("deploy bundle %s: %w", b.Handle(), err)
	}
	d.logger.Info("bundle deployed",
		slog.String("handle", b.Handle()),
		slog.String("version", b.Version()))
	return b, nil
}

// DeployInstance creates a component instance hosting the given bundle and
// initializes it in the same step, returning the new stable instance ID.
func (d *Deployer) DeployInstance(ctx context.Context, handle string, payload InitPayload) (string, error) {
	id, res, err := d.proxy.DeployInstance(ctx, handle, payload.Owner, payload.Values)
	if err != nil {
		return "", fmt.Errorf("deploy instance: %w", err)
	}
	d.logger.Info("instance deployed",
		slog.String("instance", id),
		slog.String("version", res.Version),
		slog.String("owner", payload.Owner))
	return id, nil
}

// Upgrade repoints an existing instance at a new bundle, with an optional
// migration payload for appended fields.
func (d *Deployer) Upgrade(ctx context.Context, instanceID, caller, newHandle string, payload MigrationPayload) (proxy.Result, error) {
	res, err := d.proxy.Upgrade(ctx, instanceID, caller, newHandle, payload.Values)
	if err != nil {
		return proxy.Result{}, err
	}
	d.logger.Info("instance upgraded",
		slog.String("instance", instanceID),
		slog.String("version", res.Version))
	return res, nil
}
