package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/proxy"
	"github.com/roach88/pivot/internal/store"
	"github.com/roach88/pivot/internal/testutil"
)

const boxV1CUE = `
version: "box/1.0.0"
fields: [
	{name: "value", type: "uint"},
]
reserved: 2
`

const boxV2CUE = `
version: "box/2.0.0"
fields: [
	{name: "value", type: "uint"},
	{name: "name", type: "string"},
]
reserved: 1
`

func newDeployer(t *testing.T) *Deployer {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "deploy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p, err := proxy.New(context.Background(), st, bundle.NewRegistry())
	require.NoError(t, err)
	return New(p, nil)
}

func TestDeployBundleAndInstance(t *testing.T) {
	d := newDeployer(t)
	ctx := context.Background()

	m, err := bundle.ParseManifest([]byte(boxV1CUE))
	require.NoError(t, err)

	b, err := d.DeployBundle(ctx, m, nil, "deployer")
	require.NoError(t, err)
	assert.Equal(t, m.Handle(), b.Handle())

	id, err := d.DeployInstance(ctx, b.Handle(), InitPayload{
		Owner:  "alice",
		Values: map[string]any{"value": 5},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestDeployInstance_EmptyOwnerRejected(t *testing.T) {
	d := newDeployer(t)
	ctx := context.Background()

	m, err := bundle.ParseManifest([]byte(boxV1CUE))
	require.NoError(t, err)
	b, err := d.DeployBundle(ctx, m, nil, "deployer")
	require.NoError(t, err)

	_, err = d.DeployInstance(ctx, b.Handle(), InitPayload{Owner: ""})
	assert.Equal(t, proxy.ErrCodeInvalidOwner, proxy.CodeOf(err))
}

func TestUpgradeWithMigration(t *testing.T) {
	d := newDeployer(t)
	ctx := context.Background()

	m1, err := bundle.ParseManifest([]byte(boxV1CUE))
	require.NoError(t, err)
	m2, err := bundle.ParseManifest([]byte(boxV2CUE))
	require.NoError(t, err)

	b1, err := d.DeployBundle(ctx, m1, nil, "deployer")
	require.NoError(t, err)
	b2, err := d.DeployBundle(ctx, m2, nil, "deployer")
	require.NoError(t, err)

	id, err := d.DeployInstance(ctx, b1.Handle(), InitPayload{
		Owner:  "alice",
		Values: map[string]any{"value": 5},
	})
	require.NoError(t, err)

	res, err := d.Upgrade(ctx, id, "alice", b2.Handle(), MigrationPayload{
		Values: map[string]any{"name": "migrated"},
	})
	require.NoError(t, err)
	assert.Equal(t, "box/2.0.0", res.Version)

	_, err = d.Upgrade(ctx, id, "bob", b1.Handle(), MigrationPayload{})
	assert.True(t, proxy.IsUnauthorized(err), "got %v", err)
}

func TestManifestSchemaMatchesHandWritten(t *testing.T) {
	m, err := bundle.ParseManifest([]byte(boxV1CUE))
	require.NoError(t, err)
	assert.Equal(t, testutil.BoxV1Schema(), m.Schema)
	assert.Equal(t, testutil.BoxV1().Handle(), m.Handle())
}

func TestLoadInitPayload(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "init.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: alice\nvalues:\n  value: 5\n"), 0o644))

	p, err := LoadInitPayload(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Owner)
	assert.Equal(t, 5, p.Values["value"])

	// Unknown keys are a hard error, not silently dropped.
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("owner: alice\nowners: [bob]\n"), 0o644))
	_, err = LoadInitPayload(bad)
	assert.Error(t, err)
}

func TestLoadMigrationPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("values:\n  name: renamed\n"), 0o644))

	p, err := LoadMigrationPayload(path)
	require.NoError(t, err)
	assert.Equal(t, "renamed", p.Values["name"])
}
