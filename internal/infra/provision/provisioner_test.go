package provision

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foundry/internal/domain"
	"foundry/internal/infra/registry"
)

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.Open(filepath.Join(t.TempDir(), "foundry.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestNewVenvProvisioner_RequiresStore(t *testing.T) {
	_, err := NewVenvProvisioner(Options{BaseInterpreter: "/usr/bin/python3"})
	require.Error(t, err)
}

func TestProvision_ReusesMatchingActiveEnvironment(t *testing.T) {
	store := openTestStore(t)
	existing, err := store.RegisterEnvironment("/envs/a/bin/python", []string{"requests", "pandas"})
	require.NoError(t, err)

	provisioner, err := NewVenvProvisioner(Options{
		Store:           store,
		WorkDir:         t.TempDir(),
		BaseInterpreter: "/usr/bin/python3",
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)

	// Same set under a different order and with duplicates.
	env, err := provisioner.Provision(context.Background(), []string{"pandas", "requests", "requests"})
	require.NoError(t, err)
	require.Equal(t, existing.ID, env.ID)
}

func TestProvision_IgnoresRemovedEnvironments(t *testing.T) {
	store := openTestStore(t)
	removed, err := store.RegisterEnvironment("/envs/a/bin/python", []string{"requests"})
	require.NoError(t, err)
	require.NoError(t, store.DeprecateEnvironment(removed.ID))

	provisioner, err := NewVenvProvisioner(Options{
		Store:           store,
		WorkDir:         t.TempDir(),
		BaseInterpreter: filepath.Join(t.TempDir(), "missing-python"),
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)

	// No reusable environment, so provisioning runs and fails on the
	// unusable interpreter instead of silently reviving the removed one.
	_, err = provisioner.Provision(context.Background(), []string{"requests"})
	require.True(t, domain.IsCode(err, domain.CodeProvisionFailure))
}

func TestCanonicalDependencies(t *testing.T) {
	require.Equal(t,
		canonicalDependencies([]string{"b", "a"}),
		canonicalDependencies([]string{" a ", "b", "a"}),
	)
	require.NotEqual(t,
		canonicalDependencies([]string{"a"}),
		canonicalDependencies([]string{"a", "b"}),
	)
	require.Equal(t, "", canonicalDependencies(nil))
}

func TestVenvInterpreter(t *testing.T) {
	require.Equal(t, "/work/envs/abc/bin/python", venvInterpreter("/work/envs/abc"))
}
