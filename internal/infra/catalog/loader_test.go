package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foundry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	config, err := loader.Load("")
	require.NoError(t, err)

	require.Equal(t, domain.DefaultStoragePath, config.StoragePath)
	require.Equal(t, domain.DefaultWorkDir, config.WorkDir)
	require.Equal(t, domain.DefaultMaxFixCycles, config.MaxFixCycles)
	require.Equal(t, domain.DefaultInvokeTimeoutSeconds, config.InvokeTimeoutSeconds)
	require.Equal(t, domain.DefaultStageTimeoutSeconds, config.StageTimeoutSeconds)
	require.Equal(t, domain.DefaultMaxParallelCycles, config.MaxParallelCycles)
	require.Equal(t, domain.DefaultObservabilityListenAddress, config.Observability.ListenAddress)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	file := writeTempConfig(t, `
storagePath: /var/lib/foundry/state.db
maxFixCycles: 3
observability:
  listenAddress: 127.0.0.1:9303
`)

	loader := NewLoader(zap.NewNop())
	config, err := loader.Load(file)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/foundry/state.db", config.StoragePath)
	require.Equal(t, 3, config.MaxFixCycles)
	require.Equal(t, "127.0.0.1:9303", config.Observability.ListenAddress)
	// Untouched keys keep their defaults.
	require.Equal(t, domain.DefaultInvokeTimeoutSeconds, config.InvokeTimeoutSeconds)
	require.Equal(t, domain.DefaultWorkDir, config.WorkDir)
}

func TestLoader_MissingFile(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoader_RejectsNonPositiveFixCycles(t *testing.T) {
	file := writeTempConfig(t, "maxFixCycles: 0\n")

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(file)
	require.ErrorContains(t, err, "maxFixCycles")
}

func TestLoader_RejectsStageTimeoutBelowInvokeTimeout(t *testing.T) {
	file := writeTempConfig(t, `
invokeTimeoutSeconds: 30
stageTimeoutSeconds: 10
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(file)
	require.ErrorContains(t, err, "stageTimeoutSeconds")
}
