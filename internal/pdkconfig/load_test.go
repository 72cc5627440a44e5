package pdkconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pdk.config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, pdkmodel.RunnerAuto, cfg.Runner.Backend)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"version": "1.0",
		"variables": {"BUILD_CONFIGURATION": "Release"},
		"runner": {"backend": "docker", "fallback": "host", "memoryLimit": "512m", "cpuLimit": 1.5},
		"artifacts": {"root": "./artifacts", "retentionDays": 7},
		"logging": {"level": "Debug", "console": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Release", cfg.Variables["BUILD_CONFIGURATION"])
	assert.Equal(t, pdkmodel.RunnerDocker, cfg.Runner.Backend)
	assert.Equal(t, 7, cfg.Artifacts.RetentionDays)
	assert.Equal(t, "Debug", cfg.Logging.Level)
}

func TestLoad_ExpandsHomeDirectory(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, `{"version": "1.0", "artifacts": {"root": "~/pdk-artifacts"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "pdk-artifacts"), cfg.Artifacts.Root)
}

func TestLoad_RejectsBadVariableName(t *testing.T) {
	path := writeConfig(t, `{"version": "1.0", "variables": {"lowercase": "x"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownVersion(t *testing.T) {
	path := writeConfig(t, `{"version": "2.0"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadMemoryLimit(t *testing.T) {
	path := writeConfig(t, `{"version": "1.0", "runner": {"memoryLimit": "512"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	assert.Error(t, err)
}
