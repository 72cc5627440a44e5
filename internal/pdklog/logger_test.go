package pdklog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func TestNew_ConsoleOnlyByDefault(t *testing.T) {
	masker := variables.NewMasker(false)
	logger, err := New(pdkmodel.LoggingConfig{Level: "Information"}, masker)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello", map[string]interface{}{"job": "build"})
}

func TestNew_WritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "pdk.log")
	masker := variables.NewMasker(false)
	logger, err := New(pdkmodel.LoggingConfig{Level: "Debug", File: logPath}, masker)
	require.NoError(t, err)

	logger.Info("job started", map[string]interface{}{"job": "build"})
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job started")
}

func TestMaskingCore_RedactsSensitiveFieldsAndSecrets(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "pdk.log")
	masker := variables.NewMasker(false)
	masker.Register("super-secret-token-value")

	logger, err := New(pdkmodel.LoggingConfig{Level: "Debug", File: logPath}, masker)
	require.NoError(t, err)

	logger.Info("auth attempt", map[string]interface{}{
		"password": "hunter2hunter2",
		"note":     "token=super-secret-token-value in payload",
	})
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hunter2hunter2")
	assert.NotContains(t, out, "super-secret-token-value")
}

func TestNoRedact_PassesSecretsThrough(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "pdk.log")
	masker := variables.NewMasker(true)

	logger, err := New(pdkmodel.LoggingConfig{Level: "Debug", File: logPath, NoRedact: true}, masker)
	require.NoError(t, err)

	logger.Info("auth attempt", map[string]interface{}{"password": "hunter2hunter2"})
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hunter2hunter2")
}

func TestCorrelationIDScope(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", CorrelationIDFromContext(ctx))

	id := NewCorrelationID()
	assert.Regexp(t, `^pdk-`, id)

	ctx = WithCorrelationID(ctx, id)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))
}
