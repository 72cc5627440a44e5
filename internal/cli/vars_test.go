package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValuePairs(t *testing.T) {
	out, err := parseKeyValuePairs([]string{"A=1", "B=two=three"})
	require.NoError(t, err)
	assert.Equal(t, "1", out["A"])
	assert.Equal(t, "two=three", out["B"])

	_, err = parseKeyValuePairs([]string{"NOEQUALS"})
	assert.Error(t, err)

	_, err = parseKeyValuePairs([]string{"=novalue"})
	assert.Error(t, err)
}

func TestLoadVarFile(t *testing.T) {
	out, err := loadVarFile("")
	require.NoError(t, err)
	assert.Nil(t, out)

	dir := t.TempDir()
	path := filepath.Join(dir, "vars.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"A":"1","B":"2"}`), 0o644))

	out, err = loadVarFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", out["A"])
	assert.Equal(t, "2", out["B"])
}

func TestLoadVarFile_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	_, err := loadVarFile(path)
	assert.Error(t, err)
}

func TestMergeStringMaps(t *testing.T) {
	out := mergeStringMaps(map[string]string{"A": "1", "B": "2"}, map[string]string{"B": "3"})
	assert.Equal(t, "1", out["A"])
	assert.Equal(t, "3", out["B"])
}
