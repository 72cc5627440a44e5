package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func newTestWorkspace(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/bin/a.dll", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/bin/b.dll", []byte("bravo"), 0o644))
	return fs
}

func TestStore_UploadDownload_RoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)
	store := NewStore(afero.NewMemMapFs(), "/artifacts", nil)

	def := pdkmodel.ArtifactDefinition{
		Name:      "build-output",
		Operation: pdkmodel.OperationUpload,
		Include:   []string{"bin/**/*.dll"},
		Options: pdkmodel.ArtifactOptions{
			Compression:    pdkmodel.CompressionNone,
			IfNoFilesFound: pdkmodel.IfNoFilesError,
		},
	}
	ac := pdkmodel.ArtifactContext{RunID: "r1", JobName: "build", StepName: "publish"}

	meta, err := store.Upload(context.Background(), ac, ws, "/ws", def)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.FileCount)
	assert.ElementsMatch(t, []string{"bin/a.dll", "bin/b.dll"}, fileNames(meta.Files))

	dest := afero.NewMemMapFs()
	downloadDef := def
	downloadDef.Operation = pdkmodel.OperationDownload
	downloadDef.TargetPath = "out"
	downloadDef.Options.Conflict = pdkmodel.ConflictOverwrite

	downloaded, err := store.Download(context.Background(), ac, dest, "/dest", downloadDef)
	require.NoError(t, err)
	assert.Equal(t, meta.FileCount, downloaded.FileCount)

	content, err := afero.ReadFile(dest, "/dest/out/bin/a.dll")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(content))
}

func TestStore_Upload_NoFilesFound(t *testing.T) {
	ws := afero.NewMemMapFs()
	require.NoError(t, ws.MkdirAll("/ws", 0o755))
	store := NewStore(afero.NewMemMapFs(), "/artifacts", nil)
	ac := pdkmodel.ArtifactContext{RunID: "r1", JobName: "build", StepName: "publish"}

	def := pdkmodel.ArtifactDefinition{
		Name:    "nothing",
		Include: []string{"*.missing"},
		Options: pdkmodel.ArtifactOptions{IfNoFilesFound: pdkmodel.IfNoFilesError},
	}
	_, err := store.Upload(context.Background(), ac, ws, "/ws", def)
	assert.Error(t, err)

	def.Options.IfNoFilesFound = pdkmodel.IfNoFilesIgnore
	meta, err := store.Upload(context.Background(), ac, ws, "/ws", def)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.FileCount)
}

func TestStore_Upload_DuplicateNameRejected(t *testing.T) {
	ws := newTestWorkspace(t)
	store := NewStore(afero.NewMemMapFs(), "/artifacts", nil)
	ac := pdkmodel.ArtifactContext{RunID: "r1", JobName: "build", StepName: "publish"}
	def := pdkmodel.ArtifactDefinition{Name: "dup", Include: []string{"bin/*.dll"}}

	_, err := store.Upload(context.Background(), ac, ws, "/ws", def)
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), ac, ws, "/ws", def)
	require.Error(t, err)
}

func TestStore_Sweep_RemovesExpiredRuns(t *testing.T) {
	ws := newTestWorkspace(t)
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/artifacts", nil)

	def := pdkmodel.ArtifactDefinition{Name: "out", Include: []string{"bin/*.dll"}}
	_, err := store.Upload(context.Background(), pdkmodel.ArtifactContext{RunID: "old", JobName: "b", StepName: "s"}, ws, "/ws", def)
	require.NoError(t, err)

	// Backdate the only metadata file so the run looks expired.
	dir, _, err := store.Locate("old", "out", "b", "s")
	require.NoError(t, err)
	backdated, err := readMetadata(fs, dir+"/"+metadataFileName)
	require.NoError(t, err)
	backdated.UploadedAt = time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, writeMetadata(fs, dir+"/"+metadataFileName, backdated))

	removed, err := store.Sweep(context.Background(), 7)
	require.NoError(t, err)
	assert.Contains(t, removed, "old")

	_, _, err = store.Locate("old", "out", "b", "s")
	assert.Error(t, err)
}

func fileNames(files []FileMeta) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.StoredPath
	}
	return out
}
