// Package artifact implements a content-staging store: per-(run, job,
// step, artifact) directories holding uploaded files plus an
// artifact.metadata.json, with glob selection, optional compression, and a
// retention sweep.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

const metadataFileName = "artifact.metadata.json"

// Logger is the minimal dependency the store logs through. Callers wire in
// the engine's structured logger; tests can pass a no-op.
type Logger interface {
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// FileMeta records one staged file's provenance.
type FileMeta struct {
	SourcePath string `json:"sourcePath"`
	StoredPath string `json:"storedPath"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
}

// Metadata is the artifact.metadata.json payload written alongside every
// staged artifact.
type Metadata struct {
	ArtifactName string               `json:"artifactName"`
	UploadedAt   time.Time            `json:"uploadedAt"`
	Job          string               `json:"job"`
	Step         string               `json:"step"`
	FileCount    int                  `json:"fileCount"`
	TotalBytes   int64                `json:"totalBytes"`
	Compression  pdkmodel.Compression `json:"compression"`
	ArchiveName  string               `json:"archiveName,omitempty"`
	Files        []FileMeta           `json:"files"`
}

// Store implements the staging directory layout over an afero.Fs, so tests
// can run against an in-memory filesystem instead of touching disk.
type Store struct {
	fs     afero.Fs
	root   string
	logger Logger
}

// NewStore builds a Store rooted at root (already "~"-expanded by the
// caller; see internal/pdkconfig).
func NewStore(fs afero.Fs, root string, logger Logger) *Store {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Store{fs: fs, root: root, logger: logger}
}

func (s *Store) artifactDir(ac pdkmodel.ArtifactContext, artifactName string) string {
	return filepath.Join(s.root,
		"run-"+ac.RunID,
		"job-"+ac.JobName,
		"step-"+ac.StepName,
		"artifact-"+artifactName,
	)
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.root, "run-"+runID)
}

// Upload resolves def's include/exclude patterns against sourceFS (rooted at
// sourceRoot — the sandbox workspace), stages the matched files under the
// artifact directory, and writes artifact.metadata.json. sourceFS lets container and
// host backends both hand the store a plain filesystem view regardless of
// how the files got there.
func (s *Store) Upload(ctx context.Context, ac pdkmodel.ArtifactContext, sourceFS afero.Fs, sourceRoot string, def pdkmodel.ArtifactDefinition) (*Metadata, error) {
	dir := s.artifactDir(ac, def.Name)
	if exists, _ := afero.DirExists(s.fs, dir); exists {
		return nil, pdkerrors.New(pdkerrors.ArtifactExists).
			Messagef("artifact %q already staged for this run/job/step", def.Name).
			At("artifact", def.Name).At("job", ac.JobName).At("step", ac.StepName).
			Build()
	}

	matched, err := ResolveGlob(sourceFS, sourceRoot, def.Include, def.Exclude)
	if err != nil {
		return nil, pdkerrors.New(pdkerrors.GlobNoMatch).
			Messagef("resolving glob for artifact %q: %v", def.Name, err).
			Cause(err).Build()
	}

	if len(matched) == 0 {
		switch def.Options.IfNoFilesFound {
		case pdkmodel.IfNoFilesError:
			return nil, pdkerrors.New(pdkerrors.GlobNoMatch).
				Messagef("no files matched for artifact %q", def.Name).
				At("artifact", def.Name).
				Suggest("check the include/exclude patterns against the workspace contents").
				Build()
		case pdkmodel.IfNoFilesWarn:
			s.logger.Warn("no files matched for artifact", "artifact", def.Name)
		case pdkmodel.IfNoFilesIgnore:
		}
	}

	tmpDir := dir + ".tmp"
	_ = s.fs.RemoveAll(tmpDir)
	if err := s.fs.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}

	meta := &Metadata{
		ArtifactName: def.Name,
		UploadedAt:   time.Now().UTC(),
		Job:          ac.JobName,
		Step:         ac.StepName,
		Compression:  def.Options.Compression,
	}

	var totalBytes int64
	files := make([]FileMeta, 0, len(matched))
	for _, rel := range matched {
		srcPath := filepath.Join(sourceRoot, rel)
		sum, size, err := copyAndHash(sourceFS, srcPath, s.fs, filepath.Join(tmpDir, rel))
		if err != nil {
			_ = s.fs.RemoveAll(tmpDir)
			return nil, err
		}
		totalBytes += size
		files = append(files, FileMeta{
			SourcePath: srcPath,
			StoredPath: rel,
			Size:       size,
			SHA256:     sum,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].StoredPath < files[j].StoredPath })

	meta.FileCount = len(files)
	meta.TotalBytes = totalBytes
	meta.Files = files

	switch def.Options.Compression {
	case pdkmodel.CompressionGzip:
		meta.ArchiveName = "archive.tar.gz"
		if err := archiveTarGz(s.fs, tmpDir, filepath.Join(tmpDir, meta.ArchiveName), files); err != nil {
			_ = s.fs.RemoveAll(tmpDir)
			return nil, err
		}
		if err := removeStagedFilesExceptArchive(s.fs, tmpDir, files, meta.ArchiveName); err != nil {
			_ = s.fs.RemoveAll(tmpDir)
			return nil, err
		}
	case pdkmodel.CompressionZip:
		meta.ArchiveName = "archive.zip"
		if err := archiveZip(s.fs, tmpDir, filepath.Join(tmpDir, meta.ArchiveName), files); err != nil {
			_ = s.fs.RemoveAll(tmpDir)
			return nil, err
		}
		if err := removeStagedFilesExceptArchive(s.fs, tmpDir, files, meta.ArchiveName); err != nil {
			_ = s.fs.RemoveAll(tmpDir)
			return nil, err
		}
	}

	if err := writeMetadata(s.fs, filepath.Join(tmpDir, metadataFileName), meta); err != nil {
		_ = s.fs.RemoveAll(tmpDir)
		return nil, err
	}

	if err := s.fs.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		_ = s.fs.RemoveAll(tmpDir)
		return nil, err
	}
	if err := s.fs.Rename(tmpDir, dir); err != nil {
		_ = s.fs.RemoveAll(tmpDir)
		return nil, err
	}

	s.logger.Debug("staged artifact", "artifact", def.Name, "files", meta.FileCount, "bytes", meta.TotalBytes)
	return meta, nil
}

// Locate finds the staged artifact directory for (runID, artifactName),
// optionally filtered to a job/step; empty job/step selects the most
// recently uploaded match across the run.
func (s *Store) Locate(runID, artifactName, job, step string) (string, *Metadata, error) {
	if job != "" && step != "" {
		dir := s.artifactDir(pdkmodel.ArtifactContext{RunID: runID, JobName: job, StepName: step}, artifactName)
		meta, err := readMetadata(s.fs, filepath.Join(dir, metadataFileName))
		if err != nil {
			return "", nil, err
		}
		return dir, meta, nil
	}

	runRoot := s.runDir(runID)
	var bestDir string
	var best *Metadata

	candidates, walkErr := findArtifactDirs(s.fs, runRoot, artifactName)
	if walkErr != nil {
		return "", nil, walkErr
	}
	for _, dir := range candidates {
		meta, mErr := readMetadata(s.fs, filepath.Join(dir, metadataFileName))
		if mErr != nil {
			continue
		}
		if best == nil || meta.UploadedAt.After(best.UploadedAt) {
			best = meta
			bestDir = dir
		}
	}
	if best == nil {
		return "", nil, pdkerrors.New(pdkerrors.ArtifactNotFound).
			Messagef("artifact %q not found in run %q", artifactName, runID).
			At("artifact", artifactName).At("run", runID).
			Build()
	}
	return bestDir, best, nil
}

// Download materializes the most recently uploaded artifact named def.Name
// in ac's run (from any job or step) into destFS at destRoot, honoring
// def.Options.Conflict.
func (s *Store) Download(ctx context.Context, ac pdkmodel.ArtifactContext, destFS afero.Fs, destRoot string, def pdkmodel.ArtifactDefinition) (*Metadata, error) {
	dir, meta, err := s.Locate(ac.RunID, def.Name, "", "")
	if err != nil {
		return nil, err
	}

	target := def.TargetPath
	if target == "" {
		target = filepath.Join(destRoot, "artifacts", def.Name)
	} else if !filepath.IsAbs(target) {
		target = filepath.Join(destRoot, target)
	}

	if meta.Compression == pdkmodel.CompressionGzip {
		if err := extractTarGz(s.fs, filepath.Join(dir, meta.ArchiveName), destFS, target, def.Options.Conflict); err != nil {
			return nil, err
		}
		return meta, nil
	}
	if meta.Compression == pdkmodel.CompressionZip {
		if err := extractZip(s.fs, filepath.Join(dir, meta.ArchiveName), destFS, target, def.Options.Conflict); err != nil {
			return nil, err
		}
		return meta, nil
	}

	for _, f := range meta.Files {
		destPath := filepath.Join(target, f.StoredPath)
		if exists, _ := afero.Exists(destFS, destPath); exists {
			switch def.Options.Conflict {
			case pdkmodel.ConflictError:
				return nil, pdkerrors.New(pdkerrors.ArtifactExists).
					Messagef("download target already exists: %s", destPath).
					At("path", destPath).Build()
			case pdkmodel.ConflictSkip:
				continue
			case pdkmodel.ConflictOverwrite, "":
			}
		}
		if _, _, err := copyAndHash(s.fs, filepath.Join(dir, f.StoredPath), destFS, destPath); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func copyAndHash(srcFS afero.Fs, srcPath string, destFS afero.Fs, destPath string) (string, int64, error) {
	src, err := srcFS.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	if err := destFS.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", 0, err
	}
	dst, err := destFS.Create(destPath)
	if err != nil {
		return "", 0, err
	}
	defer dst.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func writeMetadata(fs afero.Fs, path string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

func readMetadata(fs afero.Fs, path string) (*Metadata, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, pdkerrors.New(pdkerrors.ArtifactNotFound).
			Messagef("reading metadata at %s: %v", path, err).Cause(err).Build()
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, pdkerrors.New(pdkerrors.ArtifactCorrupt).
			Messagef("corrupt metadata at %s", path).
			At("path", path).Cause(err).Build()
	}
	return &meta, nil
}

// removeStagedFilesExceptArchive deletes the individually-staged files once
// they've been bundled into a single archive, then prunes any subdirectories
// that archiving left empty.
func removeStagedFilesExceptArchive(fs afero.Fs, dir string, files []FileMeta, archiveName string) error {
	dirSet := map[string]bool{}
	for _, f := range files {
		full := filepath.Join(dir, f.StoredPath)
		if filepath.Base(full) == archiveName {
			continue
		}
		if err := fs.Remove(full); err != nil {
			return err
		}
		dirSet[filepath.Dir(full)] = true
	}

	// Remove deepest directories first so parents become empty in turn.
	var dirs []string
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		for d != dir && d != "." && d != "/" {
			entries, err := afero.ReadDir(fs, d)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := fs.Remove(d); err != nil {
				break
			}
			d = filepath.Dir(d)
		}
	}
	return nil
}
