package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// findArtifactDirs returns every `artifact-<name>` directory under runRoot,
// regardless of which job/step staged it.
func findArtifactDirs(fs afero.Fs, runRoot, artifactName string) ([]string, error) {
	var dirs []string
	exists, err := afero.DirExists(fs, runRoot)
	if err != nil || !exists {
		return dirs, err
	}

	err = afero.Walk(fs, runRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() && filepath.Base(p) == "artifact-"+artifactName {
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs, err
}

// runIDs lists the run-<id> directories directly under root.
func runIDs(fs afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "run-") {
			ids = append(ids, strings.TrimPrefix(e.Name(), "run-"))
		}
	}
	return ids, nil
}

// latestUpload returns the newest UploadedAt found among any metadata.json
// nested under dir, skipping entries that fail to parse (caller decides
// whether a corrupt metadata file should block deletion or not; here it is
// simply ignored, since a corrupt artifact is itself a candidate for sweep).
func latestUpload(fs afero.Fs, dir string) (time.Time, bool) {
	var latest time.Time
	found := false
	_ = afero.Walk(fs, dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() || filepath.Base(p) != metadataFileName {
			return nil
		}
		meta, err := readMetadata(fs, p)
		if err != nil {
			return nil
		}
		if !found || meta.UploadedAt.After(latest) {
			latest = meta.UploadedAt
			found = true
		}
		return nil
	})
	return latest, found
}

// Sweep deletes run-<id> directories whose most recent artifact upload is
// older than retentionDays. A sweep may run on demand or at engine
// startup; this package never schedules one itself (no background
// ticker).
func (s *Store) Sweep(ctx context.Context, retentionDays int) (removed []string, err error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	ids, err := runIDs(s.fs, s.root)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		dir := s.runDir(id)
		latest, found := latestUpload(s.fs, dir)
		if !found || latest.Before(cutoff) {
			if err := s.fs.RemoveAll(dir); err != nil {
				return removed, err
			}
			removed = append(removed, id)
			s.logger.Debug("swept expired run artifacts", "run", id)
		}
	}
	return removed, nil
}
