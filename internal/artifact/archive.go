package artifact

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// archiveTarGz bundles the given staged files (paths relative to dir) into a
// single gzip-compressed tar at destPath.
func archiveTarGz(fs afero.Fs, dir, destPath string, files []FileMeta) error {
	out, err := fs.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, f := range files {
		if err := addFileToTar(fs, tw, filepath.Join(dir, f.StoredPath), f.StoredPath, f.Size); err != nil {
			return err
		}
	}
	return nil
}

func addFileToTar(fs afero.Fs, tw *tar.Writer, srcPath, name string, size int64) error {
	src, err := fs.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	hdr := &tar.Header{Name: name, Mode: 0o644, Size: size}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

// archiveZip bundles the given staged files into a single zip at destPath.
func archiveZip(fs afero.Fs, dir, destPath string, files []FileMeta) error {
	out, err := fs.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	for _, f := range files {
		src, err := fs.Open(filepath.Join(dir, f.StoredPath))
		if err != nil {
			return err
		}
		w, err := zw.Create(f.StoredPath)
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return nil
}

// extractTarGz decompresses a tar.gz archive into destFS at destRoot,
// honoring the download conflict policy for each entry.
func extractTarGz(srcFS afero.Fs, archivePath string, destFS afero.Fs, destRoot string, conflict pdkmodel.ConflictPolicy) error {
	in, err := srcFS.Open(archivePath)
	if err != nil {
		return err
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return pdkerrors.New(pdkerrors.ArtifactCorrupt).
			Messagef("invalid gzip archive %s", archivePath).Cause(err).Build()
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pdkerrors.New(pdkerrors.ArtifactCorrupt).
				Messagef("invalid tar entry in %s", archivePath).Cause(err).Build()
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		destPath := filepath.Join(destRoot, hdr.Name)
		if skip, err := resolveConflict(destFS, destPath, conflict); err != nil {
			return err
		} else if skip {
			continue
		}
		if err := destFS.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		out, err := destFS.Create(destPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}

// extractZip decompresses a zip archive into destFS at destRoot, honoring
// the download conflict policy for each entry.
func extractZip(srcFS afero.Fs, archivePath string, destFS afero.Fs, destRoot string, conflict pdkmodel.ConflictPolicy) error {
	data, err := afero.ReadFile(srcFS, archivePath)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(readerAt(data), int64(len(data)))
	if err != nil {
		return pdkerrors.New(pdkerrors.ArtifactCorrupt).
			Messagef("invalid zip archive %s", archivePath).Cause(err).Build()
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destRoot, f.Name)
		if skip, err := resolveConflict(destFS, destPath, conflict); err != nil {
			return err
		} else if skip {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := destFS.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			rc.Close()
			return err
		}
		out, err := destFS.Create(destPath)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// resolveConflict applies the download conflict policy to one target path,
// returning skip=true when the caller should not write the file.
func resolveConflict(destFS afero.Fs, destPath string, conflict pdkmodel.ConflictPolicy) (skip bool, err error) {
	exists, err := afero.Exists(destFS, destPath)
	if err != nil || !exists {
		return false, err
	}
	switch conflict {
	case pdkmodel.ConflictError:
		return false, pdkerrors.New(pdkerrors.ArtifactExists).
			Messagef("download target already exists: %s", destPath).
			At("path", destPath).Build()
	case pdkmodel.ConflictSkip:
		return true, nil
	default: // Overwrite, or unset
		return false, nil
	}
}

// readerAt adapts an in-memory byte slice to io.ReaderAt for zip.NewReader.
type readerAtBytes []byte

func (r readerAtBytes) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func readerAt(b []byte) readerAtBytes { return readerAtBytes(b) }
