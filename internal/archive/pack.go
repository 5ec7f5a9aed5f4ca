// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// PackOptions configures Pack.
type PackOptions struct {
	// Output is the archive path. Empty means "<dir name>.zip" in the
	// working directory.
	Output string
	// IncludeRoot stores entries under the directory's own name, as
	// "compress folder" tools do.
	IncludeRoot bool
}

// Pack creates a ZIP archive of dir and returns its absolute path. The
// archive is written under a hidden temporary name and renamed into place so
// a watcher never observes a partial file.
func Pack(dir string, opts PackOptions) (archivePath string, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = filepath.Base(absDir) + ".zip"
	}
	absOutputPath, err := filepath.Abs(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(absOutputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absOutputPath), "."+filepath.Base(absOutputPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create ZIP file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name()) // best-effort cleanup of the partial archive
		}
	}()

	if err = writeZip(tmp, absDir, opts.IncludeRoot, absOutputPath, tmp.Name()); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to archive %s: %w", dir, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to finish ZIP file: %w", err)
	}
	if err = os.Rename(tmp.Name(), absOutputPath); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	return absOutputPath, nil
}

func writeZip(w io.Writer, absDir string, includeRoot bool, skip ...string) (err error) {
	zipWriter := zip.NewWriter(w)
	defer func() {
		if closeErr := zipWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	rootName := filepath.Base(absDir)

	return filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if slices.Contains(skip, path) {
			return nil
		}

		relPath, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return fmt.Errorf("failed to get relative path: %w", relErr)
		}
		if relPath == "." && !includeRoot {
			return nil
		}

		zipPath := relPath
		if includeRoot {
			zipPath = filepath.Join(rootName, relPath)
		}
		zipPath = filepath.ToSlash(zipPath)

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			return fmt.Errorf("failed to get file info: %w", infoErr)
		}
		if !fileInfo.IsDir() && !fileInfo.Mode().IsRegular() {
			return nil
		}

		header, headerErr := zip.FileInfoHeader(fileInfo)
		if headerErr != nil {
			return fmt.Errorf("failed to create file header: %w", headerErr)
		}
		header.Name = zipPath

		if d.IsDir() {
			header.Name += "/"
			_, createErr := zipWriter.CreateHeader(header)
			return createErr
		}
		header.Method = zip.Deflate

		writer, writerErr := zipWriter.CreateHeader(header)
		if writerErr != nil {
			return fmt.Errorf("failed to create ZIP entry: %w", writerErr)
		}
		return copyFileTo(writer, path)
	})
}

func copyFileTo(w io.Writer, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(w, f)
	return err
}
