// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// processedStampLayout suffixes archives whose name is already taken in the
// processed directory.
const processedStampLayout = "20060102-150405"

// MoveToProcessed moves the archive at src into dir and returns its new
// path. An existing file of the same name is never replaced: the moved
// archive gets a timestamp suffix, then a counter. Moves across filesystems
// fall back to copy and remove; the source is removed only after the copy is
// complete.
func MoveToProcessed(src, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create processed directory: %w", err)
	}
	dst, err := freeName(dir, filepath.Base(src), now)
	if err != nil {
		return "", err
	}

	err = os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("move archive: %w", err)
	}
	if err := copyAcross(src, dst); err != nil {
		return "", fmt.Errorf("move archive across filesystems: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("remove source after copy: %w", err)
	}
	return dst, nil
}

func freeName(dir, base string, now time.Time) (string, error) {
	candidate := filepath.Join(dir, base)
	if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext) + "-" + now.UTC().Format(processedStampLayout)
	for i := 1; i < 1000; i++ {
		name := stem
		if i > 1 {
			name += "-" + strconv.Itoa(i)
		}
		candidate = filepath.Join(dir, name+ext)
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", base, dir)
}

// copyAcross copies src to dst through a temporary file in dst's directory.
func copyAcross(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath) // Best-effort cleanup of temp file
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
