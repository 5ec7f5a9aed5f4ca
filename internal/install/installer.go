// SPDX-License-Identifier: MPL-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/ingest/internal/archive"
	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/pkg/types"
)

type (
	// Options configures an Installer.
	Options struct {
		// ProjectRoot anchors relative category directories and the
		// project-relative paths reported in Result.
		ProjectRoot string
		// CategoryDirs maps every installable category to its base directory.
		CategoryDirs map[classify.Category]string
		Logger       *slog.Logger
	}

	// Installer copies modules into category directories. The category map
	// is fixed at construction. Safe for concurrent use.
	Installer struct {
		projectRoot string
		dirs        map[classify.Category]string
		locks       *keyedMutex
		logger      *slog.Logger
	}

	// Result describes a finished install.
	Result struct {
		Module   types.ModuleName
		Category classify.Category
		// Path is the absolute module directory.
		Path string
		// RelPath is Path relative to the project root, slash-separated
		// ("admin/widget").
		RelPath string
		// Created is true when the module directory did not exist before.
		Created bool
		// Changed is false when every incoming file was already installed
		// with the same or a newer modification time.
		Changed   bool
		Added     int
		Updated   int
		Unchanged int
	}

	action int

	planEntry struct {
		rel    string
		isDir  bool
		action action
	}
)

const (
	actionKeep action = iota
	actionAdd
	actionUpdate
)

// New creates an Installer.
func New(opts Options) (*Installer, error) {
	root := opts.ProjectRoot
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	dirs := make(map[classify.Category]string, len(opts.CategoryDirs))
	for cat, dir := range opts.CategoryDirs {
		if ok, errs := cat.IsValid(); !ok {
			return nil, errs[0]
		}
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoCategoryDir, cat)
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(absRoot, dir)
		}
		dirs[cat] = filepath.Clean(dir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Installer{
		projectRoot: absRoot,
		dirs:        dirs,
		locks:       newKeyedMutex(),
		logger:      logger,
	}, nil
}

// TargetDir returns the directory a module of the given category and name
// installs into.
func (i *Installer) TargetDir(cat classify.Category, name types.ModuleName) (string, error) {
	if ok, errs := name.IsValid(); !ok {
		return "", errs[0]
	}
	base, ok := i.dirs[cat]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoCategoryDir, cat)
	}
	return filepath.Join(base, string(name)), nil
}

// Install installs an extracted module under the directory of its
// classified category.
func (i *Installer) Install(ctx context.Context, res *archive.ExtractionResult, cls classify.Result) (*Result, error) {
	return i.InstallDir(ctx, res.Root, res.ModuleName(), cls.Category)
}

// InstallDir installs the tree rooted at src as module name of category cat.
func (i *Installer) InstallDir(ctx context.Context, src string, name types.ModuleName, cat classify.Category) (result *Result, err error) {
	target, err := i.TargetDir(cat, name)
	if err != nil {
		return nil, &InstallError{Module: string(name), Target: string(cat), Err: err}
	}
	fail := func(err error) (*Result, error) {
		return nil, &InstallError{Module: string(name), Target: target, Err: err}
	}

	unlock := i.locks.Lock(string(name))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	base := filepath.Dir(target)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fail(err)
	}

	targetExists := false
	switch info, statErr := os.Stat(target); {
	case statErr == nil && info.IsDir():
		targetExists = true
	case statErr == nil:
		return fail(fmt.Errorf("%w: %s is a file", ErrTypeConflict, target))
	case !errors.Is(statErr, fs.ErrNotExist):
		return fail(statErr)
	}

	plan, err := diffTrees(src, target)
	if err != nil {
		return fail(err)
	}

	result = &Result{Module: name, Category: cat, Path: target, RelPath: i.relPath(target), Created: !targetExists}
	for _, e := range plan {
		if e.isDir {
			continue
		}
		switch e.action {
		case actionAdd:
			result.Added++
		case actionUpdate:
			result.Updated++
		default:
			result.Unchanged++
		}
	}
	result.Changed = !targetExists || result.Added+result.Updated > 0

	if !result.Changed {
		i.logger.Debug("module already up to date", "module", name, "path", target, "files", result.Unchanged)
		return result, nil
	}

	staging, err := os.MkdirTemp(base, "."+string(name)+".staging-*")
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging) // best-effort; the target was not touched
		}
	}()

	if targetExists {
		if err = mirrorTree(target, staging); err != nil {
			return fail(fmt.Errorf("stage installed copy: %w", err))
		}
	}
	for _, e := range plan {
		if err = ctx.Err(); err != nil {
			return fail(err)
		}
		dst := filepath.Join(staging, e.rel)
		switch {
		case e.isDir:
			err = os.MkdirAll(dst, 0o755)
		case e.action != actionKeep:
			err = copyFile(filepath.Join(src, e.rel), dst)
		}
		if err != nil {
			return fail(err)
		}
	}

	if err = ctx.Err(); err != nil {
		return fail(err)
	}
	if err = swap(staging, target, targetExists); err != nil {
		return fail(err)
	}

	i.logger.Debug("module installed",
		"module", name,
		"category", cat,
		"path", target,
		"added", result.Added,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
	)
	return result, nil
}

func (i *Installer) relPath(target string) string {
	rel, err := filepath.Rel(i.projectRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// diffTrees walks src and decides, for every entry, whether the installed
// copy under target needs it. Entries are returned parents first.
func diffTrees(src, target string) ([]planEntry, error) {
	var plan []planEntry
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		dstInfo, statErr := os.Lstat(filepath.Join(target, rel))
		dstExists := statErr == nil
		if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return statErr
		}

		if d.IsDir() {
			if dstExists && !dstInfo.IsDir() {
				return fmt.Errorf("%w: %s", ErrTypeConflict, filepath.ToSlash(rel))
			}
			act := actionKeep
			if !dstExists {
				act = actionAdd
			}
			plan = append(plan, planEntry{rel: rel, isDir: true, action: act})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		entry := planEntry{rel: rel, action: actionAdd}
		if dstExists {
			if dstInfo.IsDir() {
				return fmt.Errorf("%w: %s", ErrTypeConflict, filepath.ToSlash(rel))
			}
			srcInfo, err := d.Info()
			if err != nil {
				return err
			}
			entry.action = actionKeep
			if srcInfo.ModTime().After(dstInfo.ModTime()) {
				entry.action = actionUpdate
			}
		}
		plan = append(plan, entry)
		return nil
	})
	return plan, err
}

// swap moves staging into target's place. An existing target is first moved
// aside and restored if the second rename fails.
func swap(staging, target string, targetExists bool) error {
	if !targetExists {
		return os.Rename(staging, target)
	}

	old := staging + ".old"
	if err := os.Rename(target, old); err != nil {
		return fmt.Errorf("move installed copy aside: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		if restoreErr := os.Rename(old, target); restoreErr != nil {
			return fmt.Errorf("swap failed (%w) and restore failed: %w", err, restoreErr)
		}
		return fmt.Errorf("swap staged copy into place: %w", err)
	}
	// The new copy is live; a leftover hidden .old directory is harmless.
	_ = os.RemoveAll(old)
	return nil
}
