// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/ingest/internal/manifest"
	"github.com/invowk/ingest/pkg/types"
)

// ExtractionResult describes an extracted archive. The scratch directory is
// owned by the task that requested the extraction and must be released with
// Cleanup.
type ExtractionResult struct {
	// ArchivePath is the absolute path of the source archive.
	ArchivePath string
	// ScratchDir is the private directory the archive was extracted into.
	ScratchDir string
	// Root is the module root: ScratchDir, or its only entry when the
	// archive wraps everything in a single directory.
	Root string
	// WrapperDir is the name of that single directory, empty otherwise.
	WrapperDir string
	// TopLevelEntries are the sorted names directly under ScratchDir.
	TopLevelEntries []string
	// Manifest is the module manifest found at Root, if any.
	Manifest *manifest.Manifest
	// Package merges the package manifests found at Root, if any.
	Package *manifest.PackageInfo
	// Files and Bytes count the regular files written.
	Files int
	Bytes int64
}

// ArchiveName returns the archive file name without its extension.
func (r *ExtractionResult) ArchiveName() string {
	base := filepath.Base(r.ArchivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ModuleName resolves the installed module name: the manifest name, else the
// wrapper directory, else the archive name. The first candidate that
// sanitizes to a valid name wins.
func (r *ExtractionResult) ModuleName() types.ModuleName {
	var candidates []string
	if r.Manifest != nil {
		candidates = append(candidates, r.Manifest.Name)
	}
	candidates = append(candidates, r.WrapperDir, r.ArchiveName())

	for _, c := range candidates {
		name := types.SanitizeModuleName(c)
		if ok, _ := name.IsValid(); ok {
			return name
		}
	}
	return ""
}

// Cleanup removes the scratch directory. It is safe to call more than once.
func (r *ExtractionResult) Cleanup() error {
	if r == nil || r.ScratchDir == "" {
		return nil
	}
	return os.RemoveAll(r.ScratchDir)
}
