// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"fmt"

	"github.com/invowk/ingest/internal/archive"
)

// Rule names as reported in Result.Rule.
const (
	RuleManifest = "manifest"
	RuleKeyword  = "keyword"
	RulePackage  = "package"
	RuleContent  = "content"
)

type (
	manifestRule struct{}

	keywordRule struct {
		rules []KeywordRule
	}

	packageRule struct {
		frameworks Frameworks
	}
)

func (manifestRule) Name() string { return RuleManifest }

// Match accepts the manifest type verbatim when it names an installable category.
func (manifestRule) Match(res *archive.ExtractionResult) (Category, string, bool) {
	if res.Manifest == nil || res.Manifest.Type == "" {
		return "", "", false
	}
	cat := Category(res.Manifest.Type)
	if ok, _ := cat.IsValid(); !ok {
		return "", "", false
	}
	return cat, fmt.Sprintf("%s declares type %q", res.Manifest.Source, res.Manifest.Type), true
}

func (keywordRule) Name() string { return RuleKeyword }

// Match checks each keyword, in table order, against the archive name and
// then every top-level entry.
func (r keywordRule) Match(res *archive.ExtractionResult) (Category, string, bool) {
	archiveName := res.ArchiveName()
	for _, kw := range r.rules {
		if kw.matches(archiveName) {
			return kw.Category, fmt.Sprintf("archive name %q contains %q", archiveName, kw.Keyword), true
		}
		for _, entry := range res.TopLevelEntries {
			if kw.matches(entry) {
				return kw.Category, fmt.Sprintf("top-level entry %q contains %q", entry, kw.Keyword), true
			}
		}
	}
	return "", "", false
}

func (packageRule) Name() string { return RulePackage }

// Match reports service for a server framework dependency and admin for a UI
// framework dependency, in that order.
func (r packageRule) Match(res *archive.ExtractionResult) (Category, string, bool) {
	if res.Package == nil {
		return "", "", false
	}
	if dep, ok := res.Package.HasDependency(r.frameworks.Server); ok {
		return CategoryService, fmt.Sprintf("depends on server framework %q", dep), true
	}
	if dep, ok := res.Package.HasDependency(r.frameworks.UI); ok {
		return CategoryAdmin, fmt.Sprintf("depends on UI framework %q", dep), true
	}
	return "", "", false
}
