// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/invowk/ingest/internal/archive"

	"github.com/bmatcuk/doublestar/v4"
	"mvdan.cc/sh/v3/syntax"
)

const (
	// maxScanFiles bounds how many files a content scan reads.
	maxScanFiles = 2000
	// maxScanBytes bounds how much of each file is read.
	maxScanBytes = 256 << 10
	// binarySniffLen is the prefix checked for NUL bytes.
	binarySniffLen = 8000
)

var skipDirs = []string{".git", "node_modules", "vendor", "__pycache__", ".venv", "target", "dist", "build"}

const codeFiles = "**/*.{js,jsx,mjs,cjs,ts,tsx,go,py,rb,php,java,kt,rs,cs}"

var (
	configFiles = []string{
		"**/*.{json,yaml,yml,toml,ini,cfg,conf,properties,xml,env}",
		"**/.env*",
	}
	docFiles = []string{
		"**/*.{md,markdown,rst,txt,adoc,html,pdf}",
		"**/*.{png,jpg,jpeg,gif,svg}",
		"**/{license,licence,authors,changelog}",
	}
)

type (
	// Signal recognizes a category from file contents or file layout.
	Signal struct {
		Name     string
		Category Category
		// Include limits the files a signal looks at (doublestar patterns
		// over lower-cased slash paths). Empty means every text file.
		Include []string
		// Patterns match file contents; any match in any included file fires.
		Patterns []*regexp.Regexp
		// Detect, when set, is consulted for included files instead of Patterns.
		Detect func(rel string, content []byte) bool
		// AllFiles fires when every file is included and there is at least
		// one; contents are not examined.
		AllFiles bool
		// Require, with AllFiles, additionally needs one file matching these
		// patterns.
		Require []string
	}

	contentRule struct {
		signals []Signal
	}

	scannedFile struct {
		rel     string
		content []byte
		binary  bool
	}
)

// DefaultSignals returns the content signals in evaluation order: contract,
// test, route registration, shell script, config-only, docs-only.
func DefaultSignals() []Signal {
	return []Signal{
		{
			Name:     "contract keywords",
			Category: CategoryContract,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\s*pragma\s+solidity\b`),
				regexp.MustCompile(`(?m)^\s*(abstract\s+)?contract\s+[A-Za-z_]\w*(\s+is\s+[\w\s,]+)?\s*\{`),
				regexp.MustCompile(`(?m)^#\s*@version\s+\^?0\.\d`),
			},
		},
		{
			Name:     "test framework calls",
			Category: CategoryTest,
			Include:  []string{codeFiles},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile("\\b(describe|it|test)\\s*\\(\\s*['\"`]"),
				regexp.MustCompile(`(?m)^func\s+Test\w*\s*\(\s*\w+\s+\*testing\.T\s*\)`),
				regexp.MustCompile(`(?m)^\s*def\s+test_\w+\s*\(`),
				regexp.MustCompile(`(?m)^\s*(import|from)\s+(pytest|unittest)\b`),
			},
		},
		{
			Name:     "route registration",
			Category: CategoryService,
			Include:  []string{codeFiles},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile("\\b(app|router|server|api|routes?)\\s*\\.\\s*(get|post|put|patch|delete|all|route)\\s*\\(\\s*['\"`/]"),
				regexp.MustCompile(`\bhttp\.(HandleFunc|Handle)\s*\(`),
				regexp.MustCompile(`(?m)^\s*@(app|router|api|bp|blueprint)\.(get|post|put|patch|delete|route)\s*\(`),
				regexp.MustCompile(`\.listen\s*\(\s*(\d+|port\b|PORT\b|process\.env\.PORT)`),
			},
		},
		{
			Name:     "shell script",
			Category: CategoryScript,
			Detect:   isShellScript,
		},
		{
			Name:     "configuration files only",
			Category: CategoryConfig,
			Include:  append(slices.Clone(configFiles), docFiles...),
			AllFiles: true,
			Require:  configFiles,
		},
		{
			Name:     "documentation only",
			Category: CategoryDoc,
			Include:  docFiles,
			AllFiles: true,
		},
	}
}

func (contentRule) Name() string { return RuleContent }

// Match scans the module once and evaluates signals in order.
func (r contentRule) Match(res *archive.ExtractionResult) (Category, string, bool) {
	skip := ""
	if res.Manifest != nil {
		skip = res.Manifest.Source
	}
	files := scanFiles(res.Root, skip)
	if len(files) == 0 {
		return "", "", false
	}
	for _, sig := range r.signals {
		if reason, ok := sig.match(files); ok {
			return sig.Category, reason, true
		}
	}
	return "", "", false
}

func (s Signal) included(rel string) bool {
	if len(s.Include) == 0 {
		return true
	}
	return matchAny(s.Include, rel)
}

func matchAny(patterns []string, rel string) bool {
	lower := strings.ToLower(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

func (s Signal) match(files []scannedFile) (string, bool) {
	if s.AllFiles {
		required := len(s.Require) == 0
		for _, f := range files {
			if !s.included(f.rel) {
				return "", false
			}
			if !required && matchAny(s.Require, f.rel) {
				required = true
			}
		}
		if !required {
			return "", false
		}
		return fmt.Sprintf("%s (%d files)", s.Name, len(files)), true
	}

	for _, f := range files {
		if f.binary || !s.included(f.rel) {
			continue
		}
		if s.Detect != nil {
			if s.Detect(f.rel, f.content) {
				return fmt.Sprintf("%s in %s", s.Name, f.rel), true
			}
			continue
		}
		for _, re := range s.Patterns {
			if re.Match(f.content) {
				return fmt.Sprintf("%s in %s", s.Name, f.rel), true
			}
		}
	}
	return "", false
}

// isShellScript reports whether a file is a shell script that parses. Files
// qualify by extension or by a shell shebang.
func isShellScript(rel string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	lang, ok := syntax.LangBash, false
	switch ext {
	case ".sh", ".bash":
		ok = true
	default:
		if line, _, _ := bytes.Cut(content, []byte("\n")); bytes.HasPrefix(line, []byte("#!")) {
			shebang := string(line)
			ok = strings.Contains(shebang, "sh") && !strings.Contains(shebang, "python") && !strings.Contains(shebang, "node")
			if strings.HasSuffix(strings.TrimSpace(shebang), "/sh") {
				lang = syntax.LangPOSIX
			}
		}
	}
	if !ok {
		return false
	}
	parser := syntax.NewParser(syntax.Variant(lang))
	_, err := parser.Parse(bytes.NewReader(content), rel)
	return err == nil
}

// scanFiles lists regular files under root (slash-separated relative paths)
// with a bounded prefix of their contents. The module manifest (skip) and
// dependency directories are left out.
func scanFiles(root, skip string) []scannedFile {
	var files []scannedFile

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are not evidence either way
		}
		if d.IsDir() {
			if path != root && slices.Contains(skipDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil //nolint:nilerr // cannot happen for paths produced by WalkDir
		}
		rel = filepath.ToSlash(rel)
		if rel == skip {
			return nil
		}

		content, readErr := readPrefix(path)
		if readErr != nil {
			return nil //nolint:nilerr // skip unreadable files
		}
		sniff := content
		if len(sniff) > binarySniffLen {
			sniff = sniff[:binarySniffLen]
		}
		files = append(files, scannedFile{rel: rel, content: content, binary: bytes.IndexByte(sniff, 0) >= 0})
		if len(files) >= maxScanFiles {
			return fs.SkipAll
		}
		return nil
	})
	return files
}

func readPrefix(path string) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return io.ReadAll(io.LimitReader(f, maxScanBytes))
}
