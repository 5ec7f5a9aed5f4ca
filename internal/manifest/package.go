// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type (
	// PackageInfo is what the package manifests of a module declare. When
	// several manifests are present their dependency lists are merged.
	PackageInfo struct {
		// Sources lists the package manifest file names that were read.
		Sources      []string
		Name         string
		Version      string
		Description  string
		Dependencies []string
	}

	packageReader func(data []byte) (*PackageInfo, error)

	packageJSON struct {
		Name                 string         `json:"name"`
		Version              string         `json:"version"`
		Description          string         `json:"description"`
		Dependencies         map[string]any `json:"dependencies"`
		PeerDependencies     map[string]any `json:"peerDependencies"`
		OptionalDependencies map[string]any `json:"optionalDependencies"`
	}

	pyProject struct {
		Project struct {
			Name         string   `toml:"name"`
			Version      string   `toml:"version"`
			Description  string   `toml:"description"`
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name         string         `toml:"name"`
				Version      string         `toml:"version"`
				Description  string         `toml:"description"`
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}

	cargoManifest struct {
		Package struct {
			Name        string `toml:"name"`
			Version     string `toml:"version"`
			Description string `toml:"description"`
		} `toml:"package"`
		Dependencies map[string]any `toml:"dependencies"`
	}
)

var packageFiles = []struct {
	name string
	read packageReader
}{
	{"package.json", readPackageJSON},
	{"pyproject.toml", readPyProject},
	{"Cargo.toml", readCargo},
	{"requirements.txt", readRequirements},
}

// FindPackage reads every recognized package manifest at the top of root and
// merges them. It returns (nil, nil) when none is present.
func FindPackage(root string) (*PackageInfo, error) {
	var merged *PackageInfo
	seen := make(map[string]bool)

	for _, pf := range packageFiles {
		path := filepath.Join(root, pf.name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := readLimited(path, info.Size())
		if err != nil {
			return nil, &ManifestError{Path: path, Err: err}
		}
		pkg, err := pf.read(data)
		if err != nil {
			return nil, &ManifestError{Path: path, Err: err}
		}

		if merged == nil {
			merged = &PackageInfo{Name: pkg.Name, Version: pkg.Version, Description: pkg.Description}
		}
		merged.Sources = append(merged.Sources, pf.name)
		for _, dep := range pkg.Dependencies {
			dep = normalizeDependency(dep)
			if dep == "" || seen[dep] {
				continue
			}
			seen[dep] = true
			merged.Dependencies = append(merged.Dependencies, dep)
		}
	}
	return merged, nil
}

// HasDependency reports whether any of names is a dependency. Comparison is
// case-insensitive.
func (p *PackageInfo) HasDependency(names []string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, name := range names {
		want := normalizeDependency(name)
		for _, dep := range p.Dependencies {
			if dep == want {
				return dep, true
			}
		}
	}
	return "", false
}

func readPackageJSON(data []byte) (*PackageInfo, error) {
	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, err
	}
	pkg := &PackageInfo{Name: pj.Name, Version: pj.Version, Description: pj.Description}
	for _, deps := range []map[string]any{pj.Dependencies, pj.PeerDependencies, pj.OptionalDependencies} {
		pkg.Dependencies = append(pkg.Dependencies, sortedKeys(deps)...)
	}
	return pkg, nil
}

func readPyProject(data []byte) (*PackageInfo, error) {
	var pp pyProject
	if err := toml.Unmarshal(data, &pp); err != nil {
		return nil, err
	}
	pkg := &PackageInfo{
		Name:         pp.Project.Name,
		Version:      pp.Project.Version,
		Description:  pp.Project.Description,
		Dependencies: pp.Project.Dependencies,
	}
	poetry := pp.Tool.Poetry
	if pkg.Name == "" {
		pkg.Name, pkg.Version, pkg.Description = poetry.Name, poetry.Version, poetry.Description
	}
	for _, dep := range sortedKeys(poetry.Dependencies) {
		if dep != "python" {
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}
	}
	return pkg, nil
}

func readCargo(data []byte) (*PackageInfo, error) {
	var cm cargoManifest
	if err := toml.Unmarshal(data, &cm); err != nil {
		return nil, err
	}
	return &PackageInfo{
		Name:         cm.Package.Name,
		Version:      cm.Package.Version,
		Description:  cm.Package.Description,
		Dependencies: sortedKeys(cm.Dependencies),
	}, nil
}

func readRequirements(data []byte) (*PackageInfo, error) {
	pkg := &PackageInfo{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		// Options such as -r other.txt or -e git+https://... carry no name.
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		pkg.Dependencies = append(pkg.Dependencies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read requirements: %w", err)
	}
	return pkg, nil
}

// normalizeDependency reduces a requirement specifier ("Flask[async]>=2.0",
// "fastapi == 0.110 ; python_version > '3.8'") to its lower-cased name.
// npm scopes ("@hapi/hapi") are kept.
func normalizeDependency(spec string) string {
	spec = strings.ToLower(strings.TrimSpace(spec))
	end := strings.IndexFunc(spec, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		case r == '-', r == '_', r == '.', r == '@', r == '/':
			return false
		default:
			return true
		}
	})
	if end >= 0 {
		spec = spec[:end]
	}
	return spec
}
