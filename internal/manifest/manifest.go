// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/ingest/pkg/cueutil"

	"gopkg.in/yaml.v3"
)

// MaxFileSize caps the size of any manifest file read from an archive.
const MaxFileSize = cueutil.DefaultMaxFileSize

//go:embed manifest_schema.cue
var manifestSchema string

// ErrInvalidManifest is the sentinel error wrapped by ManifestError.
var ErrInvalidManifest = errors.New("invalid manifest")

type (
	// Manifest is module metadata declared by the archive author. Every field
	// is optional.
	Manifest struct {
		Name         string       `json:"name,omitempty" yaml:"name"`
		Version      string       `json:"version,omitempty" yaml:"version"`
		Type         string       `json:"type,omitempty" yaml:"type"`
		Description  string       `json:"description,omitempty" yaml:"description"`
		Dependencies Dependencies `json:"dependencies,omitempty" yaml:"dependencies"`
		// Source is the manifest file name relative to the module root.
		Source string `json:"-" yaml:"-"`
	}

	// Dependencies is a list of dependency names. It decodes from either a
	// list of strings or a name-to-version object.
	Dependencies []string

	// ManifestError reports a manifest file that exists but cannot be decoded.
	ManifestError struct {
		Path string
		Err  error
	}

	manifestReader func(data []byte, path string) (*Manifest, error)

	candidate struct {
		name string
		read manifestReader
		// requireIdentity skips files that declare neither name nor type.
		requireIdentity bool
	}
)

// candidates are checked in order; the first readable one wins.
var candidates = []candidate{
	{name: "manifest.json", read: readJSON},
	{name: "module.json", read: readJSON},
	{name: "module.yaml", read: readYAML},
	{name: "module.yml", read: readYAML},
	{name: "module.cue", read: readCUE},
	{name: "config.json", read: readJSON, requireIdentity: true},
}

// CandidateNames returns the manifest file names Find looks for, in order.
func CandidateNames() []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

// Find looks for a module manifest at the top of root. It returns (nil, nil)
// when no manifest is present. A manifest that exists but cannot be decoded
// yields a *ManifestError; later candidates are not consulted.
func Find(root string) (*Manifest, error) {
	for _, c := range candidates {
		path := filepath.Join(root, c.name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := readLimited(path, info.Size())
		if err != nil {
			return nil, &ManifestError{Path: path, Err: err}
		}
		m, err := c.read(data, path)
		if err != nil {
			if c.requireIdentity {
				// config.json is usually application config, not a manifest.
				continue
			}
			return nil, &ManifestError{Path: path, Err: err}
		}
		if c.requireIdentity && m.Name == "" && m.Type == "" {
			continue
		}
		m.Source = c.name
		m.normalize()
		return m, nil
	}
	return nil, nil
}

func readLimited(path string, size int64) ([]byte, error) {
	if size > MaxFileSize {
		return nil, fmt.Errorf("file size %d bytes exceeds limit of %d bytes", size, MaxFileSize)
	}
	return os.ReadFile(path)
}

func readJSON(data []byte, _ string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func readYAML(data []byte, _ string) (*Manifest, error) {
	var m Manifest
	if len(bytes.TrimSpace(data)) == 0 {
		return &m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// cueManifest mirrors Manifest for CUE decoding, where dependencies arrive
// as either a list or a struct.
type cueManifest struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Dependencies any    `json:"dependencies"`
}

func readCUE(data []byte, path string) (*Manifest, error) {
	cm, err := cueutil.ParseAndDecodeString[cueManifest](manifestSchema, data, "#Manifest",
		cueutil.WithFilename(filepath.Base(path)),
		cueutil.WithMaxFileSize(MaxFileSize),
	)
	if err != nil {
		return nil, err
	}
	m := &Manifest{Name: cm.Name, Version: cm.Version, Type: cm.Type, Description: cm.Description}
	switch deps := cm.Dependencies.(type) {
	case []any:
		for _, d := range deps {
			if s, ok := d.(string); ok {
				m.Dependencies = append(m.Dependencies, s)
			}
		}
	case map[string]any:
		m.Dependencies = sortedKeys(deps)
	}
	return m, nil
}

func (m *Manifest) normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Type = strings.ToLower(strings.TrimSpace(m.Type))
	m.Version = strings.TrimSpace(m.Version)
	m.Description = strings.TrimSpace(m.Description)
}

// UnmarshalJSON accepts ["a", "b"] or {"a": "^1.0", "b": "*"}.
func (d *Dependencies) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*d = list
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("dependencies must be a list or an object: %w", err)
	}
	*d = sortedKeys(obj)
	return nil
}

// UnmarshalYAML accepts a sequence of names or a name-to-version mapping.
func (d *Dependencies) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = list
	case yaml.MappingNode:
		var obj map[string]any
		if err := node.Decode(&obj); err != nil {
			return err
		}
		*d = sortedKeys(obj)
	default:
		return fmt.Errorf("line %d: dependencies must be a list or a mapping", node.Line)
	}
	return nil
}

// Error implements the error interface for ManifestError.
func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

// Unwrap returns the sentinel and the cause for errors.Is.
func (e *ManifestError) Unwrap() []error { return []error{ErrInvalidManifest, e.Err} }

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
