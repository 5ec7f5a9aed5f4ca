// SPDX-License-Identifier: MPL-2.0

// Package manifest reads module metadata from an extracted archive: the module
// manifest (JSON, YAML or CUE) that may declare a name and type, and package
// manifests (package.json, pyproject.toml, Cargo.toml, requirements.txt)
// whose dependency lists feed classification.
package manifest
