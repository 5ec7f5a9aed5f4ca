// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"time"

	"github.com/invowk/ingest/internal/classify"
)

type (
	// InstalledModule is one registry entry.
	InstalledModule struct {
		ID           string            `json:"id"`
		Name         string            `json:"name"`
		Type         classify.Category `json:"type"`
		Path         string            `json:"path"`
		Version      string            `json:"version,omitempty"`
		Description  string            `json:"description,omitempty"`
		Dependencies []string          `json:"dependencies,omitempty"`
		InstalledAt  time.Time         `json:"installedAt"`
		// Archive is the file name of the archive the module came from.
		Archive string `json:"archive,omitempty"`
	}

	// Fields carries the optional manifest fields recorded with a module.
	Fields struct {
		Version      string
		Description  string
		Dependencies []string
		Archive      string
	}
)
