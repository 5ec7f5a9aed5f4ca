// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CategoryAdmin is an administration UI or dashboard.
	CategoryAdmin Category = "admin"
	// CategoryService is a network service exposing routes or RPCs.
	CategoryService Category = "service"
	// CategorySystem is a system-level component.
	CategorySystem Category = "system"
	// CategoryAI is an AI or model-serving component.
	CategoryAI Category = "ai"
	// CategoryAgent is an autonomous agent.
	CategoryAgent Category = "agent"
	// CategoryConfig is a configuration-only bundle.
	CategoryConfig Category = "config"
	// CategoryContract is a smart-contract source bundle.
	CategoryContract Category = "contract"
	// CategoryScript is a collection of shell scripts.
	CategoryScript Category = "script"
	// CategoryTest is a test suite.
	CategoryTest Category = "test"
	// CategoryDoc is a documentation bundle.
	CategoryDoc Category = "doc"
	// CategoryUnknown means no rule matched. It is never installed.
	CategoryUnknown Category = "unknown"
)

var (
	// ErrInvalidCategory is the sentinel error wrapped by InvalidCategoryError.
	ErrInvalidCategory = errors.New("invalid category")

	installable = []Category{
		CategoryAdmin,
		CategoryService,
		CategorySystem,
		CategoryAI,
		CategoryAgent,
		CategoryConfig,
		CategoryContract,
		CategoryScript,
		CategoryTest,
		CategoryDoc,
	}
)

type (
	// Category is the module kind that decides the installation base directory.
	Category string

	// InvalidCategoryError is returned when a Category is not one of the
	// installable categories.
	InvalidCategoryError struct {
		Value Category
	}
)

// Categories returns the installable categories in declaration order.
func Categories() []Category {
	out := make([]Category, len(installable))
	copy(out, installable)
	return out
}

// ParseCategory converts user input (case-insensitive) into an installable Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if ok, errs := c.IsValid(); !ok {
		return "", errs[0]
	}
	return c, nil
}

// String returns the string representation of the Category.
func (c Category) String() string { return string(c) }

// IsValid returns whether the Category names an installable category.
// CategoryUnknown is not installable and therefore not valid.
func (c Category) IsValid() (bool, []error) {
	for _, known := range installable {
		if c == known {
			return true, nil
		}
	}
	return false, []error{&InvalidCategoryError{Value: c}}
}

// Error implements the error interface for InvalidCategoryError.
func (e *InvalidCategoryError) Error() string {
	names := make([]string, len(installable))
	for i, c := range installable {
		names[i] = string(c)
	}
	return fmt.Sprintf("invalid category %q (valid: %s)", e.Value, strings.Join(names, ", "))
}

// Unwrap returns ErrInvalidCategory for errors.Is.
func (e *InvalidCategoryError) Unwrap() error { return ErrInvalidCategory }
