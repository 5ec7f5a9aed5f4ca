// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKeywordRule is the sentinel error wrapped by InvalidKeywordRuleError.
var ErrInvalidKeywordRule = errors.New("invalid keyword rule")

type (
	// KeywordRule maps a keyword found in the archive name or a top-level entry
	// to a category. Rules match case-insensitive substrings; Token rules
	// match whole words only ("ai" then matches "ai-tools" but not "main.go").
	KeywordRule struct {
		Keyword  string   `json:"keyword" mapstructure:"keyword"`
		Category Category `json:"category" mapstructure:"category"`
		Token    bool     `json:"token,omitempty" mapstructure:"token"`
	}

	// Frameworks lists dependency names that identify a module kind from its
	// package manifest. Names are compared case-insensitively.
	Frameworks struct {
		// Server lists web-server frameworks; a match classifies as service.
		Server []string `json:"server" mapstructure:"server"`
		// UI lists front-end frameworks; a match classifies as admin.
		UI []string `json:"ui" mapstructure:"ui"`
	}

	// InvalidKeywordRuleError is returned when a KeywordRule has an empty keyword
	// or an invalid category.
	InvalidKeywordRuleError struct {
		Rule        KeywordRule
		FieldErrors []error
	}
)

// DefaultKeywords returns the keyword table in evaluation order.
func DefaultKeywords() []KeywordRule {
	return []KeywordRule{
		{Keyword: "phase", Category: CategoryService},
		{Keyword: "admin", Category: CategoryAdmin},
		{Keyword: "ai", Category: CategoryAI},
		{Keyword: "agent", Category: CategoryAgent},
	}
}

// DefaultFrameworks returns the built-in framework dependency tables.
func DefaultFrameworks() Frameworks {
	return Frameworks{
		Server: []string{
			"express", "fastify", "koa", "hapi", "@hapi/hapi", "@nestjs/core", "restify",
			"flask", "fastapi", "django", "actix-web", "axum", "rocket",
		},
		UI: []string{
			"react", "react-dom", "vue", "@angular/core", "svelte", "@chakra-ui/react",
			"next", "preact", "solid-js",
		},
	}
}

// IsValid returns whether the rule has a keyword and an installable category.
func (r KeywordRule) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(r.Keyword) == "" {
		errs = append(errs, errors.New("keyword must not be empty"))
	}
	if ok, fieldErrs := r.Category.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidKeywordRuleError{Rule: r, FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidKeywordRuleError.
func (e *InvalidKeywordRuleError) Error() string {
	return fmt.Sprintf("invalid keyword rule %q: %v", e.Rule.Keyword, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidKeywordRule for errors.Is.
func (e *InvalidKeywordRuleError) Unwrap() error { return ErrInvalidKeywordRule }

// matches reports whether text contains the rule's keyword.
func (r KeywordRule) matches(text string) bool {
	kw := strings.ToLower(r.Keyword)
	text = strings.ToLower(text)
	if !r.Token {
		return strings.Contains(text, kw)
	}
	for _, tok := range tokenize(text) {
		if tok == kw {
			return true
		}
	}
	return false
}

// tokenize splits text on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}
