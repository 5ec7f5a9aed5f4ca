// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"log/slog"
	"path/filepath"

	"github.com/invowk/ingest/internal/archive"
)

// RuleOverride names results forced by the caller instead of a rule.
const RuleOverride = "override"

type (
	// Rule inspects an extraction result and reports a category when it
	// recognizes the module. reason is a short human-readable explanation.
	Rule interface {
		Name() string
		Match(res *archive.ExtractionResult) (cat Category, reason string, ok bool)
	}

	// Result is the outcome of classification.
	Result struct {
		Category Category
		// Rule is the name of the rule that decided.
		Rule string
		// Reason explains the decision ("manifest type \"admin\"").
		Reason string
	}

	// Options configures a Classifier built by New.
	Options struct {
		Keywords   []KeywordRule
		Frameworks Frameworks
		// Signals overrides the content signal table. Nil means DefaultSignals().
		Signals []Signal
		Logger  *slog.Logger
	}

	// Classifier evaluates rules in order. It is immutable after
	// construction and safe for concurrent use.
	Classifier struct {
		rules  []Rule
		logger *slog.Logger
	}
)

// New builds a Classifier with the standard rule order.
func New(opts Options) *Classifier {
	signals := opts.Signals
	if signals == nil {
		signals = DefaultSignals()
	}
	return NewWithRules(opts.Logger,
		manifestRule{},
		keywordRule{rules: opts.Keywords},
		packageRule{frameworks: opts.Frameworks},
		contentRule{signals: signals},
	)
}

// NewWithRules builds a Classifier from an explicit rule list.
func NewWithRules(logger *slog.Logger, rules ...Rule) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{rules: rules, logger: logger}
}

// Override returns the result used when the caller forces a category.
func Override(cat Category) Result {
	return Result{Category: cat, Rule: RuleOverride, Reason: "category set by caller"}
}

// Classify returns the first matching rule's category. When no rule matches
// it logs a warning and returns an *AmbiguousError with CategoryUnknown.
func (c *Classifier) Classify(res *archive.ExtractionResult) (Result, error) {
	archiveName := filepath.Base(res.ArchivePath)
	checked := make([]string, 0, len(c.rules))

	for _, rule := range c.rules {
		checked = append(checked, rule.Name())
		cat, reason, ok := rule.Match(res)
		if !ok {
			continue
		}
		if valid, _ := cat.IsValid(); !valid {
			c.logger.Debug("rule produced non-installable category", "rule", rule.Name(), "category", cat)
			continue
		}
		c.logger.Debug("archive classified",
			"archive", archiveName,
			"category", cat,
			"rule", rule.Name(),
			"reason", reason,
		)
		return Result{Category: cat, Rule: rule.Name(), Reason: reason}, nil
	}

	c.logger.Warn("archive could not be classified", "archive", archiveName, "checked", checked)
	return Result{Category: CategoryUnknown}, &AmbiguousError{Archive: archiveName, Checked: checked}
}
