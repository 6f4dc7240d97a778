// Package catalog maps free-text questions to pre-authored answer bundles.
package catalog

import (
	"strings"

	"github.com/capitalize-ai/presales-assistant/internal/model"
)

// Category names of the default rules.
const (
	CategoryTender        = "tender"
	CategoryComparison    = "comparison"
	CategoryHistorical    = "historical"
	CategoryConfiguration = "configuration"
	CategoryPricing       = "pricing"
	CategoryDocument      = "document"
	CategoryVerification  = "verification"
	CategoryOverview      = "overview"
)

// Rule selects Answer when any of Keywords occurs in the question.
type Rule struct {
	Category string
	Keywords []string
	Answer   model.Answer
}

// Matches reports whether the question contains one of the rule's keywords.
func (r Rule) Matches(question string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(question, kw) {
			return true
		}
	}
	return false
}

// Catalog is an ordered rule list with a fallback answer.
type Catalog struct {
	rules    []Rule
	fallback model.Answer
}

// New creates a catalog. Rules are evaluated in the given order.
func New(rules []Rule, fallback model.Answer) *Catalog {
	c := &Catalog{
		rules:    make([]Rule, len(rules)),
		fallback: fallback.Clone(),
	}
	for i, r := range rules {
		r.Keywords = append([]string(nil), r.Keywords...)
		r.Answer = r.Answer.Clone()
		if r.Answer.Category == "" {
			r.Answer.Category = r.Category
		}
		c.rules[i] = r
	}
	if c.fallback.Category == "" {
		c.fallback.Category = CategoryOverview
	}
	return c
}

// Default returns the catalog with the built-in pre-sales content.
func Default() *Catalog {
	return New(defaultRules(), overviewAnswer())
}

// Match returns a copy of the first matching rule's answer, or the fallback.
func (c *Catalog) Match(question string) model.Answer {
	for _, r := range c.rules {
		if r.Matches(question) {
			return r.Answer.Clone()
		}
	}
	return c.fallback.Clone()
}

// Categories lists rule categories in priority order, fallback last.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return append(out, c.fallback.Category)
}
