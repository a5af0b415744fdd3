package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CategoryRule maps keyword hits in a single source field to a category and
// an optional set of auto-attached tags.
type CategoryRule struct {
	Category string              `json:"category"`
	Keywords map[string][]string `json:"keywords"`
	Tags     []string            `json:"tags,omitempty"`
}

// TagCategoryRule infers a category from tags already attached to the
// document (explicit tags plus the structured and keyword tags inferred for
// it; it only runs when no category_rule matched, so no rule tags are present).
type TagCategoryRule struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Match    string   `json:"match"`
}

// Rules is the JSON shape of a published RuleVersion's rules_json column.
type Rules struct {
	DefaultCategory   string            `json:"default_category"`
	CategoryRules     []CategoryRule    `json:"category_rules"`
	TagCategoryRules  []TagCategoryRule `json:"tag_category_rules"`
}

// AllowedCategories returns the union of every category named in the ruleset
// plus DefaultCategory - the only categories an explicit caption category or
// a tag-category rule may resolve to.
func (r Rules) AllowedCategories() map[string]bool {
	allowed := map[string]bool{}
	if r.DefaultCategory != "" {
		allowed[normalizeCategory(r.DefaultCategory)] = true
	}
	for _, cr := range r.CategoryRules {
		if cr.Category != "" {
			allowed[normalizeCategory(cr.Category)] = true
		}
	}
	for _, tr := range r.TagCategoryRules {
		if tr.Category != "" {
			allowed[normalizeCategory(tr.Category)] = true
		}
	}
	return allowed
}

func normalizeCategory(category string) string {
	return strings.ToLower(collapseSpace.ReplaceAllString(strings.TrimSpace(category), " "))
}

// ParseRules decodes a RuleVersion's raw rules_json, tolerating an absent or
// non-list category_rules/tag_category_rules by treating it as empty - the
// engine must never panic on malformed rules.
func ParseRules(raw json.RawMessage) Rules {
	var loose struct {
		DefaultCategory  string          `json:"default_category"`
		CategoryRules    json.RawMessage `json:"category_rules"`
		TagCategoryRules json.RawMessage `json:"tag_category_rules"`
	}
	if len(raw) == 0 {
		return Rules{}
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return Rules{}
	}

	rules := Rules{DefaultCategory: loose.DefaultCategory}

	var categoryRules []CategoryRule
	if len(loose.CategoryRules) > 0 && json.Unmarshal(loose.CategoryRules, &categoryRules) == nil {
		rules.CategoryRules = categoryRules
	}

	var tagCategoryRules []TagCategoryRule
	if len(loose.TagCategoryRules) > 0 && json.Unmarshal(loose.TagCategoryRules, &tagCategoryRules) == nil {
		rules.TagCategoryRules = tagCategoryRules
	}

	return rules
}

// Validate checks that raw is well-formed enough to publish as an active
// RuleVersion: category_rules/tag_category_rules, if present, must be lists
// of objects carrying a non-empty category, and default_category must be
// set. This is stricter than ParseRules, which tolerates malformed input by
// degrading to empty rules; Validate exists to reject bad rules before they
// ever reach the engine.
func Validate(raw json.RawMessage) error {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return fmt.Errorf("rules_json is not an object: %w", err)
	}

	defaultCategoryRaw, ok := loose["default_category"]
	if !ok {
		return fmt.Errorf("rules_json missing default_category")
	}
	var defaultCategory string
	if err := json.Unmarshal(defaultCategoryRaw, &defaultCategory); err != nil || strings.TrimSpace(defaultCategory) == "" {
		return fmt.Errorf("default_category must be a non-empty string")
	}

	if raw, ok := loose["category_rules"]; ok && string(raw) != "null" {
		var categoryRules []CategoryRule
		if err := json.Unmarshal(raw, &categoryRules); err != nil {
			return fmt.Errorf("category_rules must be a list: %w", err)
		}
		for i, cr := range categoryRules {
			if strings.TrimSpace(cr.Category) == "" {
				return fmt.Errorf("category_rules[%d] has an empty category", i)
			}
		}
	}

	if raw, ok := loose["tag_category_rules"]; ok && string(raw) != "null" {
		var tagCategoryRules []TagCategoryRule
		if err := json.Unmarshal(raw, &tagCategoryRules); err != nil {
			return fmt.Errorf("tag_category_rules must be a list: %w", err)
		}
		for i, tr := range tagCategoryRules {
			if strings.TrimSpace(tr.Category) == "" {
				return fmt.Errorf("tag_category_rules[%d] has an empty category", i)
			}
			if tr.Match != "" && tr.Match != "any" && tr.Match != "all" {
				return fmt.Errorf("tag_category_rules[%d] has invalid match %q", i, tr.Match)
			}
		}
	}

	return nil
}
