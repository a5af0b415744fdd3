package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWellFormedRules(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"default_category": "Uncategorized",
		"category_rules": [{"category": "Safety", "keywords": {"title": ["drill"]}}],
		"tag_category_rules": [{"category": "Drawings", "tags": ["set:*"], "match": "any"}]
	}`)
	require.NoError(t, Validate(raw))
}

func TestValidate_RejectsMissingDefaultCategory(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"category_rules": []}`)
	require.Error(t, Validate(raw))
}

func TestValidate_RejectsEmptyCategoryInCategoryRules(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"default_category": "Uncategorized", "category_rules": [{"category": ""}]}`)
	require.Error(t, Validate(raw))
}

func TestValidate_RejectsInvalidMatchMode(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"default_category": "Uncategorized",
		"tag_category_rules": [{"category": "Drawings", "tags": ["set:*"], "match": "sometimes"}]
	}`)
	require.Error(t, Validate(raw))
}

func TestValidate_RejectsNonObjectInput(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(json.RawMessage(`[1,2,3]`)))
}

func TestParseRules_ToleratesMalformedLists(t *testing.T) {
	t.Parallel()

	parsed := ParseRules(json.RawMessage(`{"default_category": "Uncategorized", "category_rules": "not a list"}`))
	require.Equal(t, "Uncategorized", parsed.DefaultCategory)
	require.Empty(t, parsed.CategoryRules)
}

func TestParseRules_EmptyInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, Rules{}, ParseRules(nil))
}

func TestAllowedCategories_NormalizesCase(t *testing.T) {
	t.Parallel()

	r := Rules{
		DefaultCategory: "Uncategorized",
		CategoryRules:   []CategoryRule{{Category: "Safety"}},
		TagCategoryRules: []TagCategoryRule{
			{Category: "DRAWINGS"},
		},
	}
	allowed := r.AllowedCategories()
	require.True(t, allowed["uncategorized"])
	require.True(t, allowed["safety"])
	require.True(t, allowed["drawings"])
	require.Len(t, allowed, 3)
}
