package rules

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRules() Rules {
	return Rules{
		DefaultCategory: "Uncategorized",
		CategoryRules: []CategoryRule{
			{
				Category: "Safety",
				Keywords: map[string][]string{
					"title":    {"safety", "drill"},
					"filename": {"safety"},
				},
				Tags: []string{"ops"},
			},
			{
				Category: "Finance",
				Keywords: map[string][]string{
					"description": {"invoice", "budget"},
				},
			},
		},
		TagCategoryRules: []TagCategoryRule{
			{Category: "Drawings", Tags: []string{"set:*"}, Match: "any"},
		},
	}
}

func TestApplyRules_ExplicitCategoryAllowed(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		ExplicitCategory: "safety",
		Title:            "Monthly report",
		IngestedAt:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:            sampleRules(),
	})

	require.Equal(t, "Safety", out.Category)
	require.NotContains(t, out.ReviewReasons, ReasonCategoryOutOfRuleset)
}

func TestApplyRules_ExplicitCategoryRejected(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		ExplicitCategory: "NotARealCategory",
		Title:            "Monthly report",
		IngestedAt:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:            sampleRules(),
	})

	require.Equal(t, "Uncategorized", out.Category)
	require.Contains(t, out.ReviewReasons, ReasonCategoryOutOfRuleset)
}

func TestApplyRules_CategoryRuleMatchBySourceOrder(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		Title:       "Fire drill schedule",
		Description: "invoice attached for drill gear",
		IngestedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:       sampleRules(),
	})

	// title is checked before description, so Safety wins over Finance.
	require.Equal(t, "Safety", out.Category)
	require.Contains(t, out.Tags, "ops")
}

func TestApplyRules_TagCategoryRuleFallback(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		ExplicitTags: []string{"set:dcp"},
		Title:        "Unrelated title",
		IngestedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:        sampleRules(),
	})

	require.Equal(t, "Drawings", out.Category)
}

func TestApplyRules_NoMatchUsesDefaultAndClassifyFail(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		Title:      "Nothing relevant here",
		IngestedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:      sampleRules(),
	})

	require.Equal(t, "Uncategorized", out.Category)
	require.Contains(t, out.ReviewReasons, ReasonClassifyFail)
}

func TestApplyRules_EventDateFallsBackToIngestDate(t *testing.T) {
	t.Parallel()

	ingestedAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := ApplyRules(RuleInput{
		Title:      "No date mentioned",
		IngestedAt: ingestedAt,
		Rules:      sampleRules(),
	})

	require.True(t, out.EventDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.Contains(t, out.ReviewReasons, ReasonDateMissing)
}

func TestApplyRules_EventDateFromExplicitField(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		ExplicitDate: "2023-07-04",
		Title:        "Independence report",
		IngestedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:        sampleRules(),
	})

	require.True(t, out.EventDate.Equal(time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC)))
	require.NotContains(t, out.ReviewReasons, ReasonDateMissing)
}

func TestApplyRules_TagsAreSortedAndDeduped(t *testing.T) {
	t.Parallel()

	out := ApplyRules(RuleInput{
		ExplicitTags: []string{"Ops", "ops", "site-a"},
		Title:        "Fire drill",
		IngestedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Rules:        sampleRules(),
	})

	seen := map[string]int{}
	slugs := make([]string, 0, len(out.Tags))
	for _, tag := range out.Tags {
		seen[normalizeStructuredValue(tag)]++
		slugs = append(slugs, normalizeStructuredValue(tag))
	}
	require.Truef(t, sort.StringsAreSorted(slugs), "tags not sorted by slug: %v", out.Tags)
	for slug, count := range seen {
		require.Equalf(t, 1, count, "tag slug %q appeared more than once", slug)
	}
}

func TestApplyRules_MalformedRulesDoNotPanic(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		ApplyRules(RuleInput{
			Title:      "anything",
			IngestedAt: time.Now().UTC(),
			Rules:      Rules{},
		})
	})
}
