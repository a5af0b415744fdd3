package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNormalizeYAML_RoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	var doc any
	err := yaml.Unmarshal([]byte(`
allowed_categories: [safety, maintenance]
category_rules:
  - category: safety
    keywords: [drill, incident]
`), &doc)
	require.NoError(t, err)

	out, ok := normalizeYAML(doc).(map[string]any)
	require.True(t, ok)
	require.Contains(t, out, "allowed_categories")
	require.Contains(t, out, "category_rules")

	rules, ok := out["category_rules"].([]any)
	require.True(t, ok)
	require.Len(t, rules, 1)

	rule, ok := rules[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "safety", rule["category"])
}

func TestNormalizeYAML_PassesThroughScalars(t *testing.T) {
	t.Parallel()
	require.Equal(t, "x", normalizeYAML("x"))
	require.Equal(t, 3, normalizeYAML(3))
	require.Nil(t, normalizeYAML(nil))
}
