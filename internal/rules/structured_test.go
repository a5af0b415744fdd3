package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferStructuredTags(t *testing.T) {
	t.Parallel()

	tags := InferStructuredTags("DCP Rev.3 Korean 한글본", "document control procedure manual", "dcp-manual.pdf", nil)

	require.Contains(t, tags, "set:dcp")
	require.Contains(t, tags, "dockey:document-control-procedure")
	require.Contains(t, tags, "rev:3")
	require.Contains(t, tags, "kind:manual")
	require.Contains(t, tags, "lang:ko")
}

func TestInferStructuredTags_NeverOverridesExisting(t *testing.T) {
	t.Parallel()

	existing := []string{"set:custom-set", "rev:final"}
	tags := InferStructuredTags("General Arrangement Drawing Rev.2", "", "gad.pdf", existing)

	for _, tag := range tags {
		require.NotEqual(t, "set:general-arrangement-drawing", tag)
		require.NotEqual(t, "rev:2", tag)
	}
}

func TestInferStructuredTags_DraftFallback(t *testing.T) {
	t.Parallel()

	tags := InferStructuredTags("Draft budget proposal", "", "proposal.pdf", nil)
	require.Contains(t, tags, "rev:draft")
}
