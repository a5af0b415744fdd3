package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSummary_PrefersDescription(t *testing.T) {
	t.Parallel()
	got, err := BuildSummary("a title", "  the  real   summary text  ")
	require.NoError(t, err)
	require.Equal(t, "the real summary text", got)
}

func TestBuildSummary_FallsBackToTitle(t *testing.T) {
	t.Parallel()
	got, err := BuildSummary("fallback title", "   ")
	require.NoError(t, err)
	require.Equal(t, "fallback title", got)
}

func TestBuildSummary_EmptySourceErrors(t *testing.T) {
	t.Parallel()
	_, err := BuildSummary("", "")
	require.Error(t, err)
}

func TestBuildSummary_TruncatesToMaxRunes(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", maxSummaryRunes+50)
	got, err := BuildSummary("", long)
	require.NoError(t, err)
	require.Len(t, []rune(got), maxSummaryRunes)
}
