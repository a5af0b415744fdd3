package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveReason(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"DATE_MISSING"}, removeReason([]string{"CLASSIFY_FAIL", "DATE_MISSING"}, "CLASSIFY_FAIL"))
	require.Equal(t, []string{}, removeReason([]string{"CLASSIFY_FAIL"}, "CLASSIFY_FAIL"))
	require.Equal(t, []string{"DATE_MISSING"}, removeReason([]string{"DATE_MISSING"}, "CLASSIFY_FAIL"))
	require.Equal(t, []string{}, removeReason(nil, "CLASSIFY_FAIL"))
}
