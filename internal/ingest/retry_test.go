package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		attempt int
		want    int64
	}{
		{1, 30},
		{2, 60},
		{3, 120},
		{4, 240},
		{5, 480},
		{6, 960},
		{7, 1800},
		{8, 1800},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Backoff(c.attempt, 30, 1800))
	}
}

func TestBackoff_ClampsAttemptBelowOne(t *testing.T) {
	t.Parallel()
	require.Equal(t, int64(30), Backoff(0, 30, 1800))
	require.Equal(t, int64(30), Backoff(-5, 30, 1800))
}
