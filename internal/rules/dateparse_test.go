package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEventDateFromText(t *testing.T) {
	t.Parallel()

	ingestedAt := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		text string
		want time.Time
		ok   bool
	}{
		{"iso dash", "report 2024-03-01 final", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"iso dot", "2023.12.31", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"iso slash", "2022/01/05", time.Date(2022, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"compact", "file_20240229.pdf", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"yymmdd recent century", "minutes 240301 v2", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"yymmdd previous century", "scan 991231", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"invalid calendar date", "2024-13-40", time.Time{}, false},
		{"no date", "no date anywhere here", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseEventDateFromText(tc.text, ingestedAt)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.True(t, got.Equal(tc.want))
			}
		})
	}
}

func TestInferCentury_RejectsFarFuture(t *testing.T) {
	t.Parallel()

	ingestedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	year := inferCentury(99, ingestedAt)
	require.Equal(t, 1999, year)
}
