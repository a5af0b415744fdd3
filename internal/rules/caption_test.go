package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		filename string
		want     string
	}{
		{"strips extension and dashes", "2024-quarterly_report.pdf", "2024 quarterly report"},
		{"strips directories", "/tmp/uploads/My File.docx", "My File"},
		{"falls back when empty", "___.pdf", "Untitled"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SanitizeFilename(tc.filename))
		})
	}
}

func TestParseCaption(t *testing.T) {
	t.Parallel()

	caption := "Quarterly Safety Drill\nSite visit notes\n#분류: Safety\n#날짜: 2024-03-01\n#태그: drill, site-a"
	result := ParseCaption(caption, "drill.pdf")

	require.Equal(t, "Quarterly Safety Drill", result.Title)
	require.Equal(t, "Site visit notes", result.Description)
	require.Equal(t, "Safety", result.ExplicitCategory)
	require.Equal(t, "2024-03-01", result.ExplicitDate)
	require.Equal(t, []string{"drill", "site-a"}, result.ExplicitTags)
}

func TestParseCaption_EmptyFallsBackToFilename(t *testing.T) {
	t.Parallel()

	result := ParseCaption("", "monthly-report_final.pdf")
	require.Equal(t, "monthly report final", result.Title)
	require.Empty(t, result.ExplicitCategory)
}

func TestParseCaption_EscapedNewlines(t *testing.T) {
	t.Parallel()

	result := ParseCaption(`Title line\n#날짜: 2023/11/02`, "x.pdf")
	require.Equal(t, "Title line", result.Title)
	require.Equal(t, "2023/11/02", result.ExplicitDate)
}
