package ingest

import (
	"errors"
	"regexp"
	"strings"
)

const maxSummaryRunes = 280

var summaryWhitespace = regexp.MustCompile(`\s+`)

// errEmptySummarySource is returned when neither the description nor the
// title carry enough text to build a summary. This is the non-fatal
// SUMMARY_EXTRACT_FAIL case: the pipeline logs a warning and proceeds with
// an empty summary.
var errEmptySummarySource = errors.New("no summary source text")

// BuildSummary derives a short summary from the parsed caption's
// description, falling back to the title. There is no OCR or body-text
// extraction here, matching the Non-goal in spec.md §1.
func BuildSummary(title, description string) (string, error) {
	source := strings.TrimSpace(description)
	if source == "" {
		source = strings.TrimSpace(title)
	}
	if source == "" {
		return "", errEmptySummarySource
	}
	source = summaryWhitespace.ReplaceAllString(source, " ")
	runes := []rune(source)
	if len(runes) > maxSummaryRunes {
		source = string(runes[:maxSummaryRunes])
	}
	return source, nil
}
