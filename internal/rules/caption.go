// Package rules implements the caption/date parsers and the deterministic
// classification engine that sits between ingest and the catalog.
package rules

import (
	"regexp"
	"strings"
)

var (
	metaCategory = regexp.MustCompile(`(?i)^#분류\s*:\s*(.+)$`)
	metaDate     = regexp.MustCompile(`(?i)^#날짜\s*:\s*(.+)$`)
	metaTags     = regexp.MustCompile(`(?i)^#태그\s*:\s*(.+)$`)

	collapseDashes = regexp.MustCompile(`[_\-]+`)
	collapseSpace  = regexp.MustCompile(`\s+`)
)

// CaptionParseResult is the structured view of a free-form upload caption.
type CaptionParseResult struct {
	Title           string
	Description     string
	CaptionRaw      string
	ExplicitCategory string
	ExplicitDate     string
	ExplicitTags     []string
}

// SanitizeFilename turns a filename into a human title fallback: strip any
// directory components and extension, then collapse separators into spaces.
func SanitizeFilename(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	stem := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		stem = name[:i]
	}
	stem = collapseDashes.ReplaceAllString(stem, " ")
	stem = collapseSpace.ReplaceAllString(stem, " ")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return "Untitled"
	}
	return stem
}

// normalizeCaptionText turns literal "\n" escape sequences into real
// newlines, but only when the caption has no real newlines already -
// manual multipart clients occasionally send captions pre-escaped.
func normalizeCaptionText(caption string) string {
	if !strings.Contains(caption, "\n") && strings.Contains(caption, `\n`) {
		caption = strings.ReplaceAll(caption, `\r\n`, "\n")
		caption = strings.ReplaceAll(caption, `\n`, "\n")
	}
	return caption
}

// ParseCaption extracts title/description/explicit category/date/tags from
// a free-form caption. An empty caption falls back to a sanitized filename
// stem as the title.
func ParseCaption(caption string, filename string) CaptionParseResult {
	var title string
	var bodyLines []string

	if strings.TrimSpace(caption) != "" {
		normalized := normalizeCaptionText(caption)
		var nonEmpty []string
		for _, line := range strings.Split(normalized, "\n") {
			line = strings.TrimRight(line, " \t\r")
			if strings.TrimSpace(line) != "" {
				nonEmpty = append(nonEmpty, line)
			}
		}
		if len(nonEmpty) > 0 {
			title = strings.TrimSpace(nonEmpty[0])
			bodyLines = nonEmpty[1:]
		} else {
			title = SanitizeFilename(filename)
		}
	} else {
		title = SanitizeFilename(filename)
	}

	var explicitCategory, explicitDate string
	var explicitTags []string
	var descLines []string

	for _, line := range bodyLines {
		s := strings.TrimSpace(line)
		if m := metaCategory.FindStringSubmatch(s); m != nil {
			explicitCategory = strings.TrimSpace(m[1])
			continue
		}
		if m := metaDate.FindStringSubmatch(s); m != nil {
			explicitDate = strings.TrimSpace(m[1])
			continue
		}
		if m := metaTags.FindStringSubmatch(s); m != nil {
			for _, t := range strings.Split(m[1], ",") {
				if t = strings.TrimSpace(t); t != "" {
					explicitTags = append(explicitTags, t)
				}
			}
			continue
		}
		descLines = append(descLines, line)
	}

	return CaptionParseResult{
		Title:            title,
		Description:      strings.TrimSpace(strings.Join(descLines, "\n")),
		CaptionRaw:       caption,
		ExplicitCategory: explicitCategory,
		ExplicitDate:     explicitDate,
		ExplicitTags:     explicitTags,
	}
}
