package rules

import (
	"regexp"
	"strings"
)

var revPattern = regexp.MustCompile(`(?i)\brev(?:ision)?\.?\s*([a-z0-9\-_]+)\b`)

type setRule struct {
	set      string
	dockey   string
	patterns []*regexp.Regexp
}

var setRules = []setRule{
	{
		set:    "dcp",
		dockey: "document-control-procedure",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bdcp\b`),
			regexp.MustCompile(`(?i)document control procedure`),
		},
	},
	{
		set:    "general-arrangement-drawing",
		dockey: "general-arrangement-drawing",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)general arrangement drawing`),
			regexp.MustCompile(`(?i)\bgad\b`),
		},
	},
}

type kindRule struct {
	kind     string
	patterns []*regexp.Regexp
}

var kindRules = []kindRule{
	{"manual", []*regexp.Regexp{regexp.MustCompile(`(?i)\bmanual\b`), regexp.MustCompile(`매뉴얼`)}},
	{"guide", []*regexp.Regexp{regexp.MustCompile(`(?i)\bguide\b`), regexp.MustCompile(`이용 방법`), regexp.MustCompile(`문서 교환 시스템 소개`)}},
	{"account-list", []*regexp.Regexp{regexp.MustCompile(`(?i)account list`), regexp.MustCompile(`계정 리스트`), regexp.MustCompile(`(?i)necessaryinformation`)}},
	{"drawing", []*regexp.Regexp{regexp.MustCompile(`(?i)\bdrawing\b`), regexp.MustCompile(`도면`)}},
	{"main", []*regexp.Regexp{regexp.MustCompile(`(?i)\bprocedure\b`), regexp.MustCompile(`절차`)}},
}

type langRule struct {
	lang     string
	patterns []*regexp.Regexp
}

var langRules = []langRule{
	{"ko", []*regexp.Regexp{regexp.MustCompile(`한글`), regexp.MustCompile(`국문`), regexp.MustCompile(`(?i)korean`)}},
	{"en", []*regexp.Regexp{regexp.MustCompile(`영문`), regexp.MustCompile(`(?i)english`)}},
}

var nonSlugPattern = regexp.MustCompile(`[^0-9a-z]+`)

func normalizeStructuredValue(value string) string {
	lowered := strings.ToLower(collapseSpace.ReplaceAllString(strings.TrimSpace(value), " "))
	slug := strings.Trim(nonSlugPattern.ReplaceAllString(lowered, "-"), "-")
	return slug
}

// extractRevisionFromTitle finds a `rev.N` / `revision X` token in free text.
func extractRevisionFromTitle(title string) string {
	m := revPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// structuredTagMap pulls the `key:value` structured tags already present
// (explicit or previously inferred) so inference never overrides them.
func structuredTagMap(tags []string) map[string]string {
	out := map[string]string{}
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		idx := strings.Index(tag, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(tag[:idx]))
		value := strings.TrimSpace(tag[idx+1:])
		if key == "" || value == "" {
			continue
		}
		switch key {
		case "set", "dockey", "rev", "kind", "lang":
			if _, ok := out[key]; !ok {
				out[key] = value
			}
		}
	}
	return out
}

// InferStructuredTags recognizes known document "sets", revisions, kinds and
// languages in the merged title/description/filename text and emits
// `set:*`, `dockey:*`, `rev:*`, `kind:*`, `lang:*` tags, never overriding a
// structured tag that is already present in existingTags.
func InferStructuredTags(title, description, filename string, existingTags []string) []string {
	var inferred []string
	existing := structuredTagMap(existingTags)

	merged := strings.ToLower(strings.Join([]string{title, description, filename}, " "))

	if _, hasSet := existing["set"]; !hasSet {
		if _, hasDockey := existing["dockey"]; !hasDockey {
			for _, rule := range setRules {
				matched := false
				for _, pat := range rule.patterns {
					if pat.MatchString(merged) {
						matched = true
						break
					}
				}
				if !matched {
					continue
				}
				if _, ok := existing["set"]; !ok {
					inferred = append(inferred, "set:"+rule.set)
					existing["set"] = rule.set
				}
				if _, ok := existing["dockey"]; !ok {
					inferred = append(inferred, "dockey:"+rule.dockey)
					existing["dockey"] = rule.dockey
				}
				break
			}
		}
	}

	if _, ok := existing["rev"]; !ok {
		revision := extractRevisionFromTitle(title)
		if revision == "" {
			revision = extractRevisionFromTitle(filename)
		}
		if revision != "" {
			if normalized := normalizeStructuredValue(revision); normalized != "" {
				inferred = append(inferred, "rev:"+normalized)
				existing["rev"] = normalized
			}
		} else if regexp.MustCompile(`(?i)\bdraft\b`).MatchString(merged) {
			inferred = append(inferred, "rev:draft")
			existing["rev"] = "draft"
		}
	}

	if _, ok := existing["kind"]; !ok {
		for _, rule := range kindRules {
			matched := false
			for _, pat := range rule.patterns {
				if pat.MatchString(merged) {
					matched = true
					break
				}
			}
			if matched {
				inferred = append(inferred, "kind:"+rule.kind)
				existing["kind"] = rule.kind
				break
			}
		}
	}

	if _, ok := existing["lang"]; !ok {
		for _, rule := range langRules {
			matched := false
			for _, pat := range rule.patterns {
				if pat.MatchString(merged) {
					matched = true
					break
				}
			}
			if matched {
				inferred = append(inferred, "lang:"+rule.lang)
				existing["lang"] = rule.lang
				break
			}
		}
	}

	return inferred
}
