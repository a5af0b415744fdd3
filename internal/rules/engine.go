package rules

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	// ReasonClassifyFail is added when no category rule, tag-category rule,
	// or explicit category resolves and the default category is used.
	ReasonClassifyFail = "CLASSIFY_FAIL"
	// ReasonCategoryOutOfRuleset is added when an explicit caption category
	// does not normalize into the ruleset's allowed category set.
	ReasonCategoryOutOfRuleset = "CATEGORY_OUT_OF_RULESET"
	// ReasonDateMissing is added when no event date could be parsed from any
	// source and ingested_at's date was used instead.
	ReasonDateMissing = "DATE_MISSING"

	// maxAutoTags is the cap on auto-inferred tags (structured + category-rule
	// + keyword) beyond whatever explicit tags the caption carried.
	maxAutoTags = 3
	// maxKeywordCandidates bounds how many keyword tokens are even considered
	// before the overall maxAutoTags cap is applied.
	maxKeywordCandidates = 5
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"are": true, "at": true, "by": true, "from": true, "this": true, "that": true,
	"이": true, "가": true, "은": true, "는": true, "을": true, "를": true,
	"의": true, "에": true, "와": true, "과": true, "도": true, "로": true,
}

// RuleInput carries every field the engine may read, matching the original
// pipeline's (caption, title, description, filename, body, timestamp, rules)
// signature.
type RuleInput struct {
	ExplicitCategory string
	ExplicitDate     string
	ExplicitTags     []string

	Title        string
	Description  string
	Filename     string
	Body         string
	CaptionRaw   string
	MetadataText string

	IngestedAt time.Time
	Rules      Rules
}

// RuleOutput is the classification result: category, sorted/deduplicated
// tags, resolved event date, and any review reasons accumulated along the
// way.
type RuleOutput struct {
	Category      string
	Tags          []string
	EventDate     time.Time
	ReviewReasons []string
}

// ApplyRules is a pure function: the same (input, rules) pair always yields
// the same output. It never panics on malformed rules.
func ApplyRules(input RuleInput) RuleOutput {
	var reasons []string
	allowed := input.Rules.AllowedCategories()
	canonical := canonicalCategories(input.Rules)

	category, categoryTags, categoryReasons := resolveCategory(input, allowed, canonical)
	reasons = append(reasons, categoryReasons...)

	eventDate, dateReasons := resolveEventDate(input)
	reasons = append(reasons, dateReasons...)

	tags := resolveTags(input, categoryTags)

	return RuleOutput{
		Category:      category,
		Tags:          tags,
		EventDate:     eventDate,
		ReviewReasons: reasons,
	}
}

// canonicalCategories maps a normalized category name back to the exact
// string spelling it first appeared with in the ruleset, so resolution
// returns the ruleset's own spelling rather than whatever casing a caption
// used.
func canonicalCategories(rules Rules) map[string]string {
	out := map[string]string{}
	add := func(category string) {
		if category == "" {
			return
		}
		key := normalizeCategory(category)
		if _, ok := out[key]; !ok {
			out[key] = category
		}
	}
	add(rules.DefaultCategory)
	for _, cr := range rules.CategoryRules {
		add(cr.Category)
	}
	for _, tr := range rules.TagCategoryRules {
		add(tr.Category)
	}
	return out
}

func resolveCategory(input RuleInput, allowed map[string]bool, canonical map[string]string) (string, []string, []string) {
	if explicit := strings.TrimSpace(input.ExplicitCategory); explicit != "" {
		key := normalizeCategory(explicit)
		if allowed[key] {
			return canonical[key], nil, nil
		}
		return input.Rules.DefaultCategory, nil, []string{ReasonCategoryOutOfRuleset}
	}

	if category, tags, ok := matchCategoryRules(input); ok {
		return category, tags, nil
	}

	explicitAndAuto := resolveTags(input, nil)
	if category, ok := matchTagCategoryRules(input.Rules.TagCategoryRules, explicitAndAuto); ok {
		return category, nil, nil
	}

	return input.Rules.DefaultCategory, nil, []string{ReasonClassifyFail}
}

// matchCategoryRules iterates source fields outermost (title, description,
// filename, body) and category_rules innermost, returning the first match.
func matchCategoryRules(input RuleInput) (string, []string, bool) {
	fields := []struct {
		name string
		text string
	}{
		{"title", input.Title},
		{"description", input.Description},
		{"filename", input.Filename},
		{"body", input.Body},
	}

	for _, field := range fields {
		if field.text == "" {
			continue
		}
		lowered := strings.ToLower(field.text)
		for _, rule := range input.Rules.CategoryRules {
			if rule.Category == "" {
				continue
			}
			keywords := rule.Keywords[field.name]
			for _, keyword := range keywords {
				keyword = strings.TrimSpace(keyword)
				if keyword == "" {
					continue
				}
				if strings.Contains(lowered, strings.ToLower(keyword)) {
					return rule.Category, rule.Tags, true
				}
			}
		}
	}
	return "", nil, false
}

// matchTagCategoryRules infers a category from a normalized view of the
// tags already attached. A wildcard pattern like "set*" matches by prefix.
func matchTagCategoryRules(rules []TagCategoryRule, tags []string) (string, bool) {
	normalized := make(map[string]bool, len(tags))
	for _, tag := range tags {
		normalized[strings.ToLower(strings.TrimSpace(tag))] = true
	}

	for _, rule := range rules {
		if rule.Category == "" || len(rule.Tags) == 0 {
			continue
		}
		matchAll := rule.Match == "all"
		matched := 0
		for _, pattern := range rule.Tags {
			if tagPatternMatches(pattern, normalized) {
				matched++
			}
		}
		if matchAll {
			if matched == len(rule.Tags) {
				return rule.Category, true
			}
			continue
		}
		if matched > 0 {
			return rule.Category, true
		}
	}
	return "", false
}

func tagPatternMatches(pattern string, tags map[string]bool) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		for tag := range tags {
			if strings.HasPrefix(tag, prefix) {
				return true
			}
		}
		return false
	}
	return tags[pattern]
}

func resolveEventDate(input RuleInput) (time.Time, []string) {
	candidates := []string{
		input.ExplicitDate,
		input.CaptionRaw,
		input.Title,
		input.Filename,
		input.MetadataText,
	}
	for _, candidate := range candidates {
		if t, ok := ParseEventDateFromText(candidate, input.IngestedAt); ok {
			return t, nil
		}
	}
	return time.Date(input.IngestedAt.Year(), input.IngestedAt.Month(), input.IngestedAt.Day(), 0, 0, 0, 0, time.UTC), []string{ReasonDateMissing}
}

func resolveTags(input RuleInput, categoryTags []string) []string {
	explicit := dedupeSlugs(input.ExplicitTags)

	seen := map[string]bool{}
	for _, tag := range explicit {
		seen[normalizeStructuredValue(tag)] = true
	}

	var autoCandidates []string
	addCandidate := func(tag string) {
		slug := normalizeStructuredValue(tag)
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		autoCandidates = append(autoCandidates, tag)
	}

	for _, tag := range categoryTags {
		addCandidate(tag)
	}

	structured := InferStructuredTags(input.Title, input.Description, input.Filename, append(append([]string{}, explicit...), categoryTags...))
	for _, tag := range structured {
		addCandidate(tag)
	}

	for _, tag := range keywordTags(input) {
		addCandidate(tag)
	}

	if len(autoCandidates) > maxAutoTags {
		autoCandidates = autoCandidates[:maxAutoTags]
	}

	return dedupeSlugs(append(explicit, autoCandidates...))
}

func keywordTags(input RuleInput) []string {
	merged := strings.Join([]string{input.Title, input.Description, input.Filename, input.Body}, " ")
	tokens := tokenPattern.FindAllString(merged, -1)

	var result []string
	seen := map[string]bool{}
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if stopwords[lower] || isAllDigits(lower) || len(lower) < 2 {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		result = append(result, lower)
		if len(result) >= maxKeywordCandidates {
			break
		}
	}
	return result
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// dedupeSlugs sorts tags and removes duplicates by normalized slug, keeping
// the first-seen original spelling.
func dedupeSlugs(tags []string) []string {
	seen := map[string]string{}
	var order []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		slug := normalizeStructuredValue(tag)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; !ok {
			seen[slug] = tag
			order = append(order, slug)
		}
	}
	sort.Strings(order)
	out := make([]string, 0, len(order))
	for _, slug := range order {
		out = append(out, seen[slug])
	}
	return out
}
