package fraud

import (
	"sort"
	"strings"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// PatternMatcher finds phishing keywords and fraud-pattern categories in
// transcript text. Matching is case-insensitive and substring based, so
// partial-word hits count. It holds no mutable state after construction.
type PatternMatcher struct {
	keywords   []string
	lowered    []string
	categories []string
	phrases    map[string][]string
}

// NewPatternMatcher deduplicates keywords case-insensitively, keeping the
// first spelling. Empty keywords and categories without phrases are dropped:
// an empty phrase list would otherwise match every transcript.
func NewPatternMatcher(keywords []string, patterns map[string][]string) *PatternMatcher {
	m := &PatternMatcher{phrases: make(map[string][]string, len(patterns))}

	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		low := strings.ToLower(strings.TrimSpace(kw))
		if low == "" {
			continue
		}
		if _, dup := seen[low]; dup {
			continue
		}
		seen[low] = struct{}{}
		m.keywords = append(m.keywords, kw)
		m.lowered = append(m.lowered, low)
	}

	for category, phrases := range patterns {
		var lowered []string
		for _, p := range phrases {
			if low := strings.ToLower(strings.TrimSpace(p)); low != "" {
				lowered = append(lowered, low)
			}
		}
		if len(lowered) == 0 {
			continue
		}
		m.categories = append(m.categories, category)
		m.phrases[category] = lowered
	}
	sort.Strings(m.categories)

	return m
}

// KeywordCount is the size of the deduplicated keyword list.
func (m *PatternMatcher) KeywordCount() int {
	return len(m.keywords)
}

// Match returns the keywords present in text and the categories whose
// every phrase is present.
func (m *PatternMatcher) Match(text string) risk.PatternMatch {
	low := strings.ToLower(text)
	match := risk.PatternMatch{
		Keywords: []string{},
		Patterns: []string{},
	}

	for i, kw := range m.lowered {
		if strings.Contains(low, kw) {
			match.Keywords = append(match.Keywords, m.keywords[i])
		}
	}

	for _, category := range m.categories {
		if containsAll(low, m.phrases[category]) {
			match.Patterns = append(match.Patterns, category)
		}
	}

	return match
}

func containsAll(text string, phrases []string) bool {
	for _, p := range phrases {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}
