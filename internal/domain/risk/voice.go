package risk

import "strings"

// Transcript is the immutable text produced from one audio artifact.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Empty reports whether the transcript has no usable text.
func (t Transcript) Empty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Sentiment is a categorical sentiment label
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentMixed    Sentiment = "MIXED"
)

// SentimentResult is the label plus optional per-class scores.
type SentimentResult struct {
	Label  Sentiment          `json:"label"`
	Scores map[string]float64 `json:"scores,omitempty"`
}

// PatternMatch holds the keywords and fraud-pattern categories found in a
// transcript. Both slices are duplicate-free; order carries no meaning.
type PatternMatch struct {
	Keywords []string `json:"keywords"`
	Patterns []string `json:"patterns"`
}

// Any reports whether at least one fraud-pattern category matched.
func (m PatternMatch) Any() bool {
	return len(m.Patterns) > 0
}
