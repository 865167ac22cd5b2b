// Package classify assigns newsletter content to one category of a
// configured taxonomy, by keyword scoring or with a language model.
package classify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/newsdigest/internal/llm"
)

// Uncategorized is the sentinel category for content no category claims.
const Uncategorized = "uncategorized"

// DefaultThreshold is the minimum score or confidence for a category to be
// selected.
const DefaultThreshold = 0.1

const (
	MethodKeyword = "keyword"
	MethodLLM     = "llm"
)

// Category is one entry of the taxonomy. Keywords double as hints in the
// model prompt.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Result is a categorization outcome. Scores holds one entry per configured
// category that received a score; it is returned even when the selection is
// Uncategorized.
type Result struct {
	Category    string
	Confidence  float64
	Scores      map[string]float64
	Explanation string
	Method      string
}

// IsUncategorized reports whether no category was selected.
func (r Result) IsUncategorized() bool { return r.Category == Uncategorized }

// Classifier categorizes content. It is built once either keyword-only or
// preferring a model with keyword fallback.
type Classifier struct {
	keyword Keyword
	model   *LLM
}

// NewKeywordClassifier returns a classifier that only scores keywords.
func NewKeywordClassifier(categories []Category, threshold float64) *Classifier {
	return &Classifier{keyword: Keyword{Categories: categories, Threshold: threshold}}
}

// NewLLMClassifier returns a classifier that asks the model first and falls
// back to keyword scoring whenever the model errors or selects nothing.
func NewLLMClassifier(categories []Category, threshold float64, completer llm.Completer) *Classifier {
	c := NewKeywordClassifier(categories, threshold)
	c.model = &LLM{Completer: completer, Categories: categories, Threshold: threshold}
	return c
}

// UsesLLM reports whether the classifier consults a model.
func (c *Classifier) UsesLLM() bool { return c.model != nil }

// Categorize never fails: the keyword path always yields a result, possibly
// Uncategorized.
func (c *Classifier) Categorize(ctx context.Context, subject, body string) Result {
	if c.model != nil {
		res, err := c.model.Categorize(ctx, subject, body)
		logger := zerolog.Ctx(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("llm categorization failed, using keywords")
		case res.IsUncategorized() || res.Confidence <= 0:
			logger.Info().Str("explanation", res.Explanation).Msg("llm selected no category, using keywords")
		default:
			return res
		}
	}
	return c.keyword.Categorize(subject, body)
}
