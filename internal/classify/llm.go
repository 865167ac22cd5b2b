package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/newsdigest/internal/llm"
)

const (
	systemPrompt = "You are a helpful assistant that categorizes newsletter content."

	// DefaultMaxContent is how many characters of content go into the prompt.
	DefaultMaxContent = 2000

	labelScores      = "Category scores:"
	labelSelected    = "Selected category:"
	labelConfidence  = "Confidence:"
	labelExplanation = "Explanation:"
)

// LLM asks a language model to score and pick a category.
type LLM struct {
	Completer  llm.Completer
	Categories []Category
	Threshold  float64
	MaxContent int
}

// Categorize returns an error only when the model call fails. A response it
// cannot use comes back as an Uncategorized result.
func (l *LLM) Categorize(ctx context.Context, subject, body string) (Result, error) {
	max := l.MaxContent
	if max <= 0 {
		max = DefaultMaxContent
	}
	text, err := l.Completer.Complete(ctx, llm.Prompt{
		System:      systemPrompt,
		User:        BuildPrompt(l.Categories, subject, body, max),
		Temperature: llm.DefaultTemperature,
		MaxTokens:   llm.DefaultMaxTokens,
	})
	if err != nil {
		return Result{Category: Uncategorized, Method: MethodLLM}, fmt.Errorf("llm categorize: %w", err)
	}
	res := ParseResponse(ctx, text, l.Categories, l.Threshold)
	zerolog.Ctx(ctx).Info().
		Str("category", res.Category).
		Float64("confidence", res.Confidence).
		Str("explanation", res.Explanation).
		Msg("llm categorization")
	return res, nil
}

// BuildPrompt renders the categorization request. Content longer than
// maxContent characters is cut and marked as truncated.
func BuildPrompt(categories []Category, subject, body string, maxContent int) string {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, "\n- %s: %s", c.Name, strings.Join(c.Keywords, ", "))
	}
	runes := []rune(body)
	if maxContent > 0 && len(runes) > maxContent {
		body = string(runes[:maxContent]) + "... [content truncated]"
	}
	return fmt.Sprintf(`Categorize the following newsletter content into one of the predefined categories.

CATEGORIES:
%s

NEWSLETTER:
Title: %s

Content:
%s

For each category, provide a relevance score between 0 and 1, where 1 means highly relevant.
Then select the most appropriate category and provide your confidence score.
Also provide a brief explanation (1-2 sentences) of why you chose this category.

Output format:
%s
<category1>: <score>
<category2>: <score>
...

%s <most_relevant_category>
%s <confidence_score>
%s <brief explanation of why this category was chosen>
`, cats.String(), subject, body, labelScores, labelSelected, labelConfidence, labelExplanation)
}

// ParseResponse reads a model answer in the format requested by
// BuildPrompt. Unparseable numbers are logged and skipped, scores for names
// outside the taxonomy are dropped, and the selected name is matched
// case-insensitively. Missing, unknown or low-confidence selections yield
// Uncategorized with zero confidence.
func ParseResponse(ctx context.Context, text string, categories []Category, threshold float64) Result {
	logger := zerolog.Ctx(ctx)
	res := Result{Category: Uncategorized, Scores: map[string]float64{}, Method: MethodLLM}

	if block, ok := between(text, labelScores, labelSelected); ok {
		for _, line := range strings.Split(block, "\n") {
			name, val, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			canon, known := resolve(categories, name)
			if !known {
				continue
			}
			score, err := parseNumber(val)
			if err != nil {
				logger.Warn().Str("line", strings.TrimSpace(line)).Msg("could not parse category score")
				continue
			}
			res.Scores[canon] = score
		}
	}

	selected, _ := firstLineAfter(text, labelSelected)
	confidence := 0.0
	if raw, ok := firstLineAfter(text, labelConfidence); ok {
		v, err := parseNumber(raw)
		if err != nil {
			logger.Warn().Str("value", raw).Msg("could not parse confidence")
		} else {
			confidence = v
		}
	}
	if i := strings.Index(text, labelExplanation); i >= 0 {
		res.Explanation = strings.TrimSpace(text[i+len(labelExplanation):])
	}

	canon, known := resolve(categories, selected)
	if !known || confidence < threshold || confidence <= 0 {
		res.Explanation = "Confidence too low or category not determined"
		return res
	}
	res.Category, res.Confidence = canon, confidence
	return res
}

func between(text, start, end string) (string, bool) {
	i := strings.Index(text, start)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(start):]
	if j := strings.Index(rest, end); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

func firstLineAfter(text, label string) (string, bool) {
	i := strings.Index(text, label)
	if i < 0 {
		return "", false
	}
	line, _, _ := strings.Cut(text[i+len(label):], "\n")
	return strings.TrimSpace(line), true
}

// resolve maps a model-written category name to its configured spelling.
func resolve(categories []Category, name string) (string, bool) {
	name = strings.Trim(strings.TrimSpace(name), "-*•\"'` ")
	if name == "" {
		return "", false
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

func parseNumber(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "*` ")
	return strconv.ParseFloat(s, 64)
}
