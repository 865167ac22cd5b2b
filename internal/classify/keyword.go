package classify

import "strings"

// Keyword scores each category by counting case-insensitive substring
// occurrences of its keywords in subject and body, divided by the number of
// keywords. Scores are not capped at 1.
type Keyword struct {
	Categories []Category
	Threshold  float64
}

func (k Keyword) Categorize(subject, body string) Result {
	text := strings.ToLower(subject + " " + body)
	scores := make(map[string]float64, len(k.Categories))
	best, bestScore := "", -1.0
	for _, c := range k.Categories {
		s := keywordScore(text, c.Keywords)
		scores[c.Name] = s
		if s > bestScore {
			best, bestScore = c.Name, s
		}
	}
	res := Result{Category: Uncategorized, Scores: scores, Method: MethodKeyword}
	if best == "" || bestScore < k.Threshold {
		return res
	}
	res.Category, res.Confidence = best, bestScore
	return res
}

func keywordScore(lowerText string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		hits += strings.Count(lowerText, kw)
	}
	return float64(hits) / float64(len(keywords))
}
