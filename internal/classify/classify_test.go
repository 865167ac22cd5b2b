package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperifyio/newsdigest/internal/llm"
)

var testCategories = []Category{
	{Name: "A", Keywords: []string{"foo", "bar"}},
	{Name: "B", Keywords: []string{"baz"}},
}

func TestKeyword_ScenarioScores(t *testing.T) {
	res := Keyword{Categories: testCategories, Threshold: 0.1}.Categorize("", "foo foo bar")
	if res.Category != "A" || res.Confidence != 1.5 {
		t.Fatalf("got %s %.2f", res.Category, res.Confidence)
	}
	if res.Scores["A"] != 1.5 || res.Scores["B"] != 0 || len(res.Scores) != 2 {
		t.Fatalf("unexpected scores %v", res.Scores)
	}
	if res.Method != MethodKeyword {
		t.Fatalf("method = %q", res.Method)
	}
}

func TestKeyword_CaseInsensitiveSubstring(t *testing.T) {
	res := Keyword{Categories: testCategories, Threshold: 0.1}.Categorize("BAZaar", "Bazooka")
	if res.Category != "B" || res.Confidence != 2 {
		t.Fatalf("got %s %.2f", res.Category, res.Confidence)
	}
}

func TestKeyword_TieBreaksOnFirstCategory(t *testing.T) {
	cats := []Category{
		{Name: "First", Keywords: []string{"go"}},
		{Name: "Second", Keywords: []string{"go"}},
	}
	res := Keyword{Categories: cats}.Categorize("go", "")
	if res.Category != "First" {
		t.Fatalf("expected first-seen category, got %s", res.Category)
	}
}

func TestKeyword_BelowThreshold(t *testing.T) {
	res := Keyword{Categories: testCategories, Threshold: 0.6}.Categorize("", "foo")
	if res.Category != Uncategorized || res.Confidence != 0 {
		t.Fatalf("expected sentinel, got %s %.2f", res.Category, res.Confidence)
	}
	if res.Scores["A"] != 0.5 {
		t.Fatalf("scores must still be returned: %v", res.Scores)
	}
}

func TestKeyword_EmptyKeywordListScoresZero(t *testing.T) {
	cats := []Category{{Name: "Empty"}, {Name: "B", Keywords: []string{"baz"}}}
	res := Keyword{Categories: cats, Threshold: 0.1}.Categorize("", "baz")
	if res.Scores["Empty"] != 0 || res.Category != "B" {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestKeyword_ConfidenceIsScoreOfSelected(t *testing.T) {
	texts := []string{"", "foo", "baz baz bar", "foo bar baz", strings.Repeat("bar ", 7)}
	for _, text := range texts {
		res := Keyword{Categories: testCategories, Threshold: 0.1}.Categorize("", text)
		if res.IsUncategorized() {
			if res.Confidence != 0 {
				t.Fatalf("%q: sentinel must have zero confidence", text)
			}
			continue
		}
		if res.Confidence != res.Scores[res.Category] {
			t.Fatalf("%q: confidence %.2f != score %.2f", text, res.Confidence, res.Scores[res.Category])
		}
		for name, s := range res.Scores {
			if s > res.Confidence {
				t.Fatalf("%q: %s scored %.2f above selected %.2f", text, name, s, res.Confidence)
			}
		}
	}
}

func TestBuildPrompt_TruncatesContent(t *testing.T) {
	body := strings.Repeat("x", 2500)
	p := BuildPrompt(testCategories, "Subject", body, DefaultMaxContent)
	if !strings.Contains(p, strings.Repeat("x", 2000)+"... [content truncated]") {
		t.Fatalf("content not truncated as expected")
	}
	if strings.Contains(p, strings.Repeat("x", 2001)) {
		t.Fatalf("content longer than limit")
	}
	for _, want := range []string{"- A: foo, bar", "- B: baz", "Title: Subject", labelScores, labelSelected, labelConfidence, labelExplanation} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestParseResponse(t *testing.T) {
	text := "Category scores:\n- A: 0.9\nb: 0.2\nC: 0.7\nA: n/a\n\nSelected category: a\nConfidence: 0.85\nExplanation: Mostly about foo."
	res := ParseResponse(context.Background(), text, testCategories, 0.1)
	if res.Category != "A" || res.Confidence != 0.85 {
		t.Fatalf("got %s %.2f", res.Category, res.Confidence)
	}
	if len(res.Scores) != 2 || res.Scores["A"] != 0.9 || res.Scores["B"] != 0.2 {
		t.Fatalf("unexpected scores %v", res.Scores)
	}
	if res.Explanation != "Mostly about foo." {
		t.Fatalf("explanation = %q", res.Explanation)
	}
}

func TestParseResponse_Sentinels(t *testing.T) {
	cases := map[string]string{
		"low confidence":     "Selected category: A\nConfidence: 0.05",
		"unknown category":   "Selected category: Z\nConfidence: 0.9",
		"missing category":   "Confidence: 0.9",
		"garbled confidence": "Selected category: A\nConfidence: high",
		"empty":              "",
	}
	for name, text := range cases {
		res := ParseResponse(context.Background(), text, testCategories, 0.1)
		if res.Category != Uncategorized || res.Confidence != 0 {
			t.Fatalf("%s: expected sentinel, got %s %.2f", name, res.Category, res.Confidence)
		}
	}
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, p llm.Prompt) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestClassifier_PrefersLLM(t *testing.T) {
	fc := &fakeCompleter{reply: "Selected category: B\nConfidence: 0.8\nExplanation: baz everywhere."}
	c := NewLLMClassifier(testCategories, 0.1, fc)
	res := c.Categorize(context.Background(), "", "foo foo bar")
	if res.Category != "B" || res.Method != MethodLLM || res.Explanation != "baz everywhere." {
		t.Fatalf("expected llm result, got %+v", res)
	}
}

func TestClassifier_FallsBackToKeywords(t *testing.T) {
	replies := []*fakeCompleter{
		{err: errors.New("provider down")},
		{reply: "Selected category: uncategorized\nConfidence: 0"},
		{reply: "Selected category: B\nConfidence: 0"},
		{reply: "nonsense"},
	}
	for i, fc := range replies {
		res := NewLLMClassifier(testCategories, 0, fc).Categorize(context.Background(), "", "foo foo bar")
		if res.Method != MethodKeyword || res.Category != "A" || res.Confidence != 1.5 {
			t.Fatalf("case %d: expected keyword fallback, got %+v", i, res)
		}
		if fc.calls != 1 {
			t.Fatalf("case %d: expected one model call, got %d", i, fc.calls)
		}
	}
}

func TestClassifier_KeywordOnly(t *testing.T) {
	c := NewKeywordClassifier(testCategories, 0.1)
	if c.UsesLLM() {
		t.Fatalf("keyword classifier must not use a model")
	}
	if res := c.Categorize(context.Background(), "", "nothing relevant"); !res.IsUncategorized() {
		t.Fatalf("expected sentinel, got %+v", res)
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	if len(cats) != 6 || len(Names(cats)) != 6 {
		t.Fatalf("unexpected default taxonomy: %v", Names(cats))
	}
	for _, c := range cats {
		if c.Name == "" || len(c.Keywords) == 0 {
			t.Fatalf("incomplete category %+v", c)
		}
	}
}
