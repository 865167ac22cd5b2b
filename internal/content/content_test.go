package content

import "testing"

func TestCleanSections_DropsEmptyAndFixesNames(t *testing.T) {
	in := []Section{
		{Name: "  ", Items: []Item{{Text: "  hello  "}, {Text: "   "}}},
		{Name: "Empty", Items: []Item{{Text: ""}}},
		{Name: "Links", Items: []Item{{Text: "a", URL: "ftp://x.test/a"}, {Text: "b", URL: "https://x.test/b"}}},
	}
	out := CleanSections(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(out), out)
	}
	if out[0].Name != DefaultSectionName {
		t.Fatalf("expected default name, got %q", out[0].Name)
	}
	if len(out[0].Items) != 1 || out[0].Items[0].Text != "hello" {
		t.Fatalf("unexpected items: %+v", out[0].Items)
	}
	if out[1].Items[0].URL != "" {
		t.Fatalf("non-http URL should be dropped, got %q", out[1].Items[0].URL)
	}
	if out[1].Items[1].URL != "https://x.test/b" {
		t.Fatalf("http URL should be kept, got %q", out[1].Items[1].URL)
	}
	if in[0].Name != "  " {
		t.Fatalf("input must not be modified")
	}
}

func TestAppendUnique_PreservesOrder(t *testing.T) {
	got := AppendUnique([]string{"a", "b"}, "b", "c", "a", "d", "c")
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestIsHTTPURL(t *testing.T) {
	cases := map[string]bool{
		"https://a.test/x": true,
		"http://a.test":    true,
		"/relative":        false,
		"mailto:x@a.test":  false,
		"https://":         false,
		"":                 false,
	}
	for in, want := range cases {
		if got := IsHTTPURL(in); got != want {
			t.Fatalf("IsHTTPURL(%q)=%v want %v", in, got, want)
		}
	}
}
