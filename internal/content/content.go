package content

import (
	"net/url"
	"strings"
	"time"
)

// DefaultSectionName is used when no heading could be detected for a group of items.
const DefaultSectionName = "Newsletter Content"

// Message is the transient per-run view of one retrieved newsletter email.
type Message struct {
	ID         string
	Subject    string
	Sender     string
	ReceivedAt time.Time
	HTML       string
	Body       string
	Links      []string

	// Enrichment fields; set after web extraction and classification.
	FromWeb  bool
	WebURL   string
	Sections []Section
	Summary  string
}

// Section is a named, ordered group of extracted content items.
type Section struct {
	Name  string
	Items []Item
}

// Item is one unit of extracted text. Title and URL are optional; when URL
// is set it is an absolute http(s) URL.
type Item struct {
	Text  string
	Title string
	URL   string
}

// TextItem builds a plain text item.
func TextItem(text string) Item { return Item{Text: text} }

// HasLink reports whether the item carries an outbound article URL.
func (it Item) HasLink() bool { return it.URL != "" }

// CleanSections enforces the section and item invariants: trimmed non-empty
// text, absolute http(s) URLs only, non-empty section names, and no empty
// sections. The input slice is not modified.
func CleanSections(in []Section) []Section {
	out := make([]Section, 0, len(in))
	for _, s := range in {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = DefaultSectionName
		}
		items := make([]Item, 0, len(s.Items))
		for _, it := range s.Items {
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			u := strings.TrimSpace(it.URL)
			if !IsHTTPURL(u) {
				u = ""
			}
			items = append(items, Item{Text: text, Title: strings.TrimSpace(it.Title), URL: u})
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, Section{Name: name, Items: items})
	}
	return out
}

// SectionsText flattens sections into plain text: the section name followed
// by its items, blank-line separated.
func SectionsText(sections []Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Name)
		for _, it := range s.Items {
			b.WriteString("\n\n")
			b.WriteString(it.Text)
		}
	}
	return b.String()
}

// CountItems returns the total number of items across sections.
func CountItems(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Items)
	}
	return n
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// AppendUnique appends each value of add to dst unless already present,
// preserving first-seen order.
func AppendUnique(dst []string, add ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(add))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range add {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
