package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/newsdigest/internal/content"
)

// DefaultVendorSignature marks pages built with the table-and-icon layout
// the Vendor strategy understands.
const DefaultVendorSignature = "TLDR"

var (
	readTimeRe = regexp.MustCompile(`\s*\(([^()]*\bread)\)`)

	cellSectionRules = []struct {
		re   *regexp.Regexp
		name string
	}{
		{regexp.MustCompile(`(?i)vulnerab|attack`), "Attacks & Vulnerabilities"},
		{regexp.MustCompile(`(?i)strateg|tactic`), "Strategies & Tactics"},
		{regexp.MustCompile(`(?i)launch|tool`), "Launches & Tools"},
		{regexp.MustCompile(`(?i)quick|link`), "Quick Links"},
		{regexp.MustCompile(`(?i)misc`), "Miscellaneous"},
	}
)

// Vendor extracts pages that mark each section with a large icon span
// followed by a heading, and list articles as a bold linked title plus a
// description span inside div.text-block containers.
type Vendor struct {
	// Signature must appear in the page title or body text.
	Signature string
}

func (Vendor) Name() string { return "vendor" }

func (v Vendor) Extract(doc *goquery.Document) []content.Section {
	if !v.matches(doc) {
		return nil
	}
	order := newDocOrder(doc)
	if secs := content.CleanSections(v.byIcons(doc, order)); len(secs) > 0 {
		return secs
	}
	if secs := content.CleanSections(v.byContainerCells(doc, order)); len(secs) > 0 {
		return secs
	}
	return v.byTextBlocks(doc)
}

func (v Vendor) matches(doc *goquery.Document) bool {
	sig := v.Signature
	if sig == "" {
		sig = DefaultVendorSignature
	}
	if strings.Contains(doc.Find("title").First().Text(), sig) {
		return true
	}
	return strings.Contains(doc.Find("body").Text(), sig)
}

// byIcons splits the page at headings that follow an icon span.
func (v Vendor) byIcons(doc *goquery.Document, order docOrder) []content.Section {
	headings := doc.Find("h1, h2")
	var headers []*goquery.Selection
	seen := map[int]bool{}
	doc.Find("span[style]").Each(func(_ int, icon *goquery.Selection) {
		if !strings.Contains(icon.AttrOr("style", ""), "font-size: 36px") {
			return
		}
		at := order.pos(icon)
		headings.EachWithBreak(func(_ int, h *goquery.Selection) bool {
			p := order.pos(h)
			if p <= at {
				return true
			}
			if !seen[p] {
				seen[p] = true
				headers = append(headers, h)
			}
			return false
		})
	})
	if len(headers) == 0 {
		return nil
	}

	blocks := doc.Find("div.text-block")
	var out []content.Section
	for i, h := range headers {
		start := order.pos(h)
		end := -1
		if i+1 < len(headers) {
			end = order.pos(headers[i+1])
		}
		var items []content.Item
		blocks.Each(func(_ int, b *goquery.Selection) {
			p := order.pos(b)
			if p <= start || (end >= 0 && p >= end) {
				return
			}
			if b.ParentsFiltered("div.text-block").Length() > 0 || runeLen(textOf(b)) <= 50 {
				return
			}
			if arts := articlesIn(b, order); len(arts) > 0 {
				items = append(items, arts...)
				return
			}
			items = append(items, longTextIn(b)...)
		})
		out = append(out, content.Section{Name: textOf(h), Items: items})
	}
	return out
}

// articlesIn finds linked bold titles and pairs each with the description
// span that follows it.
func articlesIn(block *goquery.Selection, order docOrder) []content.Item {
	descs := block.Find("span[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style := s.AttrOr("style", "")
		return strings.Contains(style, "font-family") && strings.Contains(style, "Helvetica")
	})
	var out []content.Item
	block.Find("a").Each(func(_ int, a *goquery.Selection) {
		strong := a.Find("strong").First()
		if strong.Length() == 0 {
			return
		}
		title := formatTitle(textOf(strong))
		at := order.pos(a)
		var desc string
		descs.EachWithBreak(func(_ int, d *goquery.Selection) bool {
			if order.pos(d) > at && d.ParentsFiltered("a").Length() == 0 {
				desc = textOf(d)
				return false
			}
			return true
		})
		if desc == "" && descs.Length() > 0 {
			desc = textOf(descs.First())
		}
		if title == "" || desc == "" {
			return
		}
		out = append(out, articleItem(title, desc, a.AttrOr("href", "")))
	})
	return out
}

// longTextIn collects substantial paragraph and span text, keeping the
// enclosing link as the item URL.
func longTextIn(block *goquery.Selection) []content.Item {
	var out []content.Item
	seen := map[string]bool{}
	block.Find("p, span").Each(func(_ int, s *goquery.Selection) {
		text := textOf(s)
		if runeLen(text) <= 50 || seen[text] {
			return
		}
		seen[text] = true
		it := content.Item{Text: text}
		if href := s.Closest("a").AttrOr("href", ""); content.IsHTTPURL(href) {
			it.URL = href
			it.Title = shorten(text, 50)
		}
		out = append(out, it)
	})
	return out
}

// byContainerCells scans td.container cells and groups their articles by
// keyword rules, falling back to the nearest preceding heading.
func (v Vendor) byContainerCells(doc *goquery.Document, order docOrder) []content.Section {
	headings := doc.Find("h1, h2, h3")
	var names []string
	grouped := map[string][]content.Item{}
	doc.Find("td.container").Each(func(_ int, cell *goquery.Selection) {
		if runeLen(textOf(cell)) < 100 {
			return
		}
		block := cell.Find("div.text-block").First()
		if block.Length() == 0 {
			return
		}
		name := content.DefaultSectionName
		at := order.pos(cell)
		headings.Each(func(_ int, h *goquery.Selection) {
			if order.pos(h) < at {
				name = textOf(h)
			}
		})
		blockText := block.Text()
		for _, rule := range cellSectionRules {
			if rule.re.MatchString(blockText) {
				name = rule.name
				break
			}
		}

		var items []content.Item
		desc := block.Find("span[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			style := s.AttrOr("style", "")
			return strings.Contains(style, "font-family") && strings.Contains(style, "Helvetica")
		}).First()
		block.Find("a").Each(func(_ int, a *goquery.Selection) {
			strong := a.Find("strong").First()
			raw := textOf(strong)
			if strong.Length() == 0 || !strings.Contains(raw, "(") || !strings.Contains(raw, ")") {
				return
			}
			d := textOf(desc)
			if runeLen(d) <= 30 {
				return
			}
			items = append(items, articleItem(formatTitle(raw), d, a.AttrOr("href", "")))
		})
		if len(items) == 0 {
			block.Find("p, span").Each(func(_ int, s *goquery.Selection) {
				if goquery.NodeName(s.Parent()) == "a" {
					return
				}
				if text := textOf(s); runeLen(text) > 50 {
					items = append(items, content.TextItem(text))
				}
			})
		}
		if len(items) == 0 {
			return
		}
		if _, ok := grouped[name]; !ok {
			names = append(names, name)
		}
		grouped[name] = append(grouped[name], items...)
	})
	out := make([]content.Section, 0, len(names))
	for _, n := range names {
		out = append(out, content.Section{Name: n, Items: grouped[n]})
	}
	return out
}

// byTextBlocks reads every substantial div.text-block and takes the text
// around each bold link as its description.
func (v Vendor) byTextBlocks(doc *goquery.Document) []content.Section {
	var items []content.Item
	doc.Find("div.text-block").Each(func(_ int, block *goquery.Selection) {
		if runeLen(textOf(block)) < 100 {
			return
		}
		block.Find("a strong").Each(func(_ int, strong *goquery.Selection) {
			title := textOf(strong)
			container := strong.Parent().Parent()
			clone := container.Clone()
			clone.Find("strong, a").Remove()
			desc := textOf(clone)
			if title == "" || runeLen(desc) <= 30 {
				return
			}
			items = append(items, articleItem(formatTitle(title), desc, strong.Closest("a").AttrOr("href", "")))
		})
	})
	if len(items) == 0 {
		return nil
	}
	return []content.Section{{Name: content.DefaultSectionName, Items: items}}
}

func articleItem(title, desc, href string) content.Item {
	it := content.Item{Text: "**" + title + "**\n\n" + squash(desc), Title: title}
	if content.IsHTTPURL(href) {
		it.URL = href
	}
	return it
}

// formatTitle rewrites a trailing "(N min read)" annotation as "[N min read]".
func formatTitle(title string) string {
	return strings.TrimSpace(readTimeRe.ReplaceAllString(title, " [$1]"))
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
