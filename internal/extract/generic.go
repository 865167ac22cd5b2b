package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/newsdigest/internal/content"
)

// mainSelectors are tried in order to locate the content container.
var mainSelectors = []string{
	"main", "article",
	"div.container", "div.content", "div.main",
	"div#content", "div#main", "div#newsletter",
	"div.newsletter", "div.email", "div.body",
}

const headingSelector = "h1, h2, h3, h4"

// Generic finds the main content container of an arbitrary newsletter page
// and splits it into sections at its headings.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (g Generic) Extract(doc *goquery.Document) []content.Section {
	root := findMain(doc)
	if root == nil {
		return nil
	}
	if root.Find(headingSelector).Length() > 0 {
		if secs := content.CleanSections(byHeadings(root)); len(secs) > 0 {
			return secs
		}
	}
	var items []content.Item
	root.Find("p, div").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "div" && hasTag(s, "p, div") {
			return
		}
		if text := textOf(s); runeLen(text) > 20 {
			items = append(items, content.TextItem(text))
		}
	})
	if len(items) == 0 {
		return nil
	}
	return []content.Section{{Name: content.DefaultSectionName, Items: items}}
}

func findMain(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	pageLen := runeLen(doc.Text())
	var best *goquery.Selection
	bestLen := 0
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		n := runeLen(s.Text())
		if n <= 200 || float64(n) >= 0.9*float64(pageLen) {
			return
		}
		if s.Find("h1, h2, h3, p").Length() < 3 {
			return
		}
		if n > bestLen {
			best, bestLen = s, n
		}
	})
	return best
}

// byHeadings builds an "Introduction" section from direct paragraph children
// ahead of the first heading, then one section per heading holding the
// paragraphs and list items among its following siblings.
func byHeadings(root *goquery.Selection) []content.Section {
	var out []content.Section
	var intro []content.Item
	root.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if c.Is(headingSelector) {
			return false
		}
		if goquery.NodeName(c) == "p" {
			if text := textOf(c); text != "" {
				intro = append(intro, content.TextItem(text))
			}
		}
		return true
	})
	if len(intro) > 0 {
		out = append(out, content.Section{Name: "Introduction", Items: intro})
	}

	root.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		sec := content.Section{Name: textOf(h)}
		h.NextUntil(headingSelector).Each(func(_ int, sib *goquery.Selection) {
			switch goquery.NodeName(sib) {
			case "p":
				if text := textOf(sib); text != "" {
					sec.Items = append(sec.Items, content.TextItem(text))
				}
			case "ul":
				sib.Find("li").Each(func(_ int, li *goquery.Selection) {
					if text := textOf(li); text != "" {
						sec.Items = append(sec.Items, content.TextItem("• "+text))
					}
				})
			}
		})
		if len(sec.Items) > 0 {
			out = append(out, sec)
		}
	})
	return out
}
