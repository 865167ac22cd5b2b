package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/newsdigest/internal/content"
)

// Basic is the last-resort strategy. It collects paragraph text, else leaf
// div text, else leaf table-cell text, into a single section named after the
// page title.
type Basic struct{}

func (Basic) Name() string { return "basic" }

func (Basic) Extract(doc *goquery.Document) []content.Section {
	name := textOf(doc.Find("title").First())
	if name == "" {
		name = content.DefaultSectionName
	}
	items := substantial(doc.Find("p"), "")
	if len(items) == 0 {
		items = substantial(doc.Find("div"), "div")
	}
	if len(items) == 0 {
		items = substantial(doc.Find("td"), "div, p, td")
	}
	return []content.Section{{Name: name, Items: items}}
}

// substantial returns the text of each element longer than 20 characters,
// skipping elements that contain nested matches of skipIfHas.
func substantial(sel *goquery.Selection, skipIfHas string) []content.Item {
	var out []content.Item
	sel.Each(func(_ int, s *goquery.Selection) {
		if skipIfHas != "" && hasTag(s, skipIfHas) {
			return
		}
		if text := textOf(s); runeLen(text) > 20 {
			out = append(out, content.TextItem(text))
		}
	})
	return out
}
