package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// squash trims s and collapses every whitespace run to a single space.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textOf returns the squashed text content of the selection.
func textOf(s *goquery.Selection) string {
	return squash(s.Text())
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// docOrder numbers every node of the tree in document order so positions of
// unrelated elements can be compared.
type docOrder map[*html.Node]int

func newDocOrder(doc *goquery.Document) docOrder {
	order := make(docOrder)
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		order[n] = i
		i++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return order
}

func (o docOrder) pos(s *goquery.Selection) int {
	if s.Length() == 0 {
		return -1
	}
	return o[s.Get(0)]
}

// hasTag reports whether the selection has a descendant matching selector.
func hasTag(s *goquery.Selection, selector string) bool {
	return s.Find(selector).Length() > 0
}
