// Package blocks turns extracted sections or flat text into a bounded list of
// destination content blocks.
package blocks

import (
	"strings"
	"unicode/utf8"
)

// Kind names a block type. Values match the destination API type names.
type Kind string

const (
	Heading1  Kind = "heading_1"
	Heading2  Kind = "heading_2"
	Heading3  Kind = "heading_3"
	Paragraph Kind = "paragraph"
	Bullet    Kind = "bulleted_list_item"
	Divider   Kind = "divider"
)

// IsHeading reports whether k is one of the heading kinds.
func (k Kind) IsHeading() bool {
	return k == Heading1 || k == Heading2 || k == Heading3
}

// Block is one unit of page content. URL makes Text a link. Label is a short
// bold prefix rendered before Text, such as "[3] ".
type Block struct {
	Kind  Kind
	Text  string
	URL   string
	Label string
}

// Details describes the message a page is built for.
type Details struct {
	From     string
	Date     string
	Category string
	Summary  string
}

// DetailsPreamble renders the page header that precedes the content.
func DetailsPreamble(d Details) []Block {
	out := []Block{{Kind: Heading2, Text: "Newsletter Details"}}
	if d.From != "" {
		out = append(out, Block{Kind: Paragraph, Label: "From: ", Text: d.From})
	}
	if d.Date != "" {
		out = append(out, Block{Kind: Paragraph, Label: "Date: ", Text: d.Date})
	}
	if d.Category != "" {
		out = append(out, Block{Kind: Paragraph, Label: "Category: ", Text: d.Category})
	}
	if d.Summary != "" {
		out = append(out, Block{Kind: Paragraph, Label: "Summary: ", Text: d.Summary})
	}
	return append(out, Block{Kind: Divider}, Block{Kind: Heading2, Text: "Newsletter Content"})
}

// MinimalPreamble is the short header used by the reduced page variant.
func MinimalPreamble(from string) []Block {
	out := []Block{{Kind: Heading2, Text: "Newsletter Content"}}
	if from != "" {
		out = append(out, Block{Kind: Paragraph, Label: "From: ", Text: from})
	}
	return append(out, Block{Kind: Divider})
}

// SenderName strips the address part from a "Name <addr>" header value.
func SenderName(sender string) string {
	name, _, _ := strings.Cut(sender, "<")
	if name = strings.Trim(strings.TrimSpace(name), `"`); name != "" {
		return name
	}
	return strings.Trim(strings.TrimSpace(sender), "<>")
}

// Clip cuts s to at most max runes.
func Clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
