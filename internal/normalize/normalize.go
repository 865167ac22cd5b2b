// Package normalize converts raw newsletter HTML into readable, section-aware
// plain text and finds the links the rest of the pipeline needs.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var (
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	styleRe   = regexp.MustCompile(`(?is)<style(?:\s[^>]*)?>.*?</style\s*>`)
	scriptRe  = regexp.MustCompile(`(?is)<script(?:\s[^>]*)?>.*?</script\s*>`)

	blockOpenRe  = regexp.MustCompile(`(?i)<(?:div|p)(?:\s[^>]*)?/?>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(?:div|p)\s*>`)
	breakRe      = regexp.MustCompile(`(?i)<(?:br|hr)(?:\s[^>]*)?/?>`)
	listItemRe   = regexp.MustCompile(`(?is)<li(?:\s[^>]*)?>(.*?)</li\s*>`)
	openItemRe   = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
	headingRes   = buildHeadingRes()

	footnoteRe   = regexp.MustCompile(`\[(\d+)\]`)
	multiSpaceRe = regexp.MustCompile(` {2,}`)

	// Newsletter section labels that templates often render as styled text
	// rather than heading tags.
	sectionHeaderRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join([]string{
		`WHAT['’]S NEW`,
		`IN THE NEWS`,
		`RELEASES`,
		`TOOLS`,
		`RESOURCES`,
		`ATTACKS[\s&]*VULNERABILITIES`,
		`STRATEGIES[\s&]*TACTICS`,
		`LAUNCHES`,
		`UPCOMING EVENTS`,
		`FUNDING`,
		`T\s*L\s*D\s*R`,
	}, "|") + `)\b`)
)

func buildHeadingRes() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, 6)
	for i := 1; i <= 6; i++ {
		n := strconv.Itoa(i)
		out = append(out, regexp.MustCompile(`(?is)<h`+n+`(?:\s[^>]*)?>(.*?)</h`+n+`\s*>`))
	}
	return out
}

// Normalize converts newsletter HTML into structured plain text. Structural
// tags become line breaks, headings and known section labels are isolated on
// their own paragraph, list items get a bullet prefix, and layout padding
// characters are removed. The result never contains '<' or '>' and is a
// fixed point for markup-free input.
func Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	// style/script must go before any tag stripping or their bodies leak as text
	s := commentRe.ReplaceAllString(input, "")
	s = styleRe.ReplaceAllString(s, "")
	s = scriptRe.ReplaceAllString(s, "")

	s = blockOpenRe.ReplaceAllString(s, "\n")
	s = blockCloseRe.ReplaceAllString(s, "\n")
	s = breakRe.ReplaceAllString(s, "\n")
	for _, re := range headingRes {
		s = re.ReplaceAllString(s, "\n\n$1\n")
	}
	s = listItemRe.ReplaceAllString(s, "\n• $1")
	s = openItemRe.ReplaceAllString(s, "\n• ")

	s = anyTagRe.ReplaceAllString(s, " ")
	s = unescapeAll(s)
	s = stripInvisible(s)

	s = anchorSections(s)
	s = footnoteRe.ReplaceAllString(s, "[^$1]")
	return collapseWhitespace(s)
}

// maxUnescapePasses bounds entity decoding of multiply-escaped text.
const maxUnescapePasses = 8

// unescapeAll decodes entities until the text stops changing so that
// double-escaped sources such as "&amp;lt;" end up fully decoded.
func unescapeAll(s string) string {
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// anchorSections puts known section labels on their own paragraph, leaving
// labels that are part of a URL or hostname alone.
func anchorSections(s string) string {
	matches := sectionHeaderRe.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	urls := linkRe.FindAllStringIndex(s, -1)
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if insideSpan(m, urls) || glued(s, m[0], m[1]) {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString("\n\n")
		b.WriteString(s[m[0]:m[1]])
		b.WriteString("\n\n")
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func insideSpan(m []int, spans [][]int) bool {
	for _, sp := range spans {
		if m[0] >= sp[0] && m[1] <= sp[1] {
			return true
		}
	}
	return false
}

// glued reports whether s[start:end] is a hostname or path component, for
// example "tools.example.com" or "/resources/".
func glued(s string, start, end int) bool {
	if start > 0 {
		switch s[start-1] {
		case '.', '/', '@', '-', '_':
			return true
		}
	}
	if end < len(s) {
		switch s[end] {
		case '/', '-', '_', '@':
			return true
		case '.':
			return end+1 < len(s) && isAlnum(s[end+1])
		}
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// stripInvisible removes the zero-width and padding characters newsletter
// templates use for layout. Space-like members turn into a plain space so
// words do not run together. Decoded angle brackets are swapped for their
// typographic lookalikes.
func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\u00A0', r >= '\u2000' && r <= '\u200A', r == '\u202F', r == '\u205F':
			return ' '
		case IsInvisible(r):
			return -1
		case r == '<':
			return '\u2039'
		case r == '>':
			return '\u203A'
		case r == '\t':
			return ' '
		}
		return r
	}, s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	pendingBlank := false
	for _, line := range lines {
		line = strings.TrimSpace(multiSpaceRe.ReplaceAllString(line, " "))
		if line == "" {
			if len(out) > 0 {
				pendingBlank = true
			}
			continue
		}
		if pendingBlank {
			out = append(out, "")
			pendingBlank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// IsInvisible reports whether r belongs to the set of layout characters that
// Normalize removes.
func IsInvisible(r rune) bool {
	switch {
	case r == '\u00A0', r == '\uFEFF':
		return true
	case r >= '\u2000' && r <= '\u200F':
		return true
	case r >= '\u2028' && r <= '\u202F':
		return true
	case r >= '\u205F' && r <= '\u206F':
		return true
	}
	return false
}
