package blocks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperifyio/newsdigest/internal/content"
)

const (
	DefaultMaxBlocks        = 100
	DefaultMaxChars         = 1900
	DefaultMaxLinks         = 10
	DefaultLinkDisplayChars = 80

	DefaultLinksHeading     = "Links from Newsletter"
	DefaultTruncationNotice = "Content truncated: this newsletter is longer than a page allows."
)

var (
	blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)
	numberedRe  = regexp.MustCompile(`^\d+\.\s+`)
)

// Options bounds the builder output. Zero fields take the defaults.
type Options struct {
	MaxBlocks        int
	MaxChars         int
	MaxLinks         int
	LinkDisplayChars int
	LinksHeading     string
	TruncationNotice string
}

// DefaultOptions returns the limits of the page destination.
func DefaultOptions() Options {
	return Options{
		MaxBlocks:        DefaultMaxBlocks,
		MaxChars:         DefaultMaxChars,
		MaxLinks:         DefaultMaxLinks,
		LinkDisplayChars: DefaultLinkDisplayChars,
		LinksHeading:     DefaultLinksHeading,
		TruncationNotice: DefaultTruncationNotice,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxBlocks <= 0 {
		o.MaxBlocks = d.MaxBlocks
	}
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = d.MaxLinks
	}
	if o.LinkDisplayChars <= 0 {
		o.LinkDisplayChars = d.LinkDisplayChars
	}
	if o.LinkDisplayChars > o.MaxChars {
		o.LinkDisplayChars = o.MaxChars
	}
	if o.LinksHeading == "" {
		o.LinksHeading = d.LinksHeading
	}
	if o.TruncationNotice == "" {
		o.TruncationNotice = d.TruncationNotice
	}
	return o
}

// Input is what a page is built from. Sections take precedence over Body.
type Input struct {
	Preamble []Block
	Sections []content.Section
	Body     string
	Links    []string
}

// Builder renders Input into at most MaxBlocks blocks whose Text never
// exceeds MaxChars runes.
type Builder struct {
	opts Options
}

func New(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// Options returns the effective limits.
func (b *Builder) Options() Options { return b.opts }

// Build lays out preamble, content and a trailing links section. When the
// result would exceed MaxBlocks, links are dropped first, then content from
// the end, and a truncation notice becomes the last block.
func (b *Builder) Build(in Input) []Block {
	max := b.opts.MaxBlocks
	pre := b.clipAll(in.Preamble)
	var body []Block
	if len(in.Sections) > 0 {
		body = b.fromSections(in.Sections)
	} else {
		body = b.fromText(in.Body)
	}
	links := b.links(in.Links, b.opts.MaxLinks)

	if len(pre)+len(body)+len(links) <= max {
		return concat(pre, body, links)
	}

	notice := Block{Kind: Paragraph, Text: Clip(b.opts.TruncationNotice, b.opts.MaxChars)}
	if len(pre) > max-1 {
		pre = pre[:max-1]
	}
	room := max - 1 - len(pre)
	if len(body) <= room {
		// content fits, keep as many links as leave a meaningful section
		if left := room - len(body); left >= 3 {
			links = b.links(in.Links, left-2)
		} else {
			links = nil
		}
		return concat(pre, body, links, []Block{notice})
	}
	body = body[:room]
	for len(body) > 0 && (body[len(body)-1].Kind.IsHeading() || body[len(body)-1].Kind == Divider) {
		body = body[:len(body)-1]
	}
	return concat(pre, body, []Block{notice})
}

func (b *Builder) fromSections(sections []content.Section) []Block {
	var out []Block
	for _, s := range content.CleanSections(sections) {
		if b.full(out) {
			break
		}
		out = append(out, Block{Kind: Heading3, Text: Clip(s.Name, b.opts.MaxChars)})
		for _, it := range s.Items {
			if b.full(out) {
				break
			}
			kind, text := Paragraph, it.Text
			if rest, ok := strings.CutPrefix(text, "• "); ok {
				kind, text = Bullet, rest
			}
			out = b.appendChunks(out, kind, text, it.URL)
		}
	}
	return out
}

// fromText splits flat text at blank lines and recognises markdown-style
// headings and bullet lines.
func (b *Builder) fromText(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []Block
	for _, para := range blankLineRe.Split(text, -1) {
		if b.full(out) {
			break
		}
		lines := nonEmptyLines(para)
		if len(lines) == 0 {
			continue
		}
		if kind, rest, ok := headingLine(lines[0]); ok {
			out = append(out, Block{Kind: kind, Text: Clip(rest, b.opts.MaxChars)})
			lines = lines[1:]
		}
		if !anyBullet(lines) {
			out = b.appendChunks(out, Paragraph, strings.Join(lines, "\n"), "")
			continue
		}
		for _, line := range lines {
			if b.full(out) {
				break
			}
			if rest, ok := bulletLine(line); ok {
				out = b.appendChunks(out, Bullet, rest, "")
			} else {
				out = b.appendChunks(out, Paragraph, line, "")
			}
		}
	}
	return out
}

// full reports whether content already overflows the page, so further
// blocks would only be cut again.
func (b *Builder) full(out []Block) bool {
	return len(out) > b.opts.MaxBlocks
}

// appendChunks adds text split into blocks, stopping one block past
// MaxBlocks.
func (b *Builder) appendChunks(out []Block, kind Kind, text, url string) []Block {
	limit := b.opts.MaxBlocks + 1 - len(out)
	if limit <= 0 {
		return out
	}
	for i, piece := range splitN(text, b.opts.MaxChars, limit) {
		blk := Block{Kind: kind, Text: piece}
		if i == 0 {
			blk.URL = url
		}
		out = append(out, blk)
	}
	return out
}

// links renders at most n links under a divider and heading.
func (b *Builder) links(urls []string, n int) []Block {
	if len(urls) == 0 || n <= 0 {
		return nil
	}
	if len(urls) > n {
		urls = urls[:n]
	}
	out := []Block{{Kind: Divider}, {Kind: Heading2, Text: b.opts.LinksHeading}}
	for i, u := range urls {
		out = append(out, Block{
			Kind:  Paragraph,
			Label: fmt.Sprintf("[%d] ", i+1),
			Text:  displayURL(u, b.opts.LinkDisplayChars),
			URL:   u,
		})
	}
	return out
}

// displayURL drops the query string and shortens to max runes with "...".
func displayURL(u string, max int) string {
	display, _, _ := strings.Cut(u, "?")
	r := []rune(display)
	if len(r) <= max {
		return display
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func (b *Builder) clipAll(in []Block) []Block {
	out := make([]Block, 0, len(in))
	for _, blk := range in {
		blk.Text = Clip(blk.Text, b.opts.MaxChars)
		out = append(out, blk)
	}
	return out
}

func headingLine(line string) (Kind, string, bool) {
	for _, h := range []struct {
		prefix string
		kind   Kind
	}{{"### ", Heading3}, {"## ", Heading2}, {"# ", Heading1}} {
		if rest, ok := strings.CutPrefix(line, h.prefix); ok && strings.TrimSpace(rest) != "" {
			return h.kind, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func bulletLine(line string) (string, bool) {
	for _, p := range []string{"•", "- ", "* "} {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest), strings.TrimSpace(rest) != ""
		}
	}
	if loc := numberedRe.FindStringIndex(line); loc != nil {
		rest := strings.TrimSpace(line[loc[1]:])
		return rest, rest != ""
	}
	return "", false
}

func anyBullet(lines []string) bool {
	for _, l := range lines {
		if _, ok := bulletLine(l); ok {
			return true
		}
	}
	return false
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func concat(parts ...[]Block) []Block {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]Block, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
