package normalize

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var linkRe = regexp.MustCompile(`https?://[^\s<>"']+|www\.[^\s<>"']+`)

// DefaultViewOnlinePatterns lists "view in browser" link shapes in priority
// order: generic wording first, sender-specific domains last. Each pattern
// captures the URL in group 1.
var DefaultViewOnlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)href="(https?://[^"]*(?:view|browser)[^"]*(?:online|web|browser)[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://[^"]*(?:web|browser)[^"]*(?:version|view)[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://(?:view|online|newsletter)[^"]*\.[a-z]+/[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://[^"]*(?:campaign-archive|mailchi\.mp)[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://tracking\.tldrnewsletter\.com[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://[^"]*tldrnewsletter\.com[^"]*)"`),
	regexp.MustCompile(`(?i)href="(https?://[^"]*a\.tldr[^"]*)"`),
}

// ExtractLinks returns the URLs found in text in first-seen order without
// duplicates. HTML-escaped ampersands are unescaped and trailing sentence
// punctuation is trimmed.
func ExtractLinks(text string) []string {
	matches := linkRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		u := trimLinkTail(strings.ReplaceAll(m, "&amp;", "&"))
		if u == "" || u == "www." {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func trimLinkTail(u string) string {
	for u != "" {
		trim := false
		switch u[len(u)-1] {
		case '.', ',', ';', ':', '!', '?', '*':
			trim = true
		case ')':
			trim = strings.Count(u, "(") < strings.Count(u, ")")
		case ']':
			trim = strings.Count(u, "[") < strings.Count(u, "]")
		}
		if !trim {
			return u
		}
		u = u[:len(u)-1]
	}
	return u
}

// FindCanonicalWebLink scans raw newsletter HTML for its "view online" URL
// using DefaultViewOnlinePatterns.
func FindCanonicalWebLink(rawHTML string) (string, bool) {
	return FindCanonicalWebLinkWith(rawHTML, DefaultViewOnlinePatterns)
}

// FindCanonicalWebLinkWith returns the first match of the first pattern that
// matches anywhere in rawHTML. Patterns must capture the URL in group 1.
func FindCanonicalWebLinkWith(rawHTML string, patterns []*regexp.Regexp) (string, bool) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", false
	}
	for _, re := range patterns {
		m := re.FindStringSubmatch(rawHTML)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		u := strings.ReplaceAll(m[1], "&amp;", "&")
		log.Debug().Str("url", u).Str("pattern", re.String()).Msg("found view-online link")
		return u, true
	}
	return "", false
}

// CompilePatterns compiles extra view-online patterns, appending them after
// the defaults. Invalid expressions are skipped and reported in the error.
func CompilePatterns(extra []string) ([]*regexp.Regexp, error) {
	out := append([]*regexp.Regexp{}, DefaultViewOnlinePatterns...)
	var firstErr error
	for _, p := range extra {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if re.NumSubexp() < 1 {
			continue
		}
		out = append(out, re)
	}
	return out, firstErr
}
