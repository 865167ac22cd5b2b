package blocks

import (
	"strings"
	"unicode"
)

// SplitText breaks text into chunks of at most max runes. Each cut is made
// after the last ". " inside the window, else at the last space, else hard at
// max. Chunks are trimmed and never empty.
func SplitText(text string, max int) []string {
	return splitN(text, max, -1)
}

// splitN is SplitText stopping after n chunks; n < 0 means no limit.
func splitN(text string, max, n int) []string {
	text = strings.TrimSpace(text)
	if text == "" || n == 0 {
		return nil
	}
	if max <= 0 {
		return []string{text}
	}
	var out []string
	r := []rune(text)
	start := 0
	for len(r)-start > max {
		if n > 0 && len(out) >= n {
			return out
		}
		w := r[start : start+max]
		cut := sentenceCut(w)
		if cut <= 0 {
			cut = spaceCut(w)
		}
		if cut <= 0 {
			cut = max
		}
		if piece := strings.TrimSpace(string(w[:cut])); piece != "" {
			out = append(out, piece)
		}
		start += cut
		for start < len(r) && unicode.IsSpace(r[start]) {
			start++
		}
	}
	if n > 0 && len(out) >= n {
		return out
	}
	if piece := strings.TrimSpace(string(r[start:])); piece != "" {
		out = append(out, piece)
	}
	return out
}

// sentenceCut returns the index just past the last period followed by a
// space, or 0.
func sentenceCut(w []rune) int {
	for i := len(w) - 2; i >= 0; i-- {
		if w[i] == '.' && w[i+1] == ' ' {
			return i + 1
		}
	}
	return 0
}

func spaceCut(w []rune) int {
	for i := len(w) - 1; i > 0; i-- {
		if w[i] == ' ' || w[i] == '\n' {
			return i
		}
	}
	return 0
}
