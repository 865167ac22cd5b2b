package source

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"google.golang.org/api/gmail/v1"
)

// decodeData decodes a base64url part body. Bytes that are not valid UTF-8
// are read as ISO-8859-1, which cannot fail.
func decodeData(data string) (string, bool) {
	if data == "" {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", false
	}
	if utf8.Valid(raw) {
		return string(raw), true
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(s), true
}

func partBody(p *gmail.MessagePart) (string, bool) {
	if p == nil || p.Body == nil {
		return "", false
	}
	return decodeData(p.Body.Data)
}

// bodies walks the payload and returns the first HTML part and the first
// plain-text part, searching direct children before nested ones.
func bodies(payload *gmail.MessagePart) (htmlBody, plainBody string) {
	if payload == nil {
		return "", ""
	}
	if len(payload.Parts) == 0 {
		s, ok := partBody(payload)
		if !ok {
			return "", ""
		}
		if strings.EqualFold(payload.MimeType, "text/html") {
			return s, ""
		}
		return "", s
	}
	var queue []*gmail.MessagePart
	queue = append(queue, payload.Parts...)
	for len(queue) > 0 && (htmlBody == "" || plainBody == "") {
		p := queue[0]
		queue = queue[1:]
		switch strings.ToLower(p.MimeType) {
		case "text/html":
			if htmlBody == "" {
				htmlBody, _ = partBody(p)
			}
		case "text/plain":
			if plainBody == "" {
				plainBody, _ = partBody(p)
			}
		}
		queue = append(queue, p.Parts...)
	}
	return htmlBody, plainBody
}

func header(headers []*gmail.MessagePartHeader, name, def string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return def
}
