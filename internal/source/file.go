package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/normalize"
)

// FileMessage is one entry of a FileSource JSON array.
type FileMessage struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Sender  string    `json:"sender"`
	Date    time.Time `json:"date"`
	HTML    string    `json:"html"`
	Body    string    `json:"body"`
}

// FileSource serves messages from a local JSON file for offline runs.
// Queries understand from: terms (substring match on the sender) and after:.
type FileSource struct {
	Path string
}

var (
	fromTermRe  = regexp.MustCompile(`from:(\S+?)\)?(?:\s|$)`)
	afterTermRe = regexp.MustCompile(`after:(\d+)`)
)

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) load() ([]FileMessage, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("file source path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []FileMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return raw, nil
}

func (f *FileSource) QueryMessages(_ context.Context, query string, max int) ([]string, error) {
	raw, err := f.load()
	if err != nil {
		return nil, err
	}
	var senders []string
	for _, m := range fromTermRe.FindAllStringSubmatch(query, -1) {
		senders = append(senders, strings.ToLower(m[1]))
	}
	var after time.Time
	if m := afterTermRe.FindStringSubmatch(query); m != nil {
		sec, _ := strconv.ParseInt(m[1], 10, 64)
		after = time.Unix(sec, 0)
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Date.After(raw[j].Date) })
	var ids []string
	for _, m := range raw {
		if m.ID == "" || (!after.IsZero() && !m.Date.After(after)) {
			continue
		}
		if len(senders) > 0 && !matchesAny(strings.ToLower(m.Sender), senders) {
			continue
		}
		ids = append(ids, m.ID)
		if max > 0 && len(ids) >= max {
			break
		}
	}
	return ids, nil
}

func matchesAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (f *FileSource) GetMessage(_ context.Context, id string) (content.Message, error) {
	raw, err := f.load()
	if err != nil {
		return content.Message{}, err
	}
	for _, m := range raw {
		if m.ID != id {
			continue
		}
		msg := content.Message{ID: m.ID, Subject: m.Subject, Sender: m.Sender, ReceivedAt: m.Date, HTML: m.HTML, Body: m.Body}
		if m.HTML != "" {
			msg.Body = normalize.Normalize(m.HTML)
			msg.Links = normalize.ExtractLinks(m.HTML)
		}
		if len(msg.Links) == 0 {
			msg.Links = normalize.ExtractLinks(msg.Body)
		}
		return msg, nil
	}
	return content.Message{}, fmt.Errorf("message %s not found", id)
}
