// Package source lists and loads newsletter messages from a mailbox.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/newsdigest/internal/content"
)

// Source is a mailbox that can be searched and read.
type Source interface {
	Name() string
	// QueryMessages returns ids of messages matching query, newest first,
	// at most max of them.
	QueryMessages(ctx context.Context, query string, max int) ([]string, error)
	GetMessage(ctx context.Context, id string) (content.Message, error)
}

// BuildQuery returns the mailbox search for mail from any of senders
// received after since, e.g. "(from:a OR from:b) after:1700000000".
func BuildQuery(senders []string, since time.Time) string {
	terms := make([]string, 0, len(senders))
	for _, s := range senders {
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, "from:"+s)
		}
	}
	q := "(" + strings.Join(terms, " OR ") + ")"
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}
	return q
}
