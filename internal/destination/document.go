// Package destination writes composed newsletter pages to a document store.
package destination

import (
	"context"
	"errors"
	"time"

	"github.com/hyperifyio/newsdigest/internal/blocks"
)

// ErrRejected marks a write the store refused because of the document's
// shape (unknown property, size limit, validation). A reduced variant of the
// same document may still succeed.
var ErrRejected = errors.New("document rejected by destination")

// PropertyType is a destination column type.
type PropertyType string

const (
	Title    PropertyType = "title"
	URL      PropertyType = "url"
	Select   PropertyType = "select"
	Date     PropertyType = "date"
	RichText PropertyType = "rich_text"
	Number   PropertyType = "number"
)

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	switch t {
	case Title, URL, Select, Date, RichText, Number:
		return true
	}
	return false
}

// Property is a typed value. Text carries title, url, select and rich_text
// values; Number and Date carry the others.
type Property struct {
	Type   PropertyType
	Text   string
	Number float64
	Date   time.Time
}

// Document is one page: typed properties plus ordered content blocks.
type Document struct {
	Properties map[string]Property
	Blocks     []blocks.Block
}

// Title returns the value of the first title property, if any.
func (d Document) Title() string {
	for _, p := range d.Properties {
		if p.Type == Title {
			return p.Text
		}
	}
	return ""
}

// Writer creates a page and returns a reference to it.
type Writer interface {
	Create(ctx context.Context, doc Document) (string, error)
}
