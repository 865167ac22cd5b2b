package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperifyio/newsdigest/internal/blocks"
	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/destination"
)

const mailLinkPrefix = "https://mail.google.com/mail/u/0/#inbox/"

// coreProperties survive into the minimal page variant.
var coreProperties = map[string]bool{
	"Name":        true,
	"Source":      true,
	"Category":    true,
	"Date":        true,
	"Description": true,
}

// propertyValue is the raw value of one known column.
type propertyValue struct {
	text   string
	number *float64
	date   time.Time
}

func (a *App) values(msg content.Message, res classify.Result) map[string]propertyValue {
	conf := res.Confidence
	contentLink := msg.WebURL
	if contentLink == "" && len(msg.Links) > 0 {
		contentLink = msg.Links[0]
	}
	return map[string]propertyValue{
		"Name":             {text: msg.Subject},
		"Source":           {text: mailLinkPrefix + msg.ID},
		"Category":         {text: res.Category},
		"Date":             {date: msg.ReceivedAt},
		"Description":      {text: preview(msg.Body, a.cfg.DescriptionMax)},
		"Sender":           {text: msg.Sender},
		"Confidence":       {number: &conf},
		"Other Categories": {text: otherCategories(res)},
		"Content Link":     {text: contentLink},
		"Summary":          {text: msg.Summary},
	}
}

// properties maps known values onto the configured columns. The title
// column always carries the subject; columns whose type cannot hold the
// value are left out.
func (a *App) properties(msg content.Message, res classify.Result, minimal bool) map[string]destination.Property {
	vals := a.values(msg, res)
	out := make(map[string]destination.Property, len(a.cfg.Properties))
	for name, typ := range a.cfg.Properties {
		if minimal && !coreProperties[name] && typ != destination.Title {
			continue
		}
		v, known := vals[name]
		if typ == destination.Title {
			v, known = vals["Name"], true
		}
		if !known {
			continue
		}
		p := destination.Property{Type: typ}
		switch typ {
		case destination.Number:
			if v.number == nil {
				continue
			}
			p.Number = *v.number
		case destination.Date:
			if v.date.IsZero() {
				continue
			}
			p.Date = v.date
		default:
			if v.number != nil {
				p.Text = fmt.Sprintf("%.2f", *v.number)
			} else if !v.date.IsZero() {
				p.Text = v.date.Format(time.RFC3339)
			} else {
				p.Text = v.text
			}
			if typ == destination.URL && p.Text != "" && !content.IsHTTPURL(p.Text) {
				continue
			}
		}
		out[name] = p
	}
	return out
}

func (a *App) fullDocument(msg content.Message, res classify.Result) destination.Document {
	details := blocks.Details{
		From:     blocks.SenderName(msg.Sender),
		Category: res.Category,
		Summary:  msg.Summary,
	}
	if !msg.ReceivedAt.IsZero() {
		details.Date = msg.ReceivedAt.Format("2006-01-02 15:04")
	}
	return destination.Document{
		Properties: a.properties(msg, res, false),
		Blocks: a.full.Build(blocks.Input{
			Preamble: blocks.DetailsPreamble(details),
			Sections: msg.Sections,
			Body:     msg.Body,
			Links:    msg.Links,
		}),
	}
}

// minimalDocument is the reduced variant: core columns and the flat body.
func (a *App) minimalDocument(msg content.Message, res classify.Result) destination.Document {
	return destination.Document{
		Properties: a.properties(msg, res, true),
		Blocks: a.minimal.Build(blocks.Input{
			Preamble: blocks.MinimalPreamble(blocks.SenderName(msg.Sender)),
			Body:     msg.Body,
			Links:    msg.Links,
		}),
	}
}

func preview(body string, max int) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	return blocks.Clip(body, max) + "..."
}

// otherCategories lists the runner-up scores, highest first.
func otherCategories(res classify.Result) string {
	type scored struct {
		name  string
		score float64
	}
	var rest []scored
	for name, s := range res.Scores {
		if name != res.Category && s > 0 {
			rest = append(rest, scored{name, s})
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].score != rest[j].score {
			return rest[i].score > rest[j].score
		}
		return rest[i].name < rest[j].name
	})
	parts := make([]string, 0, len(rest))
	for _, r := range rest {
		parts = append(parts, fmt.Sprintf("%s: %.2f", r.name, r.score))
	}
	return strings.Join(parts, ", ")
}
