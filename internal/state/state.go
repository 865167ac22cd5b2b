// Package state remembers which messages were already written and when the
// mailbox was last checked.
package state

import (
	"context"
	"time"
)

// DefaultMaxIDs caps how many processed ids are kept.
const DefaultMaxIDs = 1000

// Processed is an insertion-ordered set of message ids that keeps only the
// most recent Max entries.
type Processed struct {
	Max       int
	LastCheck time.Time

	ids []string
	set map[string]struct{}
}

// NewProcessed returns an empty set holding at most max ids.
func NewProcessed(max int) *Processed {
	if max <= 0 {
		max = DefaultMaxIDs
	}
	return &Processed{Max: max, set: map[string]struct{}{}}
}

func (p *Processed) Has(id string) bool {
	_, ok := p.set[id]
	return ok
}

// Add records id, evicting the oldest ids beyond Max. Re-adding is a no-op.
func (p *Processed) Add(id string) {
	if id == "" || p.Has(id) {
		return
	}
	if p.set == nil {
		p.set = map[string]struct{}{}
	}
	p.ids = append(p.ids, id)
	p.set[id] = struct{}{}
	max := p.Max
	if max <= 0 {
		max = DefaultMaxIDs
	}
	for len(p.ids) > max {
		delete(p.set, p.ids[0])
		p.ids = p.ids[1:]
	}
}

// IDs returns the ids oldest first.
func (p *Processed) IDs() []string { return append([]string(nil), p.ids...) }

func (p *Processed) Len() int { return len(p.ids) }

// Store persists a Processed set.
type Store interface {
	Load(ctx context.Context) (*Processed, error)
	Save(ctx context.Context, p *Processed) error
}
