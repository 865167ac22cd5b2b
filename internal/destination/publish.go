package destination

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Publish writes full and, when the store rejects it as malformed, retries
// once with the reduced document from minimal. The bool reports whether the
// reduced variant was the one written.
func Publish(ctx context.Context, w Writer, full Document, minimal func() Document) (string, bool, error) {
	ref, err := w.Create(ctx, full)
	if err == nil {
		return ref, false, nil
	}
	if !errors.Is(err, ErrRejected) || minimal == nil {
		return "", false, err
	}
	zerolog.Ctx(ctx).Warn().Err(err).Msg("full page rejected, retrying with minimal variant")
	ref, err2 := w.Create(ctx, minimal())
	if err2 != nil {
		return "", true, fmt.Errorf("minimal variant: %w (full: %v)", err2, err)
	}
	return ref, true, nil
}

// Tee writes to Primary and then copies the page to each Archive writer.
// Archive failures are logged and never fail the write.
type Tee struct {
	Primary Writer
	Archive []Writer
}

func (t Tee) Create(ctx context.Context, doc Document) (string, error) {
	ref, err := t.Primary.Create(ctx, doc)
	if err != nil {
		return "", err
	}
	for _, a := range t.Archive {
		if path, err := a.Create(ctx, doc); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("archive write failed")
		} else {
			zerolog.Ctx(ctx).Debug().Str("path", path).Msg("page archived")
		}
	}
	return ref, nil
}

// LogWriter only logs what would be written. It backs dry runs.
type LogWriter struct{}

func (LogWriter) Create(ctx context.Context, doc Document) (string, error) {
	zerolog.Ctx(ctx).Info().
		Str("title", doc.Title()).
		Int("properties", len(doc.Properties)).
		Int("blocks", len(doc.Blocks)).
		Msg("dry run: page not written")
	return "dry-run", nil
}
