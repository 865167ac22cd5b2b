package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/destination"
	"github.com/hyperifyio/newsdigest/internal/normalize"
	"github.com/hyperifyio/newsdigest/internal/source"
)

// Stats counts what one run did.
type Stats struct {
	Listed             int
	Skipped            int
	Processed          int
	Failed             int
	WebExtracted       int
	EmailFallback      int
	LLMCategorized     int
	KeywordCategorized int
	Uncategorized      int
	MinimalFallbacks   int
}

func (s Stats) log(e *zerolog.Event) *zerolog.Event {
	return e.Int("listed", s.Listed).
		Int("skipped", s.Skipped).
		Int("processed", s.Processed).
		Int("failed", s.Failed).
		Int("web_extracted", s.WebExtracted).
		Int("email_fallback", s.EmailFallback).
		Int("llm_categorized", s.LLMCategorized).
		Int("keyword_categorized", s.KeywordCategorized).
		Int("uncategorized", s.Uncategorized).
		Int("minimal_fallbacks", s.MinimalFallbacks)
}

// RunOnce processes every new message from the monitored senders. Only a
// failure to load state or list messages is returned; per-message failures
// are logged, counted, and left for the next run.
func (a *App) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	if len(a.cfg.Senders) == 0 {
		return stats, ErrNoSenders
	}
	logger := log.With().Str("run_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	if a.processed == nil {
		p, err := a.store.Load(ctx)
		if err != nil {
			return stats, fmt.Errorf("load state: %w", err)
		}
		a.processed = p
		logger.Debug().Int("known", p.Len()).Msg("state loaded")
	}

	started := a.now()
	since := a.processed.LastCheck
	if since.IsZero() {
		since = started.AddDate(0, 0, -a.cfg.HistoryDays)
	}
	query := source.BuildQuery(a.cfg.Senders, since)
	logger.Info().Str("query", query).Str("source", a.source.Name()).Msg("listing messages")
	ids, err := a.source.QueryMessages(ctx, query, a.cfg.MaxPerRun)
	if err != nil {
		return stats, fmt.Errorf("list messages: %w", err)
	}
	stats.Listed = len(ids)

	// the next window starts at the oldest failure so it gets listed again
	nextCheck := started
	holdCheck := false
	for _, id := range ids {
		if ctx.Err() != nil {
			holdCheck = true
			break
		}
		if a.processed.Has(id) {
			stats.Skipped++
			continue
		}
		received, err := a.processMessage(ctx, id, &stats)
		if err != nil {
			stats.Failed++
			logger.Error().Err(err).Str("message_id", id).Msg("message failed")
			switch {
			case received.IsZero():
				holdCheck = true
			case received.Before(nextCheck):
				nextCheck = received.Add(-time.Second)
			}
			continue
		}
		stats.Processed++
		if a.cfg.DryRun {
			continue
		}
		a.processed.Add(id)
		if stats.Processed%a.cfg.BatchSaveCount == 0 {
			a.save(ctx)
		}
	}

	if !a.cfg.DryRun {
		if !holdCheck && nextCheck.After(a.processed.LastCheck) {
			a.processed.LastCheck = nextCheck
		}
		a.save(ctx)
	}
	stats.log(logger.Info()).Msg("run finished")
	return stats, nil
}

func (a *App) save(ctx context.Context) {
	if err := a.store.Save(ctx, a.processed); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("saving state failed")
	}
}

// processMessage runs one message through the pipeline and returns its
// receive time, zero when the message could not be loaded.
func (a *App) processMessage(ctx context.Context, id string, stats *Stats) (received time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process %s: panic: %v", id, r)
		}
	}()
	msg, err := a.source.GetMessage(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	received = msg.ReceivedAt
	logger := zerolog.Ctx(ctx).With().Str("message_id", id).Str("subject", msg.Subject).Logger()
	ctx = logger.WithContext(ctx)

	if a.enrichFromWeb(ctx, &msg) {
		stats.WebExtracted++
	} else {
		stats.EmailFallback++
	}

	res := a.classifier.Categorize(ctx, msg.Subject, msg.Body)
	switch {
	case res.Method == classify.MethodLLM:
		stats.LLMCategorized++
		msg.Summary = res.Explanation
	case res.IsUncategorized():
		stats.Uncategorized++
	default:
		stats.KeywordCategorized++
	}
	logger.Info().
		Str("category", res.Category).
		Float64("confidence", res.Confidence).
		Str("method", res.Method).
		Msg("categorized")

	full := a.fullDocument(msg, res)
	ref, usedMinimal, err := destination.Publish(ctx, a.writer, full, func() destination.Document {
		return a.minimalDocument(msg, res)
	})
	if err != nil {
		return msg.ReceivedAt, fmt.Errorf("publish %s: %w", id, err)
	}
	if usedMinimal {
		stats.MinimalFallbacks++
	}
	logger.Info().Str("ref", ref).Bool("minimal", usedMinimal).Bool("from_web", msg.FromWeb).Msg("page written")
	return msg.ReceivedAt, nil
}

// enrichFromWeb replaces the email content with the web version when the
// message links to one and extraction yields sections.
func (a *App) enrichFromWeb(ctx context.Context, msg *content.Message) bool {
	if a.web == nil {
		return false
	}
	link, ok := normalize.FindCanonicalWebLinkWith(msg.HTML, a.patterns)
	if !ok {
		return false
	}
	logger := zerolog.Ctx(ctx)
	res, err := a.web.Extract(ctx, link)
	if err != nil || len(res.Sections) == 0 {
		logger.Info().Err(err).Str("url", link).Msg("using email content")
		return false
	}
	msg.Sections = res.Sections
	msg.Body = content.SectionsText(res.Sections)
	if len(res.Links) > 0 {
		msg.Links = content.AppendUnique(nil, res.Links...)
	}
	msg.FromWeb = true
	msg.WebURL = res.FinalURL
	return true
}
