// Package app wires the newsletter pipeline: list new mail, enrich each
// message from its web version, classify it and publish a page.
package app

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsdigest/internal/blocks"
	"github.com/hyperifyio/newsdigest/internal/cache"
	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/destination"
	"github.com/hyperifyio/newsdigest/internal/extract"
	"github.com/hyperifyio/newsdigest/internal/fetch"
	"github.com/hyperifyio/newsdigest/internal/llm"
	"github.com/hyperifyio/newsdigest/internal/normalize"
	"github.com/hyperifyio/newsdigest/internal/source"
	"github.com/hyperifyio/newsdigest/internal/state"
)

const (
	minimalMaxBlocks    = 95
	minimalMaxLinks     = 5
	minimalLinksHeading = "Links"
)

// WebExtractor turns a newsletter's web URL into sections.
// *extract.Extractor satisfies it.
type WebExtractor interface {
	Extract(ctx context.Context, url string) (extract.Result, error)
}

// Deps are the collaborators of an App. New builds the real ones from
// Config; tests pass fakes to NewWithDeps.
type Deps struct {
	Source     source.Source
	Writer     destination.Writer
	Web        WebExtractor
	Classifier *classify.Classifier
	Store      state.Store
	Now        func() time.Time
}

type App struct {
	cfg        Config
	source     source.Source
	writer     destination.Writer
	web        WebExtractor
	classifier *classify.Classifier
	store      state.Store
	now        func() time.Time

	patterns []*regexp.Regexp
	full     *blocks.Builder
	minimal  *blocks.Builder

	processed *state.Processed
	closers   []io.Closer
}

// New builds an App with its production collaborators.
func New(ctx context.Context, cfg Config) (*App, error) {
	cfg = cfg.WithDefaults()
	httpClient := newHTTPClient()

	if cfg.CacheDir != "" && cfg.CacheMaxAge > 0 {
		now := time.Now()
		if n, err := cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge, now); err != nil {
			log.Warn().Err(err).Msg("http cache purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("purged stale page cache entries")
		}
		if n, err := cache.PurgeLLMCacheByAge(cfg.CacheDir, cfg.CacheMaxAge, now); err != nil {
			log.Warn().Err(err).Msg("llm cache purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("purged stale llm cache entries")
		}
	}

	var deps Deps
	var closers []io.Closer

	if cfg.SourceFile != "" {
		deps.Source = &source.FileSource{Path: cfg.SourceFile}
	} else {
		g, err := source.NewGmail(ctx, cfg.CredentialsPath, cfg.TokenPath)
		if err != nil {
			return nil, fmt.Errorf("gmail source: %w", err)
		}
		deps.Source = g
	}

	if cfg.DryRun {
		deps.Writer = destination.LogWriter{}
	} else {
		notion := destination.NewNotionWriter(cfg.NotionToken, cfg.NotionDatabaseID)
		notion.BaseURL = cfg.NotionBaseURL
		notion.HTTPClient = httpClient
		deps.Writer = notion
		if cfg.ArchiveDir != "" {
			deps.Writer = destination.Tee{Primary: notion, Archive: []destination.Writer{&destination.PDFWriter{Dir: cfg.ArchiveDir}}}
		}
	}

	fetcher := &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       2,
		PerRequestTimeout: cfg.FetchTimeout,
		RedirectMaxHops:   5,
	}
	if cfg.CacheDir != "" {
		fetcher.Cache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}
	signature := cfg.VendorSignature
	if signature == "" {
		signature = extract.DefaultVendorSignature
	}
	deps.Web = &extract.Extractor{
		Fetcher:    fetcher,
		Strategies: []extract.Strategy{extract.Vendor{Signature: signature}, extract.Generic{}, extract.Basic{}},
		Timeout:    2 * cfg.FetchTimeout,
	}

	if cfg.UseLLM {
		completer := llm.NewChatCompleter(llm.NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLMBaseURL), cfg.LLMModel)
		if cfg.LLMPerMin > 0 {
			completer.Limiter = llm.NewRateLimiter(cfg.LLMPerMin)
		}
		if cfg.CacheDir != "" {
			completer.Cache = &cache.LLMCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
		}
		deps.Classifier = classify.NewLLMClassifier(cfg.Categories, cfg.Threshold, completer)
	} else {
		deps.Classifier = classify.NewKeywordClassifier(cfg.Categories, cfg.Threshold)
	}

	switch cfg.StateDriver {
	case "sqlite":
		s, err := state.OpenSQLite(cfg.StatePath, state.DefaultMaxIDs)
		if err != nil {
			return nil, err
		}
		deps.Store = s
		closers = append(closers, s)
	default:
		deps.Store = &state.FileStore{Path: cfg.StatePath, Max: state.DefaultMaxIDs}
	}

	a, err := NewWithDeps(cfg, deps)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWithDeps builds an App around the given collaborators. Source, Writer,
// Classifier and Store are required.
func NewWithDeps(cfg Config, deps Deps) (*App, error) {
	cfg = cfg.WithDefaults()
	if deps.Source == nil || deps.Writer == nil || deps.Classifier == nil || deps.Store == nil {
		return nil, fmt.Errorf("app: missing collaborator")
	}
	patterns, err := normalize.CompilePatterns(cfg.ViewOnlinePatterns)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring invalid view-online pattern")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		cfg:        cfg,
		source:     deps.Source,
		writer:     deps.Writer,
		web:        deps.Web,
		classifier: deps.Classifier,
		store:      deps.Store,
		now:        now,
		patterns:   patterns,
		full: blocks.New(blocks.Options{
			MaxBlocks: cfg.MaxBlocks,
			MaxChars:  cfg.MaxChars,
			MaxLinks:  cfg.MaxLinks,
		}),
		minimal: blocks.New(blocks.Options{
			MaxBlocks:    minimalMaxBlocks,
			MaxChars:     cfg.MaxChars,
			MaxLinks:     minimalMaxLinks,
			LinksHeading: minimalLinksHeading,
		}),
	}, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

// ProcessedCount is the number of remembered message ids.
func (a *App) ProcessedCount() int {
	if a.processed == nil {
		return 0
	}
	return a.processed.Len()
}
