package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newsdigest/internal/app"
	"github.com/hyperifyio/newsdigest/internal/schedule"
	"github.com/hyperifyio/newsdigest/internal/source"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath   string
		envFiles     string
		senders      string
		sourceFile   string
		credentials  string
		token        string
		notionToken  string
		notionDB     string
		archiveDir   string
		useLLM       bool
		llmBaseURL   string
		llmModel     string
		llmKey       string
		threshold    float64
		stateDriver  string
		statePath    string
		cacheDir     string
		cacheMaxAge  time.Duration
		cacheStrict  bool
		interval     time.Duration
		once         bool
		dryRun       bool
		verbose      bool
		auth         bool
		printVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load")
	flag.StringVar(&senders, "senders", "", "Comma-separated sender addresses to monitor")
	flag.StringVar(&sourceFile, "source.file", "", "Read messages from a JSON file instead of Gmail")
	flag.StringVar(&credentials, "gmail.credentials", "credentials.json", "Gmail OAuth client secrets file")
	flag.StringVar(&token, "gmail.token", "token.json", "Stored Gmail OAuth token file")
	flag.StringVar(&notionToken, "notion.token", "", "Notion integration token")
	flag.StringVar(&notionDB, "notion.db", "", "Notion database id")
	flag.StringVar(&archiveDir, "archive.dir", "", "Also archive every page as PDF under this directory")
	flag.BoolVar(&useLLM, "llm", false, "Categorize with the language model, falling back to keywords")
	flag.StringVar(&llmBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", "", "Model name")
	flag.StringVar(&llmKey, "llm.key", "", "API key for the model server")
	flag.Float64Var(&threshold, "threshold", 0, "Minimum confidence to assign a category")
	flag.StringVar(&stateDriver, "state.driver", "", "Processed-id store: json or sqlite")
	flag.StringVar(&statePath, "state.path", "", "Processed-id store path")
	flag.StringVar(&cacheDir, "cache.dir", "", "Cache directory for pages and model answers")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this at startup; 0 disables")
	flag.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.DurationVar(&interval, "interval", 0, "Time between mailbox checks (default 5m)")
	flag.BoolVar(&once, "once", false, "Process one batch and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "Build pages without writing them or updating state")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&auth, "auth", false, "Authorize Gmail access and store the token, then exit")
	flag.BoolVar(&printVersion, "version", false, "Print version and exit")
	flag.Parse()

	if printVersion {
		fmt.Printf("newsdigest %s (%s)\n", app.BuildVersion, app.BuildCommit)
		return
	}

	if err := app.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
		log.Warn().Err(err).Msg("loading env files failed")
	}

	var cfg app.Config
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	// explicitly set flags win over file and env
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	str := func(name string, dst *string, v string) {
		if set[name] || (*dst == "" && v != "") {
			*dst = v
		}
	}
	if set["senders"] {
		cfg.Senders = splitList(senders)
	}
	str("source.file", &cfg.SourceFile, sourceFile)
	str("gmail.credentials", &cfg.CredentialsPath, credentials)
	str("gmail.token", &cfg.TokenPath, token)
	str("notion.token", &cfg.NotionToken, notionToken)
	str("notion.db", &cfg.NotionDatabaseID, notionDB)
	str("archive.dir", &cfg.ArchiveDir, archiveDir)
	str("llm.base", &cfg.LLMBaseURL, llmBaseURL)
	str("llm.model", &cfg.LLMModel, llmModel)
	str("llm.key", &cfg.LLMAPIKey, llmKey)
	str("state.driver", &cfg.StateDriver, stateDriver)
	str("state.path", &cfg.StatePath, statePath)
	str("cache.dir", &cfg.CacheDir, cacheDir)
	if set["llm"] {
		cfg.UseLLM = useLLM
	}
	if set["threshold"] {
		cfg.Threshold = threshold
	}
	if set["cache.maxAge"] {
		cfg.CacheMaxAge = cacheMaxAge
	}
	if set["cache.strictPerms"] {
		cfg.CacheStrictPerms = cacheStrict
	}
	if set["interval"] {
		cfg.Interval = interval
	}
	if set["dry-run"] {
		cfg.DryRun = dryRun
	}
	if set["v"] {
		cfg.Verbose = verbose
	}
	cfg.Once = once

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	if auth {
		if err := authorize(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("authorization failed")
		}
		return
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config) error {
	cfg = cfg.WithDefaults()
	if err := app.ValidateConfig(cfg); err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		if errors.Is(err, source.ErrNoToken) {
			return fmt.Errorf("%w: run with -auth first", err)
		}
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if cfg.Once {
		_, err := a.RunOnce(ctx)
		return err
	}
	return schedule.Every(ctx, cfg.Interval, func(ctx context.Context) error {
		_, err := a.RunOnce(ctx)
		return err
	})
}

// authorize runs the installed-app OAuth flow on the terminal.
func authorize(ctx context.Context, cfg app.Config) error {
	cfg = cfg.WithDefaults()
	oc, err := source.OAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Open this URL, approve access, then paste the code:\n%s\n> ", oc.AuthCodeURL("state-token"))
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	if err := source.ExchangeToken(ctx, oc, strings.TrimSpace(code), cfg.TokenPath); err != nil {
		return err
	}
	log.Info().Str("path", cfg.TokenPath).Msg("token stored")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
