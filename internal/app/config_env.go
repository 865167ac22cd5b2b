package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with the environment variables that
// are set. It runs after the config file is applied so env beats file; flags
// are applied last.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, keys ...string) {
		if v := firstEnv(keys...); v != "" {
			*dst = v
		}
	}
	setString(&cfg.CredentialsPath, "GMAIL_CREDENTIALS")
	setString(&cfg.TokenPath, "GMAIL_TOKEN")
	setString(&cfg.SourceFile, "SOURCE_FILE")
	setString(&cfg.NotionToken, "NOTION_TOKEN", "NOTION_API_KEY")
	setString(&cfg.NotionDatabaseID, "NOTION_DATABASE_ID")
	setString(&cfg.ArchiveDir, "ARCHIVE_DIR")
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.StateDriver, "STATE_DRIVER")
	setString(&cfg.StatePath, "STATE_PATH")
	setString(&cfg.CacheDir, "CACHE_DIR")

	if s := splitList(os.Getenv("MONITORED_SENDERS")); len(s) > 0 {
		cfg.Senders = s
	}
	if d := envInterval("CHECK_INTERVAL"); d > 0 {
		cfg.Interval = d
	}
	if d, err := time.ParseDuration(os.Getenv("CACHE_MAX_AGE")); err == nil {
		cfg.CacheMaxAge = d
	}

	setBool := func(dst *bool, envKey string) {
		if v, ok := envBool(envKey); ok {
			*dst = v
		}
	}
	setBool(&cfg.UseLLM, "USE_LLM")
	setBool(&cfg.DryRun, "DRY_RUN")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// envInterval accepts a Go duration or a bare number of minutes.
func envInterval(key string) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Minute
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 0
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
