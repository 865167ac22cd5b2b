package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/destination"
)

// ErrNoSenders is returned when no monitored sender is configured.
var ErrNoSenders = errors.New("config: no monitored senders")

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Senders []string `yaml:"senders" json:"senders"`

	Gmail struct {
		Credentials string `yaml:"credentials" json:"credentials"`
		Token       string `yaml:"token" json:"token"`
	} `yaml:"gmail" json:"gmail"`

	Source struct {
		File        string `yaml:"file" json:"file"`
		MaxPerRun   int    `yaml:"maxPerRun" json:"maxPerRun"`
		HistoryDays int    `yaml:"historyDays" json:"historyDays"`
	} `yaml:"source" json:"source"`

	Notion struct {
		Token      string            `yaml:"token" json:"token"`
		DatabaseID string            `yaml:"databaseId" json:"databaseId"`
		BaseURL    string            `yaml:"baseUrl" json:"baseUrl"`
		Properties map[string]string `yaml:"properties" json:"properties"`
	} `yaml:"notion" json:"notion"`

	Archive struct {
		Dir string `yaml:"dir" json:"dir"`
	} `yaml:"archive" json:"archive"`

	Categories []classify.Category `yaml:"categories" json:"categories"`
	Threshold  float64             `yaml:"threshold" json:"threshold"`

	LLM struct {
		Enable    bool   `yaml:"enable" json:"enable"`
		BaseURL   string `yaml:"base" json:"base"`
		Model     string `yaml:"model" json:"model"`
		APIKey    string `yaml:"key" json:"key"`
		PerMinute int    `yaml:"perMinute" json:"perMinute"`
	} `yaml:"llm" json:"llm"`

	Extract struct {
		ViewOnlinePatterns []string      `yaml:"viewOnlinePatterns" json:"viewOnlinePatterns"`
		VendorSignature    string        `yaml:"vendorSignature" json:"vendorSignature"`
		Timeout            time.Duration `yaml:"timeout" json:"timeout"`
		UserAgent          string        `yaml:"userAgent" json:"userAgent"`
	} `yaml:"extract" json:"extract"`

	Page struct {
		MaxBlocks      int `yaml:"maxBlocks" json:"maxBlocks"`
		MaxChars       int `yaml:"maxChars" json:"maxChars"`
		MaxLinks       int `yaml:"maxLinks" json:"maxLinks"`
		DescriptionMax int `yaml:"descriptionMax" json:"descriptionMax"`
	} `yaml:"page" json:"page"`

	State struct {
		Driver         string `yaml:"driver" json:"driver"`
		Path           string `yaml:"path" json:"path"`
		BatchSaveCount int    `yaml:"batchSaveCount" json:"batchSaveCount"`
	} `yaml:"state" json:"state"`

	Interval time.Duration `yaml:"interval" json:"interval"`
	DryRun   bool          `yaml:"dryRun" json:"dryRun"`
	Verbose  bool          `yaml:"verbose" json:"verbose"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc into cfg for any fields that are
// still unset, so explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	str := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if *dst == 0 && v > 0 {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 && v > 0 {
			*dst = v
		}
	}
	flag := func(dst *bool, v bool) {
		if !*dst && v {
			*dst = true
		}
	}

	if len(cfg.Senders) == 0 && len(fc.Senders) > 0 {
		cfg.Senders = append([]string{}, fc.Senders...)
	}
	str(&cfg.CredentialsPath, fc.Gmail.Credentials)
	str(&cfg.TokenPath, fc.Gmail.Token)
	str(&cfg.SourceFile, fc.Source.File)
	num(&cfg.MaxPerRun, fc.Source.MaxPerRun)
	num(&cfg.HistoryDays, fc.Source.HistoryDays)

	str(&cfg.NotionToken, fc.Notion.Token)
	str(&cfg.NotionDatabaseID, fc.Notion.DatabaseID)
	str(&cfg.NotionBaseURL, fc.Notion.BaseURL)
	if len(cfg.Properties) == 0 && len(fc.Notion.Properties) > 0 {
		cfg.Properties = make(map[string]destination.PropertyType, len(fc.Notion.Properties))
		for name, typ := range fc.Notion.Properties {
			cfg.Properties[name] = destination.PropertyType(strings.TrimSpace(typ))
		}
	}
	str(&cfg.ArchiveDir, fc.Archive.Dir)

	if len(cfg.Categories) == 0 && len(fc.Categories) > 0 {
		cfg.Categories = append([]classify.Category{}, fc.Categories...)
	}
	if cfg.Threshold == 0 && fc.Threshold > 0 {
		cfg.Threshold = fc.Threshold
	}
	flag(&cfg.UseLLM, fc.LLM.Enable)
	str(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	str(&cfg.LLMModel, fc.LLM.Model)
	str(&cfg.LLMAPIKey, fc.LLM.APIKey)
	num(&cfg.LLMPerMin, fc.LLM.PerMinute)

	if len(cfg.ViewOnlinePatterns) == 0 && len(fc.Extract.ViewOnlinePatterns) > 0 {
		cfg.ViewOnlinePatterns = append([]string{}, fc.Extract.ViewOnlinePatterns...)
	}
	str(&cfg.VendorSignature, fc.Extract.VendorSignature)
	dur(&cfg.FetchTimeout, fc.Extract.Timeout)
	str(&cfg.UserAgent, fc.Extract.UserAgent)

	num(&cfg.MaxBlocks, fc.Page.MaxBlocks)
	num(&cfg.MaxChars, fc.Page.MaxChars)
	num(&cfg.MaxLinks, fc.Page.MaxLinks)
	num(&cfg.DescriptionMax, fc.Page.DescriptionMax)

	str(&cfg.StateDriver, fc.State.Driver)
	str(&cfg.StatePath, fc.State.Path)
	num(&cfg.BatchSaveCount, fc.State.BatchSaveCount)

	dur(&cfg.Interval, fc.Interval)
	flag(&cfg.DryRun, fc.DryRun)
	flag(&cfg.Verbose, fc.Verbose)

	str(&cfg.CacheDir, fc.Cache.Dir)
	dur(&cfg.CacheMaxAge, fc.Cache.MaxAge)
	flag(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)
}

// ValidateConfig checks required settings. Dry runs need no destination
// credentials and an LLM model is only required when the LLM is enabled.
func ValidateConfig(cfg Config) error {
	if len(cfg.Senders) == 0 {
		return ErrNoSenders
	}
	if cfg.SourceFile == "" && (strings.TrimSpace(cfg.CredentialsPath) == "" || strings.TrimSpace(cfg.TokenPath) == "") {
		return errors.New("config: gmail credentials and token paths are required (or set a source file)")
	}
	if !cfg.DryRun {
		if strings.TrimSpace(cfg.NotionToken) == "" || strings.TrimSpace(cfg.NotionDatabaseID) == "" {
			return errors.New("config: notion token and database id are required (or set NOTION_TOKEN, NOTION_DATABASE_ID)")
		}
	}
	if cfg.UseLLM && strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required when the llm is enabled (or set LLM_MODEL)")
	}
	titles := 0
	for name, typ := range cfg.Properties {
		if !typ.Valid() {
			return fmt.Errorf("config: property %q has unknown type %q", name, typ)
		}
		if typ == destination.Title {
			titles++
		}
	}
	if len(cfg.Properties) > 0 && titles != 1 {
		return fmt.Errorf("config: exactly one title property is required, got %d", titles)
	}
	switch cfg.StateDriver {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown state driver %q", cfg.StateDriver)
	}
	for _, c := range cfg.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("config: category with empty name")
		}
		if c.Name == classify.Uncategorized {
			return fmt.Errorf("config: %q is reserved", classify.Uncategorized)
		}
	}
	if cfg.MaxPerRun < 0 || cfg.MaxBlocks < 0 || cfg.MaxChars < 0 || cfg.MaxLinks < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
