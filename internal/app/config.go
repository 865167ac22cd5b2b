package app

import (
	"time"

	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/destination"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Source
	Senders         []string
	SourceFile      string
	CredentialsPath string
	TokenPath       string
	MaxPerRun       int
	HistoryDays     int

	// Destination
	NotionToken      string
	NotionDatabaseID string
	NotionBaseURL    string
	Properties       map[string]destination.PropertyType
	ArchiveDir       string

	// Classification
	Categories []classify.Category
	Threshold  float64
	UseLLM     bool
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	LLMPerMin  int

	// Extraction
	ViewOnlinePatterns []string
	VendorSignature    string
	FetchTimeout       time.Duration
	UserAgent          string

	// Page layout
	MaxBlocks      int
	MaxChars       int
	MaxLinks       int
	DescriptionMax int
	BatchSaveCount int

	// State
	StateDriver string
	StatePath   string

	// Behavior
	Interval         time.Duration
	Once             bool
	DryRun           bool
	Verbose          bool
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheStrictPerms bool
}

const (
	defaultMaxPerRun      = 50
	defaultHistoryDays    = 7
	defaultInterval       = 5 * time.Minute
	defaultDescriptionMax = 100
	defaultBatchSaveCount = 10
	defaultStatePath      = "processed_ids.json"
	defaultFetchTimeout   = 30 * time.Second
)

// DefaultProperties maps destination column names to their types.
func DefaultProperties() map[string]destination.PropertyType {
	return map[string]destination.PropertyType{
		"Name":        destination.Title,
		"Source":      destination.URL,
		"Category":    destination.Select,
		"Date":        destination.Date,
		"Description": destination.RichText,
		"Sender":      destination.RichText,
	}
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = defaultMaxPerRun
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = defaultHistoryDays
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.DescriptionMax <= 0 {
		c.DescriptionMax = defaultDescriptionMax
	}
	if c.BatchSaveCount <= 0 {
		c.BatchSaveCount = defaultBatchSaveCount
	}
	if c.Threshold <= 0 {
		c.Threshold = classify.DefaultThreshold
	}
	if len(c.Categories) == 0 {
		c.Categories = classify.DefaultCategories()
	}
	if len(c.Properties) == 0 {
		c.Properties = DefaultProperties()
	}
	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.StateDriver == "" {
		c.StateDriver = "json"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = UserAgent()
	}
	return c
}
