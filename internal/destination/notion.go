package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/newsdigest/internal/blocks"
)

const (
	DefaultNotionBaseURL = "https://api.notion.com/v1"
	DefaultNotionVersion = "2022-06-28"

	// MaxRichText is the per-value text limit of the page API.
	MaxRichText = 2000
	maxSelect   = 100
)

// APIError is a non-2xx answer from the page API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api %d: %s", e.Status, e.Message)
}

// Is makes 400-class validation failures match ErrRejected.
func (e *APIError) Is(target error) bool {
	return target == ErrRejected && e.Status == http.StatusBadRequest
}

// NotionWriter creates database pages through the Notion REST API.
type NotionWriter struct {
	Token      string
	DatabaseID string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
}

// NewNotionWriter returns a writer for databaseID with a 30s request timeout.
func NewNotionWriter(token, databaseID string) *NotionWriter {
	return &NotionWriter{
		Token:      token,
		DatabaseID: databaseID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *NotionWriter) Create(ctx context.Context, doc Document) (string, error) {
	if w.Token == "" || w.DatabaseID == "" {
		return "", errors.New("notion writer misconfigured")
	}
	body, err := json.Marshal(w.pagePayload(doc))
	if err != nil {
		return "", fmt.Errorf("marshal page: %w", err)
	}
	base := strings.TrimRight(w.BaseURL, "/")
	if base == "" {
		base = DefaultNotionBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/pages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	version := w.Version
	if version == "" {
		version = DefaultNotionVersion
	}
	req.Header.Set("Authorization", "Bearer "+w.Token)
	req.Header.Set("Notion-Version", version)
	req.Header.Set("Content-Type", "application/json")

	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return "", apiErr
	}
	var page struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decode page: %w", err)
	}
	if page.URL != "" {
		return page.URL, nil
	}
	return page.ID, nil
}

type jsonMap = map[string]any

func (w *NotionWriter) pagePayload(doc Document) jsonMap {
	props := jsonMap{}
	for name, p := range doc.Properties {
		props[name] = propertyJSON(p)
	}
	children := make([]jsonMap, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		children = append(children, blockJSON(b))
	}
	return jsonMap{
		"parent":     jsonMap{"database_id": w.DatabaseID},
		"properties": props,
		"children":   children,
	}
}

func textRun(s string) []jsonMap {
	return []jsonMap{{"type": "text", "text": jsonMap{"content": blocks.Clip(s, MaxRichText)}}}
}

func propertyJSON(p Property) jsonMap {
	switch p.Type {
	case Title:
		return jsonMap{"title": textRun(p.Text)}
	case RichText:
		return jsonMap{"rich_text": textRun(p.Text)}
	case URL:
		if p.Text == "" || len(p.Text) > MaxRichText {
			return jsonMap{"url": nil}
		}
		return jsonMap{"url": p.Text}
	case Select:
		// option names may not contain commas
		name := strings.ReplaceAll(p.Text, ",", " ")
		return jsonMap{"select": jsonMap{"name": blocks.Clip(name, maxSelect)}}
	case Date:
		if p.Date.IsZero() {
			return jsonMap{"date": nil}
		}
		return jsonMap{"date": jsonMap{"start": p.Date.Format(time.RFC3339)}}
	case Number:
		return jsonMap{"number": p.Number}
	}
	return jsonMap{}
}

func blockJSON(b blocks.Block) jsonMap {
	if b.Kind == blocks.Divider {
		return jsonMap{"object": "block", "type": string(blocks.Divider), "divider": jsonMap{}}
	}
	var rich []jsonMap
	if b.Label != "" {
		rich = append(rich, jsonMap{
			"type":        "text",
			"text":        jsonMap{"content": b.Label},
			"annotations": jsonMap{"bold": true},
		})
	}
	text := jsonMap{"content": blocks.Clip(b.Text, MaxRichText)}
	// longer link targets are refused by the API
	if b.URL != "" && len(b.URL) <= MaxRichText {
		text["link"] = jsonMap{"url": b.URL}
	}
	rich = append(rich, jsonMap{"type": "text", "text": text})
	return jsonMap{
		"object":       "block",
		"type":         string(b.Kind),
		string(b.Kind): jsonMap{"rich_text": rich},
	}
}
