package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PageEntry is the metadata stored next to a cached page body. It carries the
// validators needed for conditional revalidation and the URL the page was
// finally served from after redirects.
type PageEntry struct {
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores fetched newsletter pages on disk as <key>.meta.json and
// <key>.body where key is sha256(url). There is no eviction beyond
// PurgeHTTPCacheByAge.
type HTTPCache struct {
	Dir string
	// StrictPerms restricts the directory to 0700 and files to 0600.
	StrictPerms bool
}

// Key returns the on-disk key for a page URL.
func (c *HTTPCache) Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (c *HTTPCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".meta.json") }
func (c *HTTPCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".body") }

// Load returns the cached entry and body for url. A missing entry is reported
// as an error wrapping os.ErrNotExist.
func (c *HTTPCache) Load(_ context.Context, url string) (*PageEntry, []byte, error) {
	if c == nil || c.Dir == "" {
		return nil, nil, errors.New("cache dir not configured")
	}
	key := c.Key(url)
	raw, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return nil, nil, err
	}
	var e PageEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil, fmt.Errorf("decode meta: %w", err)
	}
	body, err := os.ReadFile(c.bodyPath(key))
	if err != nil {
		return nil, nil, err
	}
	return &e, body, nil
}

// Save writes body and then its metadata. The meta file is replaced
// atomically so a reader never sees metadata without a body.
func (c *HTTPCache) Save(_ context.Context, e PageEntry, body []byte) error {
	if err := ensureDir(c.dir(), c.StrictPerms); err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	key := c.Key(e.URL)
	mode := fileMode(c.StrictPerms)
	if err := os.WriteFile(c.bodyPath(key), body, mode); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, meta, mode); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(key))
}

func (c *HTTPCache) dir() string {
	if c == nil {
		return ""
	}
	return c.Dir
}

func ensureDir(dir string, strict bool) error {
	if dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if strict {
		perm = 0o700
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if strict {
		if info, err := os.Stat(dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	return nil
}

func fileMode(strict bool) os.FileMode {
	if strict {
		return 0o600
	}
	return 0o644
}
