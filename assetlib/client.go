package assetlib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/joeshaw/envdecode"

	"github.com/hostbridge/scene-bridge-go/capability"
)

// AssetTypes lists the catalog sections the API serves. "all" is accepted
// wherever a type is optional.
var AssetTypes = []string{"hdris", "textures", "models"}

// Config for the catalog client. Defaults can be loaded via envdecode.
type Config struct {
	// BaseURL of the catalog API. ENV: ASSETLIB_BASE_URL
	BaseURL string `env:"ASSETLIB_BASE_URL,default=https://api.polyhaven.com"`
	// RequestTimeout bounds each catalog call. ENV: ASSETLIB_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"ASSETLIB_REQUEST_TIMEOUT,default=30s"`
	// CacheSize bounds the in-memory response cache. ENV: ASSETLIB_CACHE_SIZE
	CacheSize int `env:"ASSETLIB_CACHE_SIZE,default=128"`
	// CacheTTL expires cached catalog responses. ENV: ASSETLIB_CACHE_TTL
	CacheTTL time.Duration `env:"ASSETLIB_CACHE_TTL,default=10m"`
}

// Client talks to the catalog API. Responses for categories and searches are
// held in a bounded LRU so repeated browsing does not hammer the API.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *lru.Cache[string, cacheEntry]
	cacheTTL time.Duration
}

type cacheEntry struct {
	body    json.RawMessage
	fetched time.Time
}

// NewClient constructs a Client from cfg, filling zero values from the
// defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polyhaven.com"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create asset cache: %w", err)
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
	}, nil
}

// NewClientFromEnv builds a Client using envdecode to populate Config.
func NewClientFromEnv() (*Client, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode assetlib config: %w", err)
	}
	return NewClient(cfg)
}

// Categories fetches the category tree for one asset type ("all" included).
func (c *Client) Categories(ctx context.Context, assetType string) (json.RawMessage, error) {
	if !validAssetType(assetType, true) {
		return nil, capability.ValidationErrorf(
			"Invalid asset type: %s. Must be one of: hdris, textures, models, all", assetType)
	}
	return c.getCached(ctx, "/categories/"+assetType, nil)
}

// Search queries the asset index, optionally filtered by type and a
// comma-separated category list. The raw response maps asset id to metadata.
func (c *Client) Search(ctx context.Context, assetType, categories string) (map[string]json.RawMessage, error) {
	q := url.Values{}
	if assetType != "" && assetType != "all" {
		if !validAssetType(assetType, false) {
			return nil, capability.ValidationErrorf(
				"Invalid asset type: %s. Must be one of: hdris, textures, models, all", assetType)
		}
		q.Set("type", assetType)
	}
	if categories != "" {
		q.Set("categories", categories)
	}

	body, err := c.getCached(ctx, "/assets", q)
	if err != nil {
		return nil, err
	}
	var assets map[string]json.RawMessage
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, capability.ExecutionErrorf("malformed asset index response: %v", err)
	}
	return assets, nil
}

// Files fetches the per-resolution file listing of one asset. Not cached:
// it is only hit on download, which dominates the cost anyway.
func (c *Client) Files(ctx context.Context, assetID string) (map[string]json.RawMessage, error) {
	body, err := c.get(ctx, "/files/"+url.PathEscape(assetID), nil)
	if err != nil {
		return nil, err
	}
	var files map[string]json.RawMessage
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, capability.ExecutionErrorf("malformed files response: %v", err)
	}
	return files, nil
}

// Fetch streams an absolute asset file URL. The caller owns closing the
// reader.
func (c *Client) Fetch(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, capability.ExecutionErrorf("download failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, capability.ExecutionErrorf("download failed with status code %d", res.StatusCode)
	}
	return res.Body, nil
}

func (c *Client) getCached(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	key := path
	if len(q) > 0 {
		key += "?" + q.Encode()
	}
	if entry, ok := c.cache.Get(key); ok && time.Since(entry.fetched) < c.cacheTTL {
		return entry.body, nil
	}

	body, err := c.get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{body: body, fetched: time.Now()})
	return body, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, capability.ExecutionErrorf("catalog request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, capability.ExecutionErrorf("API request failed with status code %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, capability.ExecutionErrorf("read catalog response: %v", err)
	}
	return body, nil
}

func validAssetType(t string, allowAll bool) bool {
	if allowAll && t == "all" {
		return true
	}
	for _, v := range AssetTypes {
		if t == v {
			return true
		}
	}
	return false
}
