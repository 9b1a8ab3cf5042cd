// Package weather fetches current conditions and forecasts from an
// OpenWeatherMap compatible API, keeping recent responses in the cache so the
// kiosk does not hit the API on every refresh.
package weather

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/iTrooz/kiosk-dashboard/internal/cache"
	"github.com/iTrooz/kiosk-dashboard/internal/config"
)

const (
	currentPath  = "weather"
	forecastPath = "forecast"
)

// Query parameters that never take part in a cache key
var credentialParams = []string{"appid"}

// Client is a weather API client backed by the cache
type Client struct {
	httpClient *http.Client
	cache      *cache.Cache
	endpoint   string
	apiKey     string
	location   string
	units      string
	ttl        time.Duration
	days       int
}

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weather API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("weather API returned status %d: %s", e.StatusCode, e.Message)
}

// New creates a weather client from the configuration
func New(cfg *config.Config, c *cache.Cache) (*Client, error) {
	ttl, err := cfg.GetWeatherTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid weather TTL: %w", err)
	}
	timeout, err := cfg.GetWeatherTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid weather timeout: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    c,
		endpoint: strings.TrimSuffix(cfg.Weather.Endpoint, "/"),
		apiKey:   cfg.Weather.APIKey,
		location: cfg.Weather.Location,
		units:    cfg.Weather.Units,
		ttl:      ttl,
		days:     cfg.Weather.Days,
	}, nil
}

// RequestKey generates the cache key of an API request, based on its path and
// query. Credentials are left out so rotating the API key keeps the cache.
func RequestKey(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	for _, k := range credentialParams {
		q.Del(k)
	}

	// Build key: weather/path[_qhash]
	key := "weather/" + strings.Trim(path, "/")
	if encoded := q.Encode(); encoded != "" {
		hash := sha256.Sum256([]byte(encoded))
		key += "_q" + hex.EncodeToString(hash[:])[:8]
	}
	return key
}

func (c *Client) query() url.Values {
	q := url.Values{}
	q.Set("q", c.location)
	q.Set("units", c.units)
	if c.apiKey != "" {
		q.Set("appid", c.apiKey)
	}
	return q
}

// Current returns the current conditions at the configured location
func (c *Client) Current(ctx context.Context) (*Conditions, error) {
	return cachedGet(ctx, c, currentPath, func(body []byte) (*Conditions, error) {
		return parseConditions(body, c.units)
	})
}

// Forecast returns the daily forecast at the configured location, today first
func (c *Client) Forecast(ctx context.Context) ([]Day, error) {
	return cachedGet(ctx, c, forecastPath, func(body []byte) ([]Day, error) {
		return parseForecast(body, c.days)
	})
}

// cachedGet returns the shaped API response for path, from the cache when a
// live copy exists. Only responses that shape successfully are cached.
func cachedGet[T any](ctx context.Context, c *Client, path string, shape func([]byte) (T, error)) (T, error) {
	query := c.query()
	key := RequestKey(path, query)

	if body, ok := cache.Lookup[json.RawMessage](c.cache, key); ok {
		v, err := shape(body)
		if err == nil {
			logrus.Debugf("Cache hit for %s", key)
			return v, nil
		}
		logrus.Warnf("Ignoring cached %s response: %v", path, err)
	}

	var zero T
	body, err := c.fetch(ctx, path, query)
	if err != nil {
		return zero, err
	}
	v, err := shape(body)
	if err != nil {
		return zero, fmt.Errorf("failed to parse %s response: %w", path, err)
	}

	// A failed write only costs an extra request next time
	if !c.cache.Set(key, json.RawMessage(body), c.ttl) {
		logrus.Warnf("Could not cache weather response %s", key)
	}
	return v, nil
}

func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.endpoint + "/" + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(body, "message").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in %s response", path)
	}

	logrus.Infof("Fetched %s for %s -> %d", path, c.location, resp.StatusCode)
	return body, nil
}
