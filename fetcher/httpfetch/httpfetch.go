// Package httpfetch builds query fetchers that GET JSON documents over HTTP.
package httpfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/IvanBrykalov/querycache/cache"
	"github.com/IvanBrykalov/querycache/fetcher"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
)

// maxBody caps how much of an error response is kept in StatusError.
const maxBody = 512

// Config configures a Fetcher.
type Config struct {
	// BaseURL is prepended to the path built for each key.
	BaseURL string

	// Client defaults to cleanhttp.DefaultPooledClient().
	Client *http.Client

	// Header is added to every request.
	Header http.Header

	Logger *zerolog.Logger
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpfetch: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// New returns a cache.Fetcher that GETs BaseURL+path(key) and decodes the
// JSON body into V. Transport, status and decoding errors are returned in the
// Result; the fetch context is passed to the request.
func New[K comparable, V any](cfg Config, path func(K) string) cache.Fetcher[K, fetcher.Result[V]] {
	client := cfg.Client
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "httpfetch").Logger()
	base := strings.TrimRight(cfg.BaseURL, "/")

	return fetcher.Wrap(func(ctx context.Context, key K) (V, error) {
		var zero V
		url := base + path(key)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return zero, fmt.Errorf("httpfetch: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range cfg.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn().Err(err).Str("url", url).Msg("Fetch request failed.")
			return zero, fmt.Errorf("httpfetch: GET %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			logger.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("Fetch returned an error status.")
			return zero, &StatusError{URL: url, Code: resp.StatusCode, Body: string(body)}
		}

		var v V
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return zero, fmt.Errorf("httpfetch: decode %s: %w", url, err)
		}
		logger.Debug().Str("url", url).Msg("Fetched.")
		return v, nil
	})
}
