// Package market provides a client for the market intelligence upstream:
// macro/market context snapshots, news search, and ticker sentiment. The
// upstream is a plain JSON REST API; every call is context-aware, bounded
// by a configured timeout, and retried once on transient failure.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/averla/portfolio-ai-backend/internal/config"
)

// ContextSnapshot is the market-wide picture for one date.
type ContextSnapshot struct {
	Date       string  `json:"date"`
	Summary    string  `json:"summary"`
	IndexMoves []Move  `json:"index_moves"`
	VIX        float64 `json:"vix"`
}

// Move is one index or sector move in percent.
type Move struct {
	Name          string  `json:"name"`
	ChangePercent float64 `json:"change_percent"`
}

// NewsItem is one news search hit.
type NewsItem struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Snippet     string `json:"snippet"`
	URL         string `json:"url"`
}

// Sentiment is the aggregate news sentiment for one ticker.
type Sentiment struct {
	Ticker string  `json:"ticker"`
	Score  float64 `json:"score"` // -1 (bearish) .. +1 (bullish)
	Label  string  `json:"label"`
	Basis  int     `json:"basis"` // number of articles scored
}

// Client talks to the market intelligence service.
type Client struct {
	httpc   *http.Client
	baseURL string
	apiKey  string
}

// NewClient builds a market Client from configuration.
func NewClient(cfg config.MarketConfig) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// GetContext returns the market context snapshot for date (YYYY-MM-DD).
func (c *Client) GetContext(ctx context.Context, date string) (*ContextSnapshot, error) {
	var out ContextSnapshot
	q := url.Values{"date": {date}}
	if err := c.getJSON(ctx, "/v1/market/context", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchNews returns recent news matching query, at most limit items.
func (c *Client) SearchNews(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	var out struct {
		Items []NewsItem `json:"items"`
	}
	q := url.Values{"q": {query}, "limit": {fmt.Sprint(limit)}}
	if err := c.getJSON(ctx, "/v1/news/search", q, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetSentiment returns aggregate news sentiment for ticker.
func (c *Client) GetSentiment(ctx context.Context, ticker string) (*Sentiment, error) {
	var out Sentiment
	q := url.Values{"ticker": {ticker}}
	if err := c.getJSON(ctx, "/v1/sentiment", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON performs a GET with one retry on transport errors, 429s, and 5xx.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
			log.Warn().Err(lastErr).Str("path", path).Msg("retrying market request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("build market request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("market request %s: %w", path, err)
			if ctx.Err() != nil {
				return lastErr
			}
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read market response %s: %w", path, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("market %s status %d", path, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				continue
			}
			return lastErr
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode market response %s: %w", path, err)
		}
		return nil
	}
	return lastErr
}
