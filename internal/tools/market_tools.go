package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/averla/portfolio-ai-backend/internal/market"
)

// MarketAPI is the subset of the market client the tools need. Satisfied
// by *market.Client; tests substitute a fake.
type MarketAPI interface {
	GetContext(ctx context.Context, date string) (*market.ContextSnapshot, error)
	SearchNews(ctx context.Context, query string, limit int) ([]market.NewsItem, error)
	GetSentiment(ctx context.Context, ticker string) (*market.Sentiment, error)
}

// MarketContextTool returns the market-wide picture for a date, plus
// headline news for any tickers of interest.
type MarketContextTool struct {
	api MarketAPI
	now func() time.Time
}

// NewMarketContextTool returns a MarketContextTool backed by api.
func NewMarketContextTool(api MarketAPI) *MarketContextTool {
	return &MarketContextTool{api: api, now: time.Now}
}

func (t *MarketContextTool) Name() string { return "market_context" }

func (t *MarketContextTool) Description() string {
	return "Get the overall market picture for a date (index moves, volatility, summary), with optional headline news for specific tickers."
}

func (t *MarketContextTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "date", Type: TypeString, Description: "Date as YYYY-MM-DD, or today/yesterday. Defaults to today."},
		{Name: "tickers", Type: TypeArray, Description: "Optional tickers to fetch headline news for."},
	}
}

func (t *MarketContextTool) Call(ctx context.Context, _ int64, args map[string]any) (map[string]any, error) {
	date, err := ResolveDate(stringArg(args, "date"), t.now())
	if err != nil {
		return errResult(err.Error()), nil
	}

	snap, err := t.api.GetContext(ctx, date)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"date":    snap.Date,
		"summary": snap.Summary,
		"vix":     snap.VIX,
	}
	moves := make([]map[string]any, 0, len(snap.IndexMoves))
	for _, m := range snap.IndexMoves {
		moves = append(moves, map[string]any{"name": m.Name, "change_percent": m.ChangePercent})
	}
	out["index_moves"] = moves

	if tickers := stringListArg(args, "tickers"); len(tickers) > 0 {
		news := map[string]any{}
		for _, tk := range tickers {
			items, err := t.api.SearchNews(ctx, tk, 3)
			if err != nil {
				news[tk] = map[string]any{"error": "news temporarily unavailable"}
				continue
			}
			news[tk] = headlines(items)
		}
		out["news"] = news
	}
	return out, nil
}

// NewsSearchTool searches financial news by free-text query, optionally
// bounded to a published date range.
type NewsSearchTool struct {
	api MarketAPI
	now func() time.Time
}

// NewNewsSearchTool returns a NewsSearchTool backed by api.
func NewNewsSearchTool(api MarketAPI) *NewsSearchTool {
	return &NewsSearchTool{api: api, now: time.Now}
}

func (t *NewsSearchTool) Name() string { return "news_search" }

func (t *NewsSearchTool) Description() string {
	return "Search financial news by free-text query, optionally restricted to a published date range."
}

func (t *NewsSearchTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "query", Type: TypeString, Description: "Search terms, e.g. a company name or topic.", Required: true},
		{Name: "from_date", Type: TypeString, Description: "Earliest publish date as YYYY-MM-DD or a relative term."},
		{Name: "to_date", Type: TypeString, Description: "Latest publish date as YYYY-MM-DD or a relative term."},
		{Name: "limit", Type: TypeNumber, Description: "Maximum results, default 5."},
	}
}

func (t *NewsSearchTool) Call(ctx context.Context, _ int64, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query")
	limit := intArg(args, "limit", 5)
	if limit < 1 || limit > 20 {
		limit = 5
	}

	var from, to string
	var err error
	if raw := stringArg(args, "from_date"); raw != "" {
		if from, err = ResolveDate(raw, t.now()); err != nil {
			return errResult(err.Error()), nil
		}
	}
	if raw := stringArg(args, "to_date"); raw != "" {
		if to, err = ResolveDate(raw, t.now()); err != nil {
			return errResult(err.Error()), nil
		}
	}

	items, err := t.api.SearchNews(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	items = filterByDateRange(items, from, to)
	if len(items) == 0 {
		return errResult(fmt.Sprintf("no news found for %q", query)), nil
	}
	return map[string]any{"query": query, "items": headlines(items)}, nil
}

// filterByDateRange keeps items whose publish date (YYYY-MM-DD prefix of
// the timestamp) falls within [from, to]; empty bounds are open.
func filterByDateRange(items []market.NewsItem, from, to string) []market.NewsItem {
	if from == "" && to == "" {
		return items
	}
	out := items[:0]
	for _, it := range items {
		day := it.PublishedAt
		if len(day) >= 10 {
			day = day[:10]
		}
		if from != "" && day < from {
			continue
		}
		if to != "" && day > to {
			continue
		}
		out = append(out, it)
	}
	return out
}

func headlines(items []market.NewsItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"title":        it.Title,
			"source":       it.Source,
			"published_at": it.PublishedAt,
			"snippet":      it.Snippet,
		})
	}
	return out
}

// SentimentTool reports aggregate news sentiment per ticker.
type SentimentTool struct {
	api MarketAPI
}

// NewSentimentTool returns a SentimentTool backed by api.
func NewSentimentTool(api MarketAPI) *SentimentTool {
	return &SentimentTool{api: api}
}

func (t *SentimentTool) Name() string { return "market_sentiment" }

func (t *SentimentTool) Description() string {
	return "Get aggregate news sentiment (bullish/bearish score) for one or more tickers."
}

func (t *SentimentTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "tickers", Type: TypeArray, Description: "Tickers to score, e.g. [\"AAPL\"].", Required: true},
	}
}

func (t *SentimentTool) Call(ctx context.Context, _ int64, args map[string]any) (map[string]any, error) {
	tickers := stringListArg(args, "tickers")
	if len(tickers) == 0 {
		return errResult("tickers must contain at least one symbol"), nil
	}

	scores := make([]map[string]any, 0, len(tickers))
	for _, tk := range tickers {
		s, err := t.api.GetSentiment(ctx, tk)
		if err != nil {
			scores = append(scores, map[string]any{"ticker": tk, "error": "sentiment unavailable"})
			continue
		}
		scores = append(scores, map[string]any{
			"ticker": s.Ticker,
			"score":  s.Score,
			"label":  s.Label,
			"basis":  s.Basis,
		})
	}
	return map[string]any{"sentiment": scores}, nil
}
