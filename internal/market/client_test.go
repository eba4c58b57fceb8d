package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/averla/portfolio-ai-backend/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.MarketConfig{
		BaseURL: baseURL,
		APIKey:  "mk-test",
		Timeout: 5 * time.Second,
	})
}

func TestGetContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/market/context" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2026-08-28" {
			t.Errorf("date = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mk-test" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"date":"2026-08-28","summary":"Markets rallied on rate-cut hopes.","index_moves":[{"name":"S&P 500","change_percent":1.2}],"vix":14.3}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).GetContext(context.Background(), "2026-08-28")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if got.Summary == "" || len(got.IndexMoves) != 1 || got.VIX != 14.3 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestSearchNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "AAPL earnings" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q", got)
		}
		fmt.Fprint(w, `{"items":[{"title":"Apple beats estimates","source":"Newswire","published_at":"2026-08-28T12:00:00Z","snippet":"...","url":"https://example.com/a"}]}`)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).SearchNews(context.Background(), "AAPL earnings", 3)
	if err != nil {
		t.Fatalf("SearchNews: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Apple beats estimates" {
		t.Fatalf("items = %+v", items)
	}
}

func TestGetSentiment_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ticker":"AAPL","score":0.4,"label":"bullish","basis":12}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).GetSentiment(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetSentiment: %v", err)
	}
	if got.Label != "bullish" || got.Basis != 12 {
		t.Fatalf("sentiment = %+v", got)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d; want 2", n)
	}
}

func TestGetSentiment_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown ticker", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).GetSentiment(context.Background(), "ZZZZ"); err == nil {
		t.Fatal("want error on 404")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d; want 1", n)
	}
}
