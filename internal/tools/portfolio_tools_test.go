package tools

import (
	"context"
	"testing"
	"time"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// fakeProvider serves canned holdings/prices keyed by date and ticker.
type fakeProvider struct {
	holdings map[string][]domain.Holding // key: date
	prices   map[string][]domain.InstrumentPrice
}

func (f *fakeProvider) GetHoldings(_ context.Context, _ int64, date string) ([]domain.Holding, error) {
	return f.holdings[date], nil
}

func (f *fakeProvider) GetPriceHistory(_ context.Context, ticker, from, to string) ([]domain.InstrumentPrice, error) {
	var out []domain.InstrumentPrice
	for _, p := range f.prices[ticker] {
		if p.Date >= from && p.Date <= to {
			out = append(out, p)
		}
	}
	return out, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

func TestHoldingsTool_ResolvesRelativeDate(t *testing.T) {
	p := &fakeProvider{holdings: map[string][]domain.Holding{
		"2026-08-28": {
			{Ticker: "AAPL", Name: "Apple Inc.", Quantity: 10, Value: 2300, AsOf: "2026-08-28"},
			{Ticker: "MSFT", Name: "Microsoft", Quantity: 5, Value: 2100, AsOf: "2026-08-28"},
		},
	}}
	tool := NewHoldingsTool(p)
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"date": "today"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["date"] != "2026-08-28" {
		t.Fatalf("date = %v", out["date"])
	}
	if out["total_value"] != 4400.0 {
		t.Fatalf("total_value = %v", out["total_value"])
	}
	rows := out["holdings"].([]map[string]any)
	if len(rows) != 2 || rows[0]["ticker"] != "AAPL" {
		t.Fatalf("holdings = %v", rows)
	}
}

func TestHoldingsTool_NoDataError(t *testing.T) {
	tool := NewHoldingsTool(&fakeProvider{holdings: map[string][]domain.Holding{}})
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"date": "2099-01-01"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, ok := out["error"].(string); !ok {
		t.Fatalf("want structured no-data error, got %v", out)
	}
}

func TestHoldingsTool_BadDateError(t *testing.T) {
	tool := NewHoldingsTool(&fakeProvider{})
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"date": "garbage"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, ok := out["error"].(string); !ok {
		t.Fatalf("want date error as result, got %v", out)
	}
}

func TestPerformanceTool_WeightedChange(t *testing.T) {
	p := &fakeProvider{
		holdings: map[string][]domain.Holding{
			"2026-08-28": {
				{Ticker: "AAPL", Value: 3000, AsOf: "2026-08-28"},
				{Ticker: "MSFT", Value: 1000, AsOf: "2026-08-28"},
			},
		},
		prices: map[string][]domain.InstrumentPrice{
			"AAPL": {{Date: "2026-08-27", Close: 100}, {Date: "2026-08-28", Close: 102}}, // +2%
			"MSFT": {{Date: "2026-08-27", Close: 200}, {Date: "2026-08-28", Close: 198}}, // -1%
		},
	}
	tool := NewPerformanceTool(p)
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"date": "2026-08-28"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	// 0.75*2% + 0.25*(-1%) = 1.25%
	if out["change_percent"] != 1.25 {
		t.Fatalf("change_percent = %v; want 1.25", out["change_percent"])
	}
	if out["total_value"] != 4000.0 {
		t.Fatalf("total_value = %v", out["total_value"])
	}
}

func TestComparisonTool(t *testing.T) {
	p := &fakeProvider{holdings: map[string][]domain.Holding{
		"2026-08-21": {{Ticker: "AAPL", Value: 4000, AsOf: "2026-08-21"}},
		"2026-08-28": {{Ticker: "AAPL", Value: 4400, AsOf: "2026-08-28"}},
	}}
	tool := NewComparisonTool(p)
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"from_date": "2026-08-21", "to_date": "today"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["change"] != 400.0 {
		t.Fatalf("change = %v", out["change"])
	}
	if out["change_percent"] != 10.0 {
		t.Fatalf("change_percent = %v", out["change_percent"])
	}
}

func TestComparisonTool_MissingSide(t *testing.T) {
	p := &fakeProvider{holdings: map[string][]domain.Holding{
		"2026-08-28": {{Ticker: "AAPL", Value: 4400, AsOf: "2026-08-28"}},
	}}
	tool := NewComparisonTool(p)
	tool.now = fixedNow

	out, err := tool.Call(context.Background(), 1, map[string]any{"from_date": "2099-01-01", "to_date": "today"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, ok := out["error"].(string); !ok {
		t.Fatalf("want no-data error, got %v", out)
	}
}
