package tools

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/averla/portfolio-ai-backend/internal/portfolio"
)

// HoldingsTool returns an account's positions for a date.
type HoldingsTool struct {
	provider portfolio.Provider
	now      func() time.Time
}

// NewHoldingsTool returns a HoldingsTool backed by provider.
func NewHoldingsTool(p portfolio.Provider) *HoldingsTool {
	return &HoldingsTool{provider: p, now: time.Now}
}

func (t *HoldingsTool) Name() string { return "portfolio_holdings" }

func (t *HoldingsTool) Description() string {
	return "Look up the user's portfolio holdings (tickers, quantities, values) as of a date. Use this for questions about what the user owns."
}

func (t *HoldingsTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "date", Type: TypeString, Description: "Date as YYYY-MM-DD, or today/yesterday/tomorrow. Defaults to today."},
	}
}

func (t *HoldingsTool) Call(ctx context.Context, accountID int64, args map[string]any) (map[string]any, error) {
	date, err := ResolveDate(stringArg(args, "date"), t.now())
	if err != nil {
		return errResult(err.Error()), nil
	}

	holdings, err := t.provider.GetHoldings(ctx, accountID, date)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return errResult(fmt.Sprintf("no portfolio data available for %s", date)), nil
	}

	var total float64
	rows := make([]map[string]any, 0, len(holdings))
	for _, h := range holdings {
		total += h.Value
		rows = append(rows, map[string]any{
			"ticker":   h.Ticker,
			"name":     h.Name,
			"quantity": h.Quantity,
			"value":    h.Value,
		})
	}
	return map[string]any{
		"date":        date,
		"as_of":       holdings[0].AsOf,
		"total_value": total,
		"holdings":    rows,
	}, nil
}

// PerformanceTool analyzes portfolio performance on a date: per-position
// daily moves weighted into a portfolio-level change.
type PerformanceTool struct {
	provider portfolio.Provider
	now      func() time.Time
}

// NewPerformanceTool returns a PerformanceTool backed by provider.
func NewPerformanceTool(p portfolio.Provider) *PerformanceTool {
	return &PerformanceTool{provider: p, now: time.Now}
}

func (t *PerformanceTool) Name() string { return "performance_analysis" }

func (t *PerformanceTool) Description() string {
	return "Analyze the user's portfolio performance on a date: per-holding daily price change and the weighted portfolio-level change."
}

func (t *PerformanceTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "date", Type: TypeString, Description: "Date as YYYY-MM-DD, or today/yesterday/tomorrow. Defaults to today."},
	}
}

func (t *PerformanceTool) Call(ctx context.Context, accountID int64, args map[string]any) (map[string]any, error) {
	date, err := ResolveDate(stringArg(args, "date"), t.now())
	if err != nil {
		return errResult(err.Error()), nil
	}

	holdings, err := t.provider.GetHoldings(ctx, accountID, date)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return errResult(fmt.Sprintf("no portfolio data available for %s", date)), nil
	}

	day, perr := time.Parse(dateLayout, date)
	if perr != nil {
		return errResult(perr.Error()), nil
	}
	from := day.AddDate(0, 0, -7).Format(dateLayout)

	var totalValue, weightedChange float64
	rows := make([]map[string]any, 0, len(holdings))
	for _, h := range holdings {
		totalValue += h.Value
	}
	for _, h := range holdings {
		change, ok := dailyChange(ctx, t.provider, h.Ticker, from, date)
		row := map[string]any{"ticker": h.Ticker, "value": h.Value}
		if ok {
			row["change_percent"] = round2(change)
			if totalValue > 0 {
				weightedChange += change * (h.Value / totalValue)
			}
		} else {
			row["change_percent"] = nil
		}
		rows = append(rows, row)
	}

	return map[string]any{
		"date":           date,
		"total_value":    totalValue,
		"change_percent": round2(weightedChange),
		"holdings":       rows,
	}, nil
}

// dailyChange returns the percent move between the last two closes on or
// before date. ok is false when fewer than two closes exist in the window.
func dailyChange(ctx context.Context, p portfolio.Provider, ticker, from, to string) (float64, bool) {
	prices, err := p.GetPriceHistory(ctx, ticker, from, to)
	if err != nil || len(prices) < 2 {
		return 0, false
	}
	last := prices[len(prices)-1].Close
	prev := prices[len(prices)-2].Close
	if prev == 0 {
		return 0, false
	}
	return (last - prev) / prev * 100, true
}

// ComparisonTool compares total portfolio value between two dates.
type ComparisonTool struct {
	provider portfolio.Provider
	now      func() time.Time
}

// NewComparisonTool returns a ComparisonTool backed by provider.
func NewComparisonTool(p portfolio.Provider) *ComparisonTool {
	return &ComparisonTool{provider: p, now: time.Now}
}

func (t *ComparisonTool) Name() string { return "performance_comparison" }

func (t *ComparisonTool) Description() string {
	return "Compare the user's total portfolio value between two dates and report the absolute and percentage change."
}

func (t *ComparisonTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "from_date", Type: TypeString, Description: "Start date as YYYY-MM-DD, or today/yesterday.", Required: true},
		{Name: "to_date", Type: TypeString, Description: "End date as YYYY-MM-DD, or today/yesterday. Defaults to today."},
	}
}

func (t *ComparisonTool) Call(ctx context.Context, accountID int64, args map[string]any) (map[string]any, error) {
	from, err := ResolveDate(stringArg(args, "from_date"), t.now())
	if err != nil {
		return errResult(err.Error()), nil
	}
	to, err := ResolveDate(stringArg(args, "to_date"), t.now())
	if err != nil {
		return errResult(err.Error()), nil
	}

	fromVal, fromOK, err := t.totalValue(ctx, accountID, from)
	if err != nil {
		return nil, err
	}
	toVal, toOK, err := t.totalValue(ctx, accountID, to)
	if err != nil {
		return nil, err
	}
	if !fromOK || !toOK {
		missing := from
		if fromOK {
			missing = to
		}
		return errResult(fmt.Sprintf("no portfolio data available for %s", missing)), nil
	}

	out := map[string]any{
		"from_date":  from,
		"to_date":    to,
		"from_value": fromVal,
		"to_value":   toVal,
		"change":     round2(toVal - fromVal),
	}
	if fromVal > 0 {
		out["change_percent"] = round2((toVal - fromVal) / fromVal * 100)
	}
	return out, nil
}

func (t *ComparisonTool) totalValue(ctx context.Context, accountID int64, date string) (float64, bool, error) {
	holdings, err := t.provider.GetHoldings(ctx, accountID, date)
	if err != nil {
		return 0, false, err
	}
	if len(holdings) == 0 {
		return 0, false, nil
	}
	var total float64
	for _, h := range holdings {
		total += h.Value
	}
	return total, true, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

