package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reinhart/assistantGPT/internal/market"
	"github.com/reinhart/assistantGPT/internal/search"
)

// NewStockToolRegistry registers the ticker lookup and the three market data tools.
func NewStockToolRegistry(searcher search.Searcher, provider market.Provider, searchDelay time.Duration) *ToolRegistry {
	registry := NewToolRegistry()
	registry.Register(&GetTickerTool{Search: searcher, Delay: searchDelay})
	registry.Register(&IncomeStatementTool{Market: provider})
	registry.Register(&BalanceSheetTool{Market: provider})
	registry.Register(&DailyStockPerformanceTool{Market: provider})
	return registry
}

// --- Ticker lookup ---

type GetTickerArgs struct {
	CompanyName string `json:"company_name" jsonschema_description:"The name of the company"`
}

var getTickerSchema = GenerateSchema[GetTickerArgs]()

// GetTickerTool resolves a company name through web search. The result is the
// raw search text, not a validated symbol.
type GetTickerTool struct {
	Search search.Searcher
	Delay  time.Duration // pause before each query to stay under the provider's rate limit
}

func (t *GetTickerTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_ticker",
		Description: "Given the name of a company returns its ticker symbol",
		Parameters:  getTickerSchema,
	}
}

func (t *GetTickerTool) Execute(ctx context.Context, args string) (string, error) {
	var a GetTickerArgs
	if err := ParseArgs(args, &a); err != nil {
		return "", err
	}
	company := strings.TrimSpace(a.CompanyName)
	if company == "" {
		return "", fmt.Errorf("get_ticker: company_name is required")
	}

	if t.Delay > 0 {
		timer := time.NewTimer(t.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	result, err := t.Search.Search(ctx, fmt.Sprintf("Ticker symbol of %s", company))
	if err != nil {
		return "", fmt.Errorf("get_ticker: %w", err)
	}
	return result, nil
}

// --- Market data ---

type TickerArgs struct {
	Ticker string `json:"ticker" jsonschema_description:"Ticker symbol of the company"`
}

var tickerSchema = GenerateSchema[TickerArgs]()

type IncomeStatementTool struct {
	Market market.Provider
}

func (t *IncomeStatementTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_income_statement",
		Description: "Given a ticker symbol (i.e AAPL) returns the company's income statement.",
		Parameters:  tickerSchema,
	}
}

func (t *IncomeStatementTool) Execute(ctx context.Context, args string) (string, error) {
	return fetchTable(ctx, "get_income_statement", args, t.Market.IncomeStatement)
}

type BalanceSheetTool struct {
	Market market.Provider
}

func (t *BalanceSheetTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_balance_sheet",
		Description: "Given a ticker symbol (i.e AAPL) returns the company's balance sheet.",
		Parameters:  tickerSchema,
	}
}

func (t *BalanceSheetTool) Execute(ctx context.Context, args string) (string, error) {
	return fetchTable(ctx, "get_balance_sheet", args, t.Market.BalanceSheet)
}

type DailyStockPerformanceTool struct {
	Market market.Provider
}

func (t *DailyStockPerformanceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_daily_stock_performance",
		Description: "Given a ticker symbol (i.e AAPL) returns the performance of the stock for the last 100 days.",
		Parameters:  tickerSchema,
	}
}

func (t *DailyStockPerformanceTool) Execute(ctx context.Context, args string) (string, error) {
	return fetchTable(ctx, "get_daily_stock_performance", args, t.Market.PriceHistory)
}

func fetchTable(ctx context.Context, tool, args string, fetch func(context.Context, string) (market.Table, error)) (string, error) {
	var a TickerArgs
	if err := ParseArgs(args, &a); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Ticker) == "" {
		return "", fmt.Errorf("%s: ticker is required", tool)
	}

	table, err := fetch(ctx, a.Ticker)
	if err != nil {
		return "", fmt.Errorf("%s(%s): %w", tool, a.Ticker, err)
	}
	out, err := table.JSON()
	if err != nil {
		return "", fmt.Errorf("%s: encoding result: %w", tool, err)
	}
	return out, nil
}
