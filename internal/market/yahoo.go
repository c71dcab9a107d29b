// Package market fetches company financials and price history.
package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNoData is returned when the provider has nothing for a symbol.
var ErrNoData = errors.New("no market data for symbol")

// Provider serves the three datasets the stock tools expose.
type Provider interface {
	IncomeStatement(ctx context.Context, ticker string) (Table, error)
	BalanceSheet(ctx context.Context, ticker string) (Table, error)
	PriceHistory(ctx context.Context, ticker string) (Table, error)
}

var incomeStatementItems = []string{
	"TotalRevenue", "CostOfRevenue", "GrossProfit", "ResearchAndDevelopment",
	"SellingGeneralAndAdministration", "OperatingExpense", "OperatingIncome",
	"InterestExpense", "PretaxIncome", "TaxProvision", "NetIncome",
	"EBITDA", "BasicEPS", "DilutedEPS",
}

var balanceSheetItems = []string{
	"TotalAssets", "CurrentAssets", "CashAndCashEquivalents",
	"CashCashEquivalentsAndShortTermInvestments", "AccountsReceivable", "Inventory",
	"TotalLiabilitiesNetMinorityInterest", "CurrentLiabilities", "AccountsPayable",
	"LongTermDebt", "TotalDebt", "NetDebt", "StockholdersEquity",
	"RetainedEarnings", "WorkingCapital", "OrdinarySharesNumber",
}

var priceFields = []struct{ key, row string }{
	{"open", "Open"}, {"high", "High"}, {"low", "Low"}, {"close", "Close"}, {"volume", "Volume"},
}

// Yahoo reads the public Yahoo Finance query API.
type Yahoo struct {
	baseURL      string
	historyRange string
	userAgent    string
	client       *http.Client
}

// NewYahoo creates a provider rooted at baseURL (for example https://query2.finance.yahoo.com).
func NewYahoo(baseURL, historyRange, userAgent string) *Yahoo {
	if historyRange == "" {
		historyRange = "3mo"
	}
	return &Yahoo{
		baseURL:      strings.TrimRight(baseURL, "/"),
		historyRange: historyRange,
		userAgent:    userAgent,
		client:       &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (y *Yahoo) IncomeStatement(ctx context.Context, ticker string) (Table, error) {
	return y.fundamentals(ctx, ticker, incomeStatementItems)
}

func (y *Yahoo) BalanceSheet(ctx context.Context, ticker string) (Table, error) {
	return y.fundamentals(ctx, ticker, balanceSheetItems)
}

// PriceHistory returns daily OHLCV rows for the configured range.
func (y *Yahoo) PriceHistory(ctx context.Context, ticker string) (Table, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("range", y.historyRange)
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	body, err := y.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), q)
	if err != nil {
		return nil, err
	}
	if e := gjson.GetBytes(body, "chart.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%w %s: %s", ErrNoData, symbol, e.Get("description").String())
	}

	result := gjson.GetBytes(body, "chart.result.0")
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")

	table := Table{}
	for _, f := range priceFields {
		values := quote.Get(f.key).Array()
		for i, ts := range timestamps {
			if i >= len(values) || values[i].Type == gjson.Null {
				continue
			}
			day := time.Unix(ts.Int(), 0).UTC().Format("2006-01-02")
			table.Set(day, f.row, values[i].Float())
		}
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoData, symbol)
	}
	return table, nil
}

// fundamentals reads annual line items from the fundamentals-timeseries endpoint.
func (y *Yahoo) fundamentals(ctx context.Context, ticker string, items []string) (Table, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	types := make([]string, len(items))
	for i, item := range items {
		types[i] = "annual" + item
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", strings.Join(types, ","))
	q.Set("period1", "493590046")
	q.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))

	body, err := y.get(ctx, "/ws/fundamentals-timeseries/v1/finance/timeseries/"+url.PathEscape(symbol), q)
	if err != nil {
		return nil, err
	}
	if e := gjson.GetBytes(body, "timeseries.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%w %s: %s", ErrNoData, symbol, e.Get("description").String())
	}

	table := Table{}
	gjson.GetBytes(body, "timeseries.result").ForEach(func(_, series gjson.Result) bool {
		typ := series.Get("meta.type.0").String()
		if typ == "" {
			return true
		}
		row := strings.TrimPrefix(typ, "annual")
		series.Get(typ).ForEach(func(_, point gjson.Result) bool {
			raw := point.Get("reportedValue.raw")
			date := point.Get("asOfDate").String()
			if raw.Exists() && date != "" {
				table.Set(date, row, raw.Float())
			}
			return true
		})
		return true
	})
	if len(table) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoData, symbol)
	}
	return table, nil
}

func (y *Yahoo) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if y.userAgent != "" {
		req.Header.Set("User-Agent", y.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read market data: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Yahoo answers unknown symbols with 404 and an error document.
		desc := gjson.GetBytes(body, "chart.error.description").String()
		if desc == "" {
			desc = gjson.GetBytes(body, "timeseries.error.description").String()
		}
		return nil, fmt.Errorf("%w: %s", ErrNoData, desc)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("market data provider returned %s", resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("market data provider returned invalid JSON")
	}
	return body, nil
}
