package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// exchangeRateAPI queries exchangerate-api.com, using the keyed pair endpoint when a key is configured
// and the open latest-rates endpoint otherwise.
type exchangeRateAPI struct {
	httpClient *http.Client
	apiKey     string
	keyedURL   string
	openURL    string
}

// NewExchangeRateAPI creates the primary live source.
func NewExchangeRateAPI(httpClient *http.Client, apiKey, keyedURL, openURL string) Source {
	return &exchangeRateAPI{
		httpClient: httpClient,
		apiKey:     apiKey,
		keyedURL:   keyedURL,
		openURL:    openURL,
	}
}

func (s *exchangeRateAPI) Name() string { return "exchangerate-api" }

func (s *exchangeRateAPI) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if s.apiKey != "" {
		var resp struct {
			Result         string          `json:"result"`
			ConversionRate decimal.Decimal `json:"conversion_rate"`
		}
		endpoint := fmt.Sprintf("%s/%s/pair/%s/%s", s.keyedURL, url.PathEscape(s.apiKey), url.PathEscape(from), url.PathEscape(to))
		if err := getJSON(ctx, s.httpClient, endpoint, &resp); err != nil {
			return decimal.Zero, err
		}
		if resp.Result != "success" {
			return decimal.Zero, fmt.Errorf("exchangerate-api result %q", resp.Result)
		}
		return resp.ConversionRate, nil
	}

	var resp struct {
		Rates  map[string]decimal.Decimal `json:"rates"`
		Result string                     `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/latest/%s", s.openURL, url.PathEscape(from))
	if err := getJSON(ctx, s.httpClient, endpoint, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Result != "success" {
		return decimal.Zero, fmt.Errorf("open exchange rate result %q", resp.Result)
	}
	rate, ok := resp.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", to)
	}
	return rate, nil
}

// frankfurter queries the ECB-backed Frankfurter API.
type frankfurter struct {
	httpClient *http.Client
	baseURL    string
}

// NewFrankfurter creates the secondary live source.
func NewFrankfurter(httpClient *http.Client, baseURL string) Source {
	return &frankfurter{httpClient: httpClient, baseURL: baseURL}
}

func (s *frankfurter) Name() string { return "frankfurter" }

func (s *frankfurter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var resp struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := getJSON(ctx, s.httpClient, s.baseURL+"/latest?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, err
	}
	rate, ok := resp.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", to)
	}
	return rate, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate API error (status %d)", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
