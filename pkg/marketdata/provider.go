// Package marketdata implements the client side of §6.3's market-data
// provider contract: an offline collaborator that yields one daily snapshot
// tuple per A-share company, called at most once per trading day.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// Snapshot is one provider tuple: (code, name, total_market_cap,
// circulating_market_cap, turnover_amount) for a single trading date.
type Snapshot struct {
	CompanyCode    string
	CompanyName    string
	TotalMarketCap float64
	CirculatingCap float64
	TurnoverAmount float64
}

// Provider fetches one trading day's snapshot across all covered companies.
type Provider interface {
	FetchDaily(ctx context.Context, tradingDate time.Time) ([]Snapshot, error)
}

// HTTPProvider issues GET {base_url}/snapshots?date=YYYY-MM-DD and expects
// {"data": [{"code","name","total_market_cap","circulating_market_cap","turnover_amount"}, ...]}.
type HTTPProvider struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	retryPolicy resilience.Policy
	breaker     *resilience.Breaker
}

// New builds an HTTPProvider from cfg. retryPolicy governs per-request
// retry; breaker may be nil (sync-market-data's --init backfill loop calls
// FetchDaily many times in a row, so a tripped breaker matters here to
// avoid hammering a down provider for the remainder of the backfill).
func New(cfg config.MarketDataConfig, retryPolicy resilience.Policy, breaker *resilience.Breaker) *HTTPProvider {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 60
	}
	return &HTTPProvider{
		httpClient:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		retryPolicy: retryPolicy,
		breaker:     breaker,
	}
}

type wireSnapshot struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	TotalMarketCap float64 `json:"total_market_cap"`
	CirculatingCap float64 `json:"circulating_market_cap"`
	TurnoverAmount float64 `json:"turnover_amount"`
}

type snapshotResponse struct {
	Data []wireSnapshot `json:"data"`
}

// FetchDaily requests tradingDate's snapshot. A non-trading day is expected
// to come back as an empty data array rather than an error. Requests are
// retried per p.retryPolicy and routed through p.breaker when configured.
func (p *HTTPProvider) FetchDaily(ctx context.Context, tradingDate time.Time) ([]Snapshot, error) {
	decoded, err := resilience.Do(ctx, p.retryPolicy, func(ctx context.Context) (snapshotResponse, error) {
		call := func() (snapshotResponse, error) { return p.doFetchDaily(ctx, tradingDate) }
		if p.breaker == nil {
			return call()
		}
		return resilience.ExecuteCtx(p.breaker, call)
	})
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, len(decoded.Data))
	for i, w := range decoded.Data {
		snapshots[i] = Snapshot{
			CompanyCode:    w.Code,
			CompanyName:    w.Name,
			TotalMarketCap: w.TotalMarketCap,
			CirculatingCap: w.CirculatingCap,
			TurnoverAmount: w.TurnoverAmount,
		}
	}
	return snapshots, nil
}

func (p *HTTPProvider) doFetchDaily(ctx context.Context, tradingDate time.Time) (snapshotResponse, error) {
	var decoded snapshotResponse

	url := fmt.Sprintf("%s/snapshots?date=%s", p.baseURL, tradingDate.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decoded, fmt.Errorf("%w: build market-data request: %v", apperr.ErrMarketData, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decoded, fmt.Errorf("%w: %v", apperr.ErrMarketData, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decoded, &httpError{status: resp.StatusCode, cause: fmt.Errorf("%w: market-data provider returned status %d", apperr.ErrMarketData, resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return decoded, fmt.Errorf("%w: decode market-data response: %v", apperr.ErrMarketData, err)
	}
	return decoded, nil
}

// httpError carries the upstream HTTP status code so pkg/resilience's
// retry predicate can distinguish retryable 5xx from fatal 4xx.
type httpError struct {
	status int
	cause  error
}

func (e *httpError) Error() string       { return e.cause.Error() }
func (e *httpError) Unwrap() error       { return e.cause }
func (e *httpError) HTTPStatusCode() int { return e.status }

// ToMarketDataDaily projects a provider snapshot onto the persisted C3 row
// shape for a given trading date.
func ToMarketDataDaily(s Snapshot, tradingDate time.Time) types.MarketDataDaily {
	return types.MarketDataDaily{
		CompanyCode:    s.CompanyCode,
		TradingDate:    tradingDate,
		TotalMarketCap: s.TotalMarketCap,
		CirculatingCap: s.CirculatingCap,
		TurnoverAmount: s.TurnoverAmount,
	}
}
