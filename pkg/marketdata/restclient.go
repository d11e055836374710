package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketconformance/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RESTClient issues GET requests against the public market-data endpoints and
// hands back the raw response. It never validates parameters: invalid values
// are sent as-is so the server's rejection behaviour can be exercised.
type RESTClient struct {
	baseURL          string
	announcementsURL string
	userAgent        string
	httpClient       *http.Client
	limiter          *rate.Limiter
	logger           *zap.Logger
}

func NewRESTClient(cfg config.RESTConfig, logger *zap.Logger) *RESTClient {
	c := &RESTClient{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		announcementsURL: cfg.AnnouncementsURL,
		userAgent:        cfg.UserAgent,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		logger:           logger,
	}
	if c.announcementsURL == "" {
		c.announcementsURL = c.baseURL + "/" + EndpointAnnouncements
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// URL returns the absolute URL of a resource under the base URL.
func (c *RESTClient) URL(endpoint string) string {
	return c.baseURL + "/" + endpoint
}

// CandlestickParams holds public/get-candlestick parameters. Nil optional
// fields are left out of the query string entirely.
type CandlestickParams struct {
	Instrument string
	Timeframe  string
	Count      *int
	StartTS    *int64
	EndTS      *int64
}

// Int and Int64 return pointers for optional parameters.
func Int(v int) *int       { return &v }
func Int64(v int64) *int64 { return &v }

func (c *RESTClient) GetCandlestick(ctx context.Context, p CandlestickParams) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_name", p.Instrument)
	q.Set("timeframe", p.Timeframe)
	if p.Count != nil {
		q.Set("count", strconv.Itoa(*p.Count))
	}
	if p.StartTS != nil {
		q.Set("start_ts", strconv.FormatInt(*p.StartTS, 10))
	}
	if p.EndTS != nil {
		q.Set("end_ts", strconv.FormatInt(*p.EndTS, 10))
	}
	return c.get(ctx, c.URL(EndpointCandlestick), q)
}

func (c *RESTClient) GetInstruments(ctx context.Context) (*Response, error) {
	return c.get(ctx, c.URL(EndpointInstruments), nil)
}

func (c *RESTClient) GetBook(ctx context.Context, instrument string, depth int) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)
	q.Set("depth", strconv.Itoa(depth))
	return c.get(ctx, c.URL(EndpointBook), q)
}

func (c *RESTClient) GetTrades(ctx context.Context, instrument string, count int) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)
	q.Set("count", strconv.Itoa(count))
	return c.get(ctx, c.URL(EndpointTrades), q)
}

// GetTickers fetches one ticker, or all of them when instrument is empty.
func (c *RESTClient) GetTickers(ctx context.Context, instrument string) (*Response, error) {
	q := url.Values{}
	if instrument != "" {
		q.Set("instrument_name", instrument)
	}
	return c.get(ctx, c.URL(EndpointTickers), q)
}

func (c *RESTClient) GetInsurance(ctx context.Context, instrument string, count int) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)
	q.Set("count", strconv.Itoa(count))
	return c.get(ctx, c.URL(EndpointInsurance), q)
}

func (c *RESTClient) GetValuations(ctx context.Context, instrument, valuationType string, count int) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)
	q.Set("valuation_type", valuationType)
	q.Set("count", strconv.Itoa(count))
	return c.get(ctx, c.URL(EndpointValuations), q)
}

func (c *RESTClient) GetExpiredSettlementPrice(ctx context.Context, instrumentType string, page int) (*Response, error) {
	q := url.Values{}
	q.Set("instrument_type", instrumentType)
	q.Set("page", strconv.Itoa(page))
	return c.get(ctx, c.URL(EndpointExpiredSettlementPrice), q)
}

func (c *RESTClient) GetRiskParameters(ctx context.Context) (*Response, error) {
	return c.get(ctx, c.URL(EndpointRiskParameters), nil)
}

// GetAnnouncements filters by category and product type when they are set.
func (c *RESTClient) GetAnnouncements(ctx context.Context, category, productType string) (*Response, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if productType != "" {
		q.Set("product_type", productType)
	}
	return c.get(ctx, c.announcementsURL, q)
}

func (c *RESTClient) get(ctx context.Context, endpoint string, q url.Values) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	full := endpoint
	if len(q) > 0 {
		full += "?" + q.Encode()
	}

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Info("making request", zap.String("endpoint", endpoint), zap.String("query", q.Encode()))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error("reading response failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Info("response received",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return &Response{
		URL:        full,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    elapsed,
	}, nil
}
