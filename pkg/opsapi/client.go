// Package opsapi is the client for the trading system's read endpoints and the fill-logging endpoint.
package opsapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Endpoint paths.
const (
	PathMatrix        = "/api/v1/strategies/matrix"
	PathReadiness     = "/api/v1/readiness"
	PathRebalances    = "/api/v1/rebalances"
	PathJournal       = "/api/v1/journal"
	PathExposure      = "/api/v1/exposure"
	PathRiskEvents    = "/api/v1/risk/events"
	PathFreshness     = "/api/v1/freshness"
	PathPipeline      = "/api/v1/pipeline"
	PathSlippage      = "/api/v1/execution/slippage"
	PathTradeActivity = "/api/v1/activity"
	PathBacktests     = "/api/v1/backtests"
	PathLogFills      = "/api/v1/fills"
)

// HTTPError is a non-2xx answer.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Status, body)
}

// Client talks to the backend. Reads are never retried here: the poll schedule is the retry.
type Client struct {
	client *resty.Client
}

// Options for NewClient.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Token     string
}

// NewClient builds a client for host.
func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "opsboard"
	}
	c := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)
	if opts.Token != "" {
		c.SetAuthToken(opts.Token)
	}
	return &Client{client: c}
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	return r
}

func get[T any](ctx context.Context, c *Client, path string, params map[string]string) (*Envelope[T], error) {
	out := &Envelope[T]{}
	r := c.newRequest(ctx).SetResult(out).ForceContentType("application/json")
	if len(params) > 0 {
		r.SetQueryParams(params)
	}
	resp, err := r.Get(path)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	if !resp.IsSuccess() {
		return nil, &HTTPError{Method: http.MethodGet, Path: path, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return out, nil
}

func (c *Client) StrategyMatrix(ctx context.Context) (*Envelope[MatrixPayload], error) {
	return get[MatrixPayload](ctx, c, PathMatrix, nil)
}

func (c *Client) Readiness(ctx context.Context) (*Envelope[ReadinessPayload], error) {
	return get[ReadinessPayload](ctx, c, PathReadiness, nil)
}

// Rebalances fetches the full history; it is re-fetched in bulk, never incrementally.
func (c *Client) Rebalances(ctx context.Context) (*Envelope[RebalancesPayload], error) {
	return get[RebalancesPayload](ctx, c, PathRebalances, nil)
}

func (c *Client) Journal(ctx context.Context, f JournalFilter) (*Envelope[JournalPayload], error) {
	params := map[string]string{}
	if f.StrategyID != "" {
		params["strategy_id"] = f.StrategyID
	}
	if f.Symbol != "" {
		params["symbol"] = f.Symbol
	}
	if f.Side != "" {
		params["side"] = strings.ToUpper(f.Side)
	}
	if !f.From.IsZero() {
		params["date_from"] = f.From.Format("2006-01-02")
	}
	if !f.To.IsZero() {
		params["date_to"] = f.To.Format("2006-01-02")
	}
	if f.Limit > 0 {
		params["limit"] = strconv.Itoa(f.Limit)
	}
	return get[JournalPayload](ctx, c, PathJournal, params)
}

func (c *Client) Exposure(ctx context.Context) (*Envelope[ExposurePayload], error) {
	return get[ExposurePayload](ctx, c, PathExposure, nil)
}

func (c *Client) RiskEvents(ctx context.Context) (*Envelope[RiskEventsPayload], error) {
	return get[RiskEventsPayload](ctx, c, PathRiskEvents, nil)
}

func (c *Client) Freshness(ctx context.Context) (*Envelope[FreshnessPayload], error) {
	return get[FreshnessPayload](ctx, c, PathFreshness, nil)
}

func (c *Client) PipelineSeries(ctx context.Context) (*Envelope[PipelinePayload], error) {
	return get[PipelinePayload](ctx, c, PathPipeline, nil)
}

func (c *Client) Slippage(ctx context.Context) (*Envelope[SlippagePayload], error) {
	return get[SlippagePayload](ctx, c, PathSlippage, nil)
}

func (c *Client) TradeActivity(ctx context.Context) (*Envelope[TradeActivityPayload], error) {
	return get[TradeActivityPayload](ctx, c, PathTradeActivity, nil)
}

func (c *Client) Backtests(ctx context.Context) (*Envelope[BacktestsPayload], error) {
	return get[BacktestsPayload](ctx, c, PathBacktests, nil)
}

// LogFills posts manually logged fills. requestID travels as X-Request-ID so the backend can
// correlate a user's retry; duplicates are skipped server-side and counted in the result.
func (c *Client) LogFills(ctx context.Context, requestID string, fills []FillEntry) (*LogFillsResult, error) {
	out := &Envelope[LogFillsResult]{}
	r := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"fills": fills}).
		SetResult(out).
		ForceContentType("application/json")
	if requestID != "" {
		r.SetHeader("X-Request-ID", requestID)
	}
	resp, err := r.Post(PathLogFills)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", PathLogFills)
	}
	if !resp.IsSuccess() {
		return nil, &HTTPError{Method: http.MethodPost, Path: PathLogFills, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	res := out.Payload()
	return &res, nil
}
