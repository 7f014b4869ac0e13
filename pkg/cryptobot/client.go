// Package cryptobot is a Go client for the cryptobot-server HTTP API.
package cryptobot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptobot/internal/backtest"
	"cryptobot/internal/domain"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
)

type (
	Request          = backtest.Request
	PortfolioRequest = backtest.PortfolioRequest
	Run              = backtest.Run
	RunSummary       = store.RunSummary
	StrategyInfo     = strategy.Info
	Trade            = domain.Trade
)

// ErrNotFound is matched by APIErrors with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cryptobot api: %d %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client provides a Go SDK for interacting with the cryptobot-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. Backtests run synchronously on the
// server, so the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err = io.Copy(w, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Strategies lists registered strategies with their parameter schemas.
func (c *Client) Strategies(ctx context.Context) ([]StrategyInfo, error) {
	var out []StrategyInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunBacktest runs a single-symbol backtest and returns the recorded run.
func (c *Client) RunBacktest(ctx context.Context, req Request) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunPortfolio runs one strategy across several symbols.
func (c *Client) RunPortfolio(ctx context.Context, req PortfolioRequest) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/api/v1/portfolios", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetBacktest fetches a recorded run by id.
func (c *Client) GetBacktest(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBacktests lists recent runs, newest first.
func (c *Client) ListBacktests(ctx context.Context, limit int) ([]RunSummary, error) {
	path := "/api/v1/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []RunSummary
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadTrades writes a run's trades as CSV to w.
func (c *Client) DownloadTrades(ctx context.Context, id string, w io.Writer) error {
	return c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id)+"/trades.csv", nil, w)
}
