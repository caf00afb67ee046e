package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendledger/services/lending/engine"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lending api: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client provides a thin wrapper around the lending HTTP API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// Option customises the client.
type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New initialises a client for the lending service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("base url must include scheme and host")
	}
	c := &Client{
		base: parsed,
		http: &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) DepositCollateral(ctx context.Context, tokenAddress, amount string) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/collateral/deposit", map[string]string{"token_address": tokenAddress, "amount": amount}, &res)
	return res, err
}

func (c *Client) WithdrawCollateral(ctx context.Context, tokenAddress, amount string) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/collateral/withdraw", map[string]string{"token_address": tokenAddress, "amount": amount}, &res)
	return res, err
}

func (c *Client) Borrow(ctx context.Context, amount string) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/loans/borrow", map[string]string{"amount": amount}, &res)
	return res, err
}

func (c *Client) RepayLoan(ctx context.Context, amount string) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/loans/repay", map[string]string{"amount": amount}, &res)
	return res, err
}

func (c *Client) UpdateInterestRate(ctx context.Context, newRate string) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, http.MethodPost, "/v1/admin/interest-rate", map[string]string{"new_rate": newRate}, &res)
	return res, err
}

func (c *Client) Config(ctx context.Context) (engine.Config, error) {
	var cfg engine.Config
	err := c.do(ctx, http.MethodGet, "/v1/config", nil, &cfg)
	return cfg, err
}

func (c *Client) Position(ctx context.Context, account string) (engine.Position, error) {
	var pos engine.Position
	err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(strings.TrimSpace(account))+"/position", nil, &pos)
	return pos, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
